package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// AccountFinder is a store we can use to retrieve accounts by
// id, email or username
type AccountFinder interface {
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Account, error)
}

// AccountProvider checks credentials against stored accounts
type AccountProvider struct {
	store  AccountFinder
	hasher PasswordAuthenticator
	logger Logger

	dummyOnce sync.Once
	dummyHash string
}

var _ IdentityProvider = (*AccountProvider)(nil)

// NewAccountProvider will create a new AccountProvider
func NewAccountProvider(store AccountFinder, hasher PasswordAuthenticator) *AccountProvider {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &AccountProvider{
		store:  store,
		hasher: hasher,
		logger: defLogger{},
	}
}

func (u *AccountProvider) WithLogger(l Logger) *AccountProvider {
	u.logger = normalizeLogger(l)
	return u
}

// VerifyIdentity will find the account and compare the password. An
// unknown identifier, a missing hash and a wrong password all fail the
// same way. Status is checked only after the password matched.
func (u *AccountProvider) VerifyIdentity(ctx context.Context, identifier, password string) (*Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := u.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			u.burnCompare(password)
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account during verification")
	}

	if account.PasswordHash == "" {
		u.logger.Debug("login attempt for account %s without credentials", account.ID)
		u.burnCompare(password)
		return nil, ErrInvalidCredentials
	}

	if err := u.hasher.ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := ensureLoginAllowed(account); err != nil {
		return nil, err
	}

	return account, nil
}

// burnCompare spends the time of a real password check so a miss takes
// as long as a wrong password
func (u *AccountProvider) burnCompare(password string) {
	u.dummyOnce.Do(func() {
		hash, err := u.hasher.HashPassword("courier-auth-unknown-account")
		if err != nil {
			u.logger.Warn("failed to prepare dummy password hash: %v", err)
			return
		}
		u.dummyHash = hash
	})
	if u.dummyHash != "" {
		_ = u.hasher.ComparePasswordAndHash(password, u.dummyHash)
	}
}

func ensureLoginAllowed(account *Account) error {
	switch {
	case account.AccountLocked:
		return ErrLoginLocked
	case !account.Enabled:
		return ErrLoginDisabled
	}
	return nil
}
