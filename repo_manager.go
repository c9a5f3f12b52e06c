package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	DB() bun.IDB
	Accounts() Accounts
	Customers() Customers
	Couriers() Couriers
	Depots() Depots
	VerificationTokens() VerificationTokens
	RefreshTokens() RefreshTokens
}

type mngr struct {
	db                 *bun.DB
	accounts           Accounts
	customers          Customers
	couriers           Couriers
	depots             Depots
	verificationTokens VerificationTokens
	refreshTokens      RefreshTokens
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:                 db,
		accounts:           NewAccountsRepository(db),
		customers:          NewCustomersRepository(db),
		couriers:           NewCouriersRepository(db),
		depots:             NewDepotsRepository(db),
		verificationTokens: NewVerificationTokensRepository(db),
		refreshTokens:      NewRefreshTokensRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager needs a database")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.customers == nil || m.couriers == nil || m.depots == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.verificationTokens == nil || m.refreshTokens == nil {
		return errors.New("repository tokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) DB() bun.IDB {
	return m.db
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) Customers() Customers {
	return m.customers
}

func (m mngr) Couriers() Couriers {
	return m.couriers
}

func (m mngr) Depots() Depots {
	return m.depots
}

func (m mngr) VerificationTokens() VerificationTokens {
	return m.verificationTokens
}

func (m mngr) RefreshTokens() RefreshTokens {
	return m.refreshTokens
}
