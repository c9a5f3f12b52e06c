package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const defaultAddressLabel = "Home address"

// AddressMessage is an optional address captured at registration
type AddressMessage struct {
	Label        string `json:"label"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
}

func (a AddressMessage) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.AddressLine1, validation.Required),
		validation.Field(&a.City, validation.Required),
		validation.Field(&a.Country, validation.Required),
	)
}

type RegisterCustomerMessage struct {
	Email      string          `json:"email"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	FirstName  string          `json:"firstName"`
	LastName   string          `json:"lastName"`
	NationalID string          `json:"nationalId"`
	Phone      string          `json:"phoneNumber"`
	Address    *AddressMessage `json:"address,omitempty"`
}

func (e RegisterCustomerMessage) Type() string { return "customer.register" }

func (e RegisterCustomerMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, emailRules...),
		validation.Field(&e.Username, usernameRules...),
		validation.Field(&e.Password, passwordRules...),
		validation.Field(&e.FirstName, nameRules...),
		validation.Field(&e.LastName, nameRules...),
		validation.Field(&e.NationalID, nationalRules...),
		validation.Field(&e.Phone, phoneRules...),
		validation.Field(&e.Address),
	)
}

// CustomerAuth is the account lifecycle of customers:
// register, verify email, then log in.
type CustomerAuth struct {
	deps          Deps
	resetRequest  *InitializePasswordResetHandler
	resetFinalize *FinalizePasswordResetHandler
	resend        *ResendVerificationHandler
}

func NewCustomerAuth(d Deps) *CustomerAuth {
	return &CustomerAuth{
		deps:          d,
		resetRequest:  NewInitializePasswordResetHandler(d),
		resetFinalize: NewFinalizePasswordResetHandler(d),
		resend:        NewResendVerificationHandler(d),
	}
}

func (c *CustomerAuth) Kind() FlowKind { return FlowCustomer }

// Register creates a disabled, unverified account with its customer
// profile and sends the verification link.
func (c *CustomerAuth) Register(ctx context.Context, msg RegisterCustomerMessage) (*Account, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during customer registration")
	default:
		return c.register(ctx, msg)
	}
}

func (c *CustomerAuth) register(ctx context.Context, msg RegisterCustomerMessage) (*Account, error) {
	if err := validateMessage(msg); err != nil {
		return nil, err
	}

	phone, err := NormalizePhone(msg.Phone, c.deps.Config.GetPhoneDefaultRegion())
	if err != nil {
		return nil, err
	}

	hash, err := c.deps.Hasher.HashPassword(msg.Password)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := c.deps.Clock()
	repos := c.deps.Repos
	username := strings.TrimSpace(msg.Username)

	var account *Account
	var token *VerificationToken

	err = repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := checkAvailable(ctx,
			availability{"username", func() (bool, error) { return repos.Accounts().ExistsByUsernameTx(ctx, tx, username) }},
			availability{"email", func() (bool, error) { return repos.Accounts().ExistsByEmailTx(ctx, tx, msg.Email) }},
			availability{"phone", func() (bool, error) { return repos.Accounts().ExistsByPhoneTx(ctx, tx, phone) }},
			availability{"nationalId", func() (bool, error) { return repos.Customers().ExistsByNationalIDTx(ctx, tx, msg.NationalID) }},
		); err != nil {
			return err
		}

		account = NewAccount(msg.Email, phone, RoleCustomer, now)
		account.SetCredentials(username, hash, now)
		if _, err := repos.Accounts().CreateTx(ctx, tx, account); err != nil {
			return err
		}

		customer := NewCustomer(account.ID, msg.FirstName, msg.LastName, msg.NationalID, now)
		if _, err := repos.Customers().CreateTx(ctx, tx, customer); err != nil {
			return err
		}

		if msg.Address != nil {
			if err := repos.Customers().CreateAddressTx(ctx, tx, newDefaultAddress(account, *msg.Address, now)); err != nil {
				return err
			}
		}

		var err error
		token, err = c.deps.Verification.IssueTx(ctx, tx, account.ID, TokenEmailVerification)
		return err
	})

	if err != nil {
		return nil, unwrapOrInternal(err, "customer registration transaction failed")
	}

	c.deps.Logger.Info("registered customer account %s", account.ID)

	c.deps.notify(ctx, NewNotification(NotifyCustomerVerification, account.Email, map[string]string{
		"firstName": strings.TrimSpace(msg.FirstName),
		"link":      c.deps.Links.CustomerVerification(token.Token),
	}))

	c.deps.record(ctx, ActivityEvent{
		EventType: ActivityEventRegistered,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
		Role:      account.Role,
	})

	return account, nil
}

// VerifyEmail consumes an EMAIL_VERIFICATION token and enables the
// account. An unknown, expired or already used token is false, not an error.
func (c *CustomerAuth) VerifyEmail(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	repos := c.deps.Repos
	now := c.deps.Clock()

	var account *Account
	err := repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, ok, err := c.deps.Verification.ValidateTx(ctx, tx, token, TokenEmailVerification)
		if err != nil || !ok {
			return err
		}

		found, err := repos.Accounts().GetByIDTx(ctx, tx, record.AccountID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return nil
			}
			return err
		}

		if found.Role != RoleCustomer {
			c.deps.Logger.Warn("customer verification attempted for %s account %s", found.Role, found.ID)
			return nil
		}

		if err := c.deps.Verification.ConsumeTx(ctx, tx, record); err != nil {
			return err
		}

		found.MarkEmailVerified(now)
		if err := found.Enable(now); err != nil {
			return err
		}

		if _, err := repos.Accounts().UpdateTx(ctx, tx, found); err != nil {
			return err
		}

		account = found
		return nil
	})

	if err != nil {
		if HasTextCode(err, TextCodeTokenAlreadyUsed) {
			return false, nil
		}
		return false, unwrapOrInternal(err, "failed to verify email")
	}

	if account == nil {
		c.deps.Logger.Info("customer email verification rejected")
		return false, nil
	}

	c.deps.record(ctx, ActivityEvent{
		EventType: ActivityEventEmailVerified,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
		Role:      account.Role,
	})

	return true, nil
}

// Login accepts any enabled account, it is the default sign in path
func (c *CustomerAuth) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	return c.deps.Auth.Login(ctx, identifier, password)
}

func (c *CustomerAuth) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	return c.deps.Auth.Refresh(ctx, refreshToken)
}

func (c *CustomerAuth) Logout(ctx context.Context, principal *Principal) error {
	return c.deps.Auth.Logout(ctx, principal)
}

// RequestPasswordReset never tells whether the email exists
func (c *CustomerAuth) RequestPasswordReset(ctx context.Context, email string) error {
	return c.resetRequest.Execute(ctx, InitializePasswordResetMessage{Email: email})
}

func (c *CustomerAuth) ResetPassword(ctx context.Context, msg FinalizePasswordResetMessage) error {
	return c.resetFinalize.Execute(ctx, msg)
}

func (c *CustomerAuth) ResendVerification(ctx context.Context, email string) error {
	return c.resend.Execute(ctx, ResendVerificationMessage{Email: email})
}

func newDefaultAddress(account *Account, msg AddressMessage, now time.Time) *CustomerAddress {
	label := strings.TrimSpace(msg.Label)
	if label == "" {
		label = defaultAddressLabel
	}
	return &CustomerAddress{
		ID:           newID(),
		AccountID:    account.ID,
		Label:        label,
		AddressLine1: strings.TrimSpace(msg.AddressLine1),
		AddressLine2: strings.TrimSpace(msg.AddressLine2),
		City:         strings.TrimSpace(msg.City),
		PostalCode:   strings.TrimSpace(msg.PostalCode),
		Country:      strings.TrimSpace(msg.Country),
		IsDefault:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// availability pairs a unique field with its existence check
type availability struct {
	field  string
	exists func() (bool, error)
}

// checkAvailable runs the checks in order and reports the first taken field
func checkAvailable(ctx context.Context, checks ...availability) error {
	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return err
		}
		taken, err := check.exists()
		if err != nil {
			return err
		}
		if taken {
			return NewDuplicateResource(check.field)
		}
	}
	return nil
}
