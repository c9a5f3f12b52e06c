package auth

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// FlowKind selects one of the account flows
type FlowKind string

const (
	FlowCustomer FlowKind = "customer"
	FlowCourier  FlowKind = "courier"
)

// AuthFlow is the capability set shared by the customer and courier flows
type AuthFlow interface {
	Kind() FlowKind
	Login(ctx context.Context, identifier, password string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*LoginResult, error)
	Logout(ctx context.Context, principal *Principal) error
	VerifyEmail(ctx context.Context, token string) (bool, error)
}

var (
	_ AuthFlow = (*CustomerAuth)(nil)
	_ AuthFlow = (*CourierOnboarding)(nil)
)

// Flows holds one implementation per FlowKind
type Flows struct {
	Customer *CustomerAuth
	Courier  *CourierOnboarding
}

// For selects the flow for kind
func (f Flows) For(kind FlowKind) (AuthFlow, error) {
	switch kind {
	case FlowCustomer:
		if f.Customer != nil {
			return f.Customer, nil
		}
	case FlowCourier:
		if f.Courier != nil {
			return f.Courier, nil
		}
	}
	return nil, goerrors.New(fmt.Sprintf("unknown account flow %q", kind), goerrors.CategoryNotFound).
		WithTextCode("FLOW_NOT_FOUND").
		WithCode(goerrors.CodeNotFound)
}

// Deps bundles the collaborators both flows are built from
type Deps struct {
	Repos        RepositoryManager
	Config       Config
	Tokens       TokenService
	Verification *VerificationTokenStore
	Refresh      *RefreshTokenStore
	Auth         *Auther
	Hasher       PasswordAuthenticator
	Notifier     Notifier
	Activity     ActivitySink
	Logger       Logger
	Clock        Clock
	Links        LinkBuilder
}

// DepsOption customizes NewDeps
type DepsOption func(*Deps)

func WithDepsLogger(l Logger) DepsOption {
	return func(d *Deps) { d.Logger = l }
}

func WithDepsHasher(h PasswordAuthenticator) DepsOption {
	return func(d *Deps) { d.Hasher = h }
}

func WithDepsNotifier(n Notifier) DepsOption {
	return func(d *Deps) { d.Notifier = n }
}

func WithDepsActivitySink(s ActivitySink) DepsOption {
	return func(d *Deps) { d.Activity = s }
}

func WithDepsClock(c Clock) DepsOption {
	return func(d *Deps) { d.Clock = c }
}

// NewDeps builds the token stores and the authenticator around repos and
// tokens. Missing collaborators get no-op or default implementations.
func NewDeps(repos RepositoryManager, cfg Config, tokens TokenService, opts ...DepsOption) Deps {
	d := Deps{
		Repos:  repos,
		Config: cfg,
		Tokens: tokens,
	}

	for _, opt := range opts {
		opt(&d)
	}

	d.Logger = normalizeLogger(d.Logger)
	d.Clock = normalizeClock(d.Clock)
	d.Notifier = normalizeNotifier(d.Notifier)
	d.Activity = normalizeActivitySink(d.Activity)
	if d.Hasher == nil {
		d.Hasher = NewBcryptHasher(0)
	}

	d.Links = NewLinkBuilder(cfg.GetFrontendURL())

	d.Verification = NewVerificationTokenStore(repos, cfg).
		WithLogger(d.Logger).
		WithClock(d.Clock)

	d.Refresh = NewRefreshTokenStore(repos, tokens, cfg.GetRefreshTokenTTL()).
		WithLogger(d.Logger).
		WithClock(d.Clock)

	provider := NewAccountProvider(repos.Accounts(), d.Hasher).WithLogger(d.Logger)

	d.Auth = NewAuthenticator(provider, repos, tokens, d.Refresh, cfg.GetAccessTokenTTL()).
		WithLogger(d.Logger).
		WithActivitySink(d.Activity).
		WithClock(d.Clock)

	return d
}

// NewFlows builds both account flows from the same dependencies
func NewFlows(d Deps) Flows {
	return Flows{
		Customer: NewCustomerAuth(d),
		Courier:  NewCourierOnboarding(d),
	}
}

func (d Deps) notify(ctx context.Context, n Notification) {
	sendNotification(ctx, d.Notifier, d.Logger, n)
}

func (d Deps) record(ctx context.Context, event ActivityEvent) {
	recordActivity(ctx, d.Activity, d.Logger, d.Clock(), event)
}
