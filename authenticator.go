package auth

import (
	"context"
	"slices"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LoginResult is what a successful login hands back to the client
type LoginResult struct {
	TokenPair
	AccountID uuid.UUID `json:"-"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
}

// Auther runs the session operations both account flows share:
// password login, refresh rotation and logout.
type Auther struct {
	provider     IdentityProvider
	repos        RepositoryManager
	tokenService TokenService
	refresh      *RefreshTokenStore
	accessTTL    time.Duration
	activitySink ActivitySink
	logger       Logger
	clock        Clock
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, repos RepositoryManager, tokenService TokenService, refresh *RefreshTokenStore, accessTTL time.Duration) *Auther {
	return &Auther{
		provider:     provider,
		repos:        repos,
		tokenService: tokenService,
		refresh:      refresh,
		accessTTL:    accessTTL,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		clock:        time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

func (s *Auther) WithClock(c Clock) *Auther {
	s.clock = normalizeClock(c)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login checks the credentials and opens a new session. When roles are
// given the account must hold one of them. Earlier sessions of the
// account stay valid.
func (s *Auther) Login(ctx context.Context, identifier, password string, roles ...Role) (*LoginResult, error) {
	account, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Debug("login failed: %s", textCodeOf(err))
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", "", map[string]any{
			"error": textCodeOf(err),
		})
		return nil, err
	}

	if len(roles) > 0 && !slices.Contains(roles, account.Role) {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, accountActor(account), account.ID.String(), account.Role, map[string]any{
			"error": TextCodeWrongRole,
		})
		return nil, ErrWrongRole.Clone().WithMetadata(map[string]any{"role": string(account.Role)})
	}

	now := s.clock()
	access, _, err := MintAccessToken(s.tokenService, NewAccountIdentity(account), s.accessTTL, now)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint access token")
	}

	var refresh string
	err = s.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if refresh, err = s.refresh.CreateTx(ctx, tx, account); err != nil {
			return err
		}
		return s.repos.Accounts().TrackSuccessfulLoginTx(ctx, tx, account, now)
	})
	if err != nil {
		return nil, unwrapOrInternal(err, "failed to open session")
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, accountActor(account), account.ID.String(), account.Role, nil)

	return &LoginResult{
		TokenPair: *newTokenPair(access, refresh, s.accessTTL, now),
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
		Role:      account.Role,
	}, nil
}

// Refresh rotates the refresh token and mints a fresh access token
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	session, err := s.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, unwrapOrInternal(err, "failed to rotate refresh token")
	}

	now := s.clock()
	account := session.Account
	access, _, err := MintAccessToken(s.tokenService, NewAccountIdentity(account), s.accessTTL, now)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint access token")
	}

	s.emitAuthEvent(ctx, ActivityEventTokenRefreshed, accountActor(account), account.ID.String(), account.Role, nil)

	return &LoginResult{
		TokenPair: *newTokenPair(access, session.RefreshToken, s.accessTTL, now),
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
		Role:      account.Role,
	}, nil
}

// Logout revokes every refresh token of the principal's account
func (s *Auther) Logout(ctx context.Context, principal *Principal) error {
	if principal == nil {
		return ErrUnauthenticated
	}

	n, err := s.refresh.InvalidateAll(ctx, principal.AccountID)
	if err != nil {
		return unwrapOrInternal(err, "failed to revoke sessions")
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, ActorRef{ID: principal.AccountID.String(), Type: "account"},
		principal.AccountID.String(), principal.Role, map[string]any{"revoked": n})

	return nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, accountID string, role Role, metadata map[string]any) {
	recordActivity(ctx, s.activitySink, s.logger, s.clock(), ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		AccountID: accountID,
		Role:      role,
		Metadata:  metadata,
	})
}

func accountActor(account *Account) ActorRef {
	if account == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: account.ID.String(), Type: "account"}
}

// unwrapOrInternal keeps typed errors and hides everything else behind
// an internal error
func unwrapOrInternal(err error, msg string) error {
	if err == nil {
		return nil
	}
	err = MapConstraintError(err)
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
