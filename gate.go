package auth

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-courier-auth/middleware/jwtware"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
)

// DefaultPublicPaths bypass the gate entirely
var DefaultPublicPaths = []string{
	"/api/v1/auth/register",
	"/api/v1/auth/verify",
	"/api/v1/auth/login",
	"/api/v1/auth/setup-account",
	"/api/v1/auth/password-reset",
	"/api/v1/auth/refresh",
	"/health",
	"/docs",
	"/swagger",
}

// AccountLookup is what the gate needs to resolve a principal
type AccountLookup interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*Account, error)
}

// GateOption customizes the jwtware config built by NewAuthGate
type GateOption func(*jwtware.Config)

// WithGateTimeout bounds the account lookup
func WithGateTimeout(d time.Duration) GateOption {
	return func(cfg *jwtware.Config) {
		if d > 0 {
			cfg.Timeout = d
		}
	}
}

// WithTokenLookup sets where the bearer token is read from, e.g.
// "header:Authorization,cookie:access_token"
func WithTokenLookup(lookup string) GateOption {
	return func(cfg *jwtware.Config) {
		if lookup != "" {
			cfg.TokenLookup = lookup
		}
	}
}

// NewAuthGate wires the token codec and the account store into the
// request gate. Checks run in order: signature and expiry, audience,
// account status, then issuer.
func NewAuthGate(tokens TokenService, accounts AccountLookup, logger Logger, opts ...GateOption) router.MiddlewareFunc {
	logger = normalizeLogger(logger)

	cfg := jwtware.Config{
		Filter:            jwtware.PublicPrefixes(DefaultPublicPaths...),
		ContextKey:        LocalsClaimsKey,
		PrincipalKey:      LocalsPrincipalKey,
		TokenValidator:    gateValidator{AccessTokenValidator(tokens)},
		PrincipalResolver: principalResolver(accounts),
		ExpectedIssuer:    tokens.Issuer(),
		ContextEnricher:   ContextEnricherAdapter,
		TokenSummarizer:   tokens.Summarize,
		ErrorHandler:      gateErrorHandler(logger),
		Logger:            logger,
	}

	RegisterValidationListeners(&cfg, audienceListener(tokens.Audience()))

	for _, opt := range opts {
		opt(&cfg)
	}

	return jwtware.New(cfg)
}

// gateValidator narrows auth claims to the jwtware interface
type gateValidator struct {
	validator TokenValidator
}

func (g gateValidator) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := g.validator.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// audienceListener rejects access tokens minted for another audience
func audienceListener(audience string) ValidationListener {
	return func(_ router.Context, claims jwtware.AuthClaims) error {
		if audience == "" {
			return nil
		}
		if jc, ok := claims.(*JWTClaims); ok && !jc.HasAudience(audience) {
			return ErrAudienceMismatch
		}
		return nil
	}
}

func principalResolver(accounts AccountLookup) jwtware.PrincipalResolver {
	return func(ctx context.Context, claims jwtware.AuthClaims) (any, error) {
		authClaims, ok := claims.(AuthClaims)
		if !ok {
			return nil, ErrTokenMalformed
		}

		id, err := authClaims.AccountID()
		if err != nil {
			return nil, ErrTokenMalformed
		}

		account, err := accounts.GetByID(ctx, id.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return nil, ErrUnauthenticated
			}
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve principal")
		}

		if err := account.CheckActive(); err != nil {
			return nil, err
		}

		return NewPrincipal(account, authClaims), nil
	}
}

func gateErrorHandler(logger Logger) router.ErrorHandler {
	return func(ctx router.Context, err error) error {
		switch {
		case errors.Is(err, jwtware.ErrIssuerMismatch):
			err = ErrIssuerMismatch
		case HasTextCode(err, TextCodeTokenMalformed):
			err = ErrTokenMalformed
		}

		if StatusForError(err) >= router.StatusInternalServerError {
			logger.Error("auth gate failed closed: %v", err)
		}

		return SendError(ctx, err)
	}
}
