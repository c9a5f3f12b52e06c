package jwtware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup       = "header:Authorization"
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
	ErrIssuerMismatch        = errors.New("token issuer mismatch")
)

const defaultTimeout = 2 * time.Second

// TokenValidator interface for validating tokens without import cycles
// This mirrors the TokenService.Validate method from the auth package
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// AuthClaims interface for structured claims without import cycles
// This mirrors the AuthClaims interface from the auth package
type AuthClaims interface {
	Subject() string
	Role() string
	HasRole(roles ...string) bool
	GetIssuer() (string, error)
}

// PrincipalResolver loads the account behind validated claims and
// rejects it when it may not act (locked, disabled).
type PrincipalResolver func(ctx context.Context, claims AuthClaims) (any, error)

// ValidationListener is invoked after a token has been validated but before the principal is resolved.
type ValidationListener func(ctx router.Context, claims AuthClaims) error

// Logger is the subset of the auth logger the middleware needs
type Logger interface {
	Warn(format string, args ...any)
	Debug(format string, args ...any)
}

type Config struct {
	// Filter skips the middleware entirely when it returns true
	Filter func(router.Context) bool
	// SuccessHandler replaces the call to the next handler
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	ContextKey     string
	PrincipalKey   string
	TokenLookup    string
	AuthScheme     string

	// TokenValidator is required for token validation
	TokenValidator TokenValidator

	// PrincipalResolver is optional. When set its error aborts the request.
	PrincipalResolver PrincipalResolver

	// ExpectedIssuer, if set, must match the iss claim. Checked after
	// the principal so account status errors win.
	ExpectedIssuer string

	// Timeout bounds the principal lookup
	Timeout time.Duration

	// ContextEnricher is an optional function to propagate claims to the standard
	// Go context. If provided, it will be called after successful token validation.
	ContextEnricher func(c context.Context, claims AuthClaims, principal any) context.Context

	// ValidationListeners are invoked after token validation succeeds.
	ValidationListeners []ValidationListener

	// TokenSummarizer renders a log safe description of a rejected token
	TokenSummarizer func(token string) string

	Logger Logger
}

// New returns the authentication gate. Requests without a bearer token
// pass through unauthenticated; route guards decide whether that is ok.
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			raw, err := ExtractRawTokenFromContext(ctx, extractors)
			if err != nil || raw == "" {
				return next(ctx)
			}

			claims, err := cfg.TokenValidator.Validate(raw)
			if err != nil {
				cfg.reject(raw, err)
				return cfg.ErrorHandler(ctx, err)
			}

			if err := cfg.runValidationListeners(ctx, claims); err != nil {
				cfg.reject(raw, err)
				return cfg.ErrorHandler(ctx, err)
			}

			var principal any
			if cfg.PrincipalResolver != nil {
				lookupCtx, cancel := context.WithTimeout(ctx.Context(), cfg.Timeout)
				principal, err = cfg.PrincipalResolver(lookupCtx, claims)
				cancel()
				if err != nil {
					cfg.reject(raw, err)
					return cfg.ErrorHandler(ctx, err)
				}
			}

			if cfg.ExpectedIssuer != "" {
				if iss, _ := claims.GetIssuer(); iss != cfg.ExpectedIssuer {
					cfg.Logger.Warn("issuer mismatch: expected=%s actual=%s", cfg.ExpectedIssuer, iss)
					return cfg.ErrorHandler(ctx, ErrIssuerMismatch)
				}
			}

			ctx.Locals(cfg.ContextKey, claims)
			if principal != nil {
				ctx.Locals(cfg.PrincipalKey, principal)
			}

			// if a context enricher we use it to propagate claims to the standard context
			if cfg.ContextEnricher != nil {
				ctx.SetContext(cfg.ContextEnricher(ctx.Context(), claims, principal))
			}

			if cfg.SuccessHandler != nil {
				return cfg.SuccessHandler(ctx)
			}
			return next(ctx)
		}
	}
}

func (cfg *Config) reject(raw string, err error) {
	cfg.Logger.Warn("rejected bearer token: %v (%s)", err, cfg.TokenSummarizer(raw))
}

func ExtractRawTokenFromContext(ctx router.Context, extractors []JWTExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			status := router.StatusUnauthorized
			message := "Invalid or expired token"
			if errors.Is(err, ErrIssuerMismatch) {
				status = router.StatusForbidden
				message = "Security validation failed"
			}
			return c.JSON(status, map[string]any{"success": false, "message": message})
		}
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "claims"
	}

	if cfg.PrincipalKey == "" {
		cfg.PrincipalKey = "principal"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.TokenSummarizer == nil {
		cfg.TokenSummarizer = func(string) string { return "redacted" }
	}

	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}

	return cfg
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(ctx router.Context, claims AuthClaims) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, claims); err != nil {
			return err
		}
	}
	return nil
}

// PublicPrefixes builds a Filter that skips the listed paths and anything
// below them. Matching stops at segment boundaries, "/docs" covers
// "/docs/index.html" but not "/docsearch".
func PublicPrefixes(prefixes ...string) func(router.Context) bool {
	return func(ctx router.Context) bool {
		return MatchesPrefix(ctx.Path(), prefixes...)
	}
}

// MatchesPrefix reports whether path equals one of prefixes or sits below it
func MatchesPrefix(path string, prefixes ...string) bool {
	for _, p := range prefixes {
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// GetExtractors parses a lookup such as "header:Authorization,cookie:jwt,query:access_token"
func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

type JWTExtractor func(c router.Context) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
func jwtFromHeader(header string, authScheme string) func(c router.Context) (string, error) {
	authScheme = strings.TrimSpace(authScheme)
	return func(c router.Context) (string, error) {
		a := c.Header(header)
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l+1:]), nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
