package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService mints and verifies signed bearer tokens
type TokenService interface {
	TokenValidator
	Mint(identity Identity, kind TokenKind, ttl time.Duration) (string, error)
	ParseAndVerify(tokenString string) (*JWTClaims, error)
	IsValid(tokenString, expectedSubject string) bool
	Issuer() string
	Audience() string
	Summarize(tokenString string) string
}

// TokenServiceImpl implements the TokenService interface with HMAC keys
type TokenServiceImpl struct {
	signingKey  []byte
	issuer      string
	audience    string
	environment string
	clock       Clock
	logger      Logger
}

var _ TokenService = (*TokenServiceImpl)(nil)

// NewTokenService creates a new TokenService instance. The issuer is
// derived from the application name and environment.
func NewTokenService(signingKey []byte, appName, environment, audience string, logger Logger) *TokenServiceImpl {
	if environment == "" {
		environment = EnvironmentDefault
	}
	return &TokenServiceImpl{
		signingKey:  signingKey,
		issuer:      ComputeIssuer(appName, environment),
		audience:    audience,
		environment: environment,
		clock:       time.Now,
		logger:      normalizeLogger(logger),
	}
}

// NewTokenServiceFromConfig resolves the signing key and panics if it is unusable
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenServiceImpl {
	key := MustSigningKey(NewBase64KeyProvider(cfg.GetSigningKey()))
	return NewTokenService(key, cfg.GetApplicationName(), cfg.GetEnvironment(), cfg.GetFrontendURL(), logger)
}

// WithClock swaps the time source
func (ts *TokenServiceImpl) WithClock(c Clock) *TokenServiceImpl {
	ts.clock = normalizeClock(c)
	return ts
}

func (ts *TokenServiceImpl) Issuer() string { return ts.issuer }

func (ts *TokenServiceImpl) Audience() string { return ts.audience }

// Mint creates a signed token of the given kind for identity
func (ts *TokenServiceImpl) Mint(identity Identity, kind TokenKind, ttl time.Duration) (string, error) {
	if identity == nil || identity.ID() == "" {
		return "", goerrors.New("identity is required", goerrors.CategoryBadInput)
	}
	if kind != TokenKindAccess && kind != TokenKindRefresh {
		return "", goerrors.New(fmt.Sprintf("unknown token kind %q", kind), goerrors.CategoryBadInput)
	}
	if ttl <= 0 {
		return "", goerrors.New("token TTL must be positive", goerrors.CategoryBadInput)
	}

	now := ts.clock()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  jwt.ClaimStrings{ts.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: kind,
		Env:       ts.environment,
		UserRole:  identity.Role(),
		Username:  identity.Username(),
		Email:     identity.Email(),
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

var errUnexpectedSigningMethod = errors.New("unexpected signing method")

// ParseAndVerify checks signature and expiry. Issuer and audience are
// left to IsValid and the request gate.
func (ts *TokenServiceImpl) ParseAndVerify(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("TokenService rejected signing method %v", t.Header["alg"])
			return nil, errUnexpectedSigningMethod
		}
		return ts.signingKey, nil
	},
		jwt.WithTimeFunc(ts.clock),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
				WithTextCode(ErrTokenMalformed.TextCode).
				WithCode(ErrTokenMalformed.Code)
		}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.Subject() == "" {
		return nil, ErrTokenMalformed
	}

	if claims.TokenType != TokenKindAccess && claims.TokenType != TokenKindRefresh {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// Validate satisfies TokenValidator
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	claims, err := ts.ParseAndVerify(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// IsValid requires subject, expiry, issuer and audience to all hold.
// Which check failed is only logged.
func (ts *TokenServiceImpl) IsValid(tokenString, expectedSubject string) bool {
	claims, err := ts.ParseAndVerify(tokenString)
	if err != nil {
		ts.logger.Debug("token rejected: %s (%s)", textCodeOf(err), ts.Summarize(tokenString))
		return false
	}

	switch {
	case claims.Subject() != expectedSubject:
		ts.logger.Debug("token rejected: subject mismatch (%s)", ts.Summarize(tokenString))
		return false
	case !ts.clock().Before(claims.Expires()):
		ts.logger.Debug("token rejected: expired (%s)", ts.Summarize(tokenString))
		return false
	case claims.Issuer != ts.issuer:
		ts.logger.Debug("token rejected: issuer mismatch (%s)", ts.Summarize(tokenString))
		return false
	case !claims.HasAudience(ts.audience):
		ts.logger.Debug("token rejected: audience mismatch (%s)", ts.Summarize(tokenString))
		return false
	}

	return true
}

// Summarize renders a redacted description safe for logs. The token
// is not verified.
func (ts *TokenServiceImpl) Summarize(tokenString string) string {
	return SummarizeToken(tokenString)
}

// SummarizeToken returns "issuer=…, env=…, type=…, exp=…" without the secret parts
func SummarizeToken(tokenString string) string {
	claims := &JWTClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "unparseable token"
	}

	exp := "none"
	if !claims.Expires().IsZero() {
		exp = claims.Expires().UTC().Format(time.RFC3339)
	}

	return fmt.Sprintf("issuer=%s, env=%s, type=%s, exp=%s", claims.Issuer, claims.Env, claims.TokenType, exp)
}
