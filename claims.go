package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthClaims is the read side of a verified bearer token
type AuthClaims interface {
	Subject() string
	AccountID() (uuid.UUID, error)
	Role() string
	Kind() TokenKind
	Environment() string
	HasRole(roles ...string) bool
	Expires() time.Time
	IssuedAt() time.Time
	GetIssuer() (string, error)
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	TokenType TokenKind `json:"typ"`
	Env       string    `json:"env"`
	UserRole  string    `json:"role,omitempty"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// AccountID parses the subject as an account id
func (c *JWTClaims) AccountID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.Subject)
}

// Role returns the role at mint time
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// Kind returns the typ claim
func (c *JWTClaims) Kind() TokenKind {
	return c.TokenType
}

// Environment returns the env claim
func (c *JWTClaims) Environment() string {
	return c.Env
}

// HasRole checks the role claim against any of the given roles
func (c *JWTClaims) HasRole(roles ...string) bool {
	return slices.Contains(roles, c.UserRole)
}

// HasAudience reports whether aud contains the given value
func (c *JWTClaims) HasAudience(aud string) bool {
	return slices.Contains(c.RegisteredClaims.Audience, aud)
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
