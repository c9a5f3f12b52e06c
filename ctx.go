package auth

import (
	"context"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

var principalCtxKey = &contextKey{"principal"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// Locals keys used by the gate on the request context
const (
	LocalsClaimsKey    = "claims"
	LocalsPrincipalKey = "principal"
)

// Principal is the authenticated identity of a single request
type Principal struct {
	AccountID uuid.UUID
	Username  string
	Email     string
	Role      Role
	Claims    AuthClaims
}

// NewPrincipal builds the principal from a freshly loaded account
func NewPrincipal(account *Account, claims AuthClaims) *Principal {
	return &Principal{
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
		Role:      account.Role,
		Claims:    claims,
	}
}

// HasRole reports whether the principal holds any of roles
func (p *Principal) HasRole(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the principal in the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(*Principal)
	return p, ok && p != nil
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(ctx context.Context, claims AuthClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// PrincipalFromRouter reads the principal the gate stored on the request
func PrincipalFromRouter(ctx router.Context) (*Principal, bool) {
	if p, ok := ctx.Locals(LocalsPrincipalKey).(*Principal); ok && p != nil {
		return p, true
	}
	return PrincipalFromContext(ctx.Context())
}
