package auth

import (
	"context"

	"github.com/goliatone/go-courier-auth/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter stores claims and the resolved principal in the
// standard context so services can read them without the router.
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims, principal any) context.Context {
	if authClaims, ok := claims.(AuthClaims); ok {
		c = WithClaimsContext(c, authClaims)
	}

	if p, ok := principal.(*Principal); ok && p != nil {
		c = WithPrincipal(c, p)
	}

	return c
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
