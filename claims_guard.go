package auth

import (
	"github.com/goliatone/go-router"
)

// RequireAuthenticated rejects requests the gate did not authenticate
func RequireAuthenticated() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if _, ok := PrincipalFromRouter(ctx); !ok {
				return SendError(ctx, ErrUnauthenticated)
			}
			return next(ctx)
		}
	}
}

// RequireRole is the route level guard. No principal is a 401, a
// principal with none of roles is a 403.
func RequireRole(roles ...Role) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			p, ok := PrincipalFromRouter(ctx)
			if !ok {
				return SendError(ctx, ErrUnauthenticated)
			}
			if !p.HasRole(roles...) {
				return SendError(ctx, ErrForbidden.Clone().WithMetadata(map[string]any{"role": string(p.Role)}))
			}
			return next(ctx)
		}
	}
}
