package jwtware_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-courier-auth/middleware/jwtware"
)

type stubClaims struct {
	sub    string
	role   string
	issuer string
}

func (c stubClaims) Subject() string { return c.sub }

func (c stubClaims) Role() string { return c.role }

func (c stubClaims) HasRole(roles ...string) bool {
	for _, r := range roles {
		if r == c.role {
			return true
		}
	}
	return false
}

func (c stubClaims) GetIssuer() (string, error) { return c.issuer, nil }

// stubValidator accepts "good-<role>" tokens issued by courigistics_test
type stubValidator struct {
	calls int
}

func (v *stubValidator) Validate(token string) (jwtware.AuthClaims, error) {
	v.calls++
	switch token {
	case "good-courier":
		return stubClaims{sub: "courier-1", role: "COURIER", issuer: "courigistics_test"}, nil
	case "foreign":
		return stubClaims{sub: "courier-1", role: "COURIER", issuer: "courigistics_prod"}, nil
	}
	return nil, errors.New("bad token")
}

type ctxKey struct{}

func newServer() (*fiber.App, router.Router[*fiber.App]) {
	app := fiber.New()
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return router.DefaultFiberOptions(app)
	})
	return app, srv.Router()
}

func newApp(cfg jwtware.Config) *fiber.App {
	app, r := newServer()
	r.Use(jwtware.New(cfg))
	r.Get("/*", func(ctx router.Context) error {
		claims, _ := ctx.Locals("claims").(jwtware.AuthClaims)
		if claims == nil {
			return ctx.SendString("anonymous")
		}
		return ctx.SendString(claims.Subject())
	})
	return app
}

func do(t *testing.T, app *fiber.App, path string, header map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

//--------------------------------------------------------------------------------------
// Tests
//--------------------------------------------------------------------------------------

func TestJWTWare_MissingTokenPassesThrough(t *testing.T) {
	validator := &stubValidator{}
	app := newApp(jwtware.Config{TokenValidator: validator})

	status, body := do(t, app, "/orders", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "anonymous", body)

	status, body = do(t, app, "/orders", map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "anonymous", body)
	assert.Zero(t, validator.calls)
}

func TestJWTWare_HeaderExtraction(t *testing.T) {
	app := newApp(jwtware.Config{TokenValidator: &stubValidator{}})

	status, body := do(t, app, "/orders", map[string]string{"Authorization": "Bearer good-courier"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "courier-1", body)

	status, body = do(t, app, "/orders", map[string]string{"Authorization": "bearer good-courier"})
	assert.Equal(t, fiber.StatusOK, status, "scheme is case insensitive")
	assert.Equal(t, "courier-1", body)
}

func TestJWTWare_OtherExtractors(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: &stubValidator{},
		TokenLookup:    "header:Authorization, query:access_token, cookie:jwt",
	})

	status, body := do(t, app, "/orders?access_token=good-courier", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "courier-1", body)

	status, body = do(t, app, "/orders", map[string]string{"Cookie": "jwt=good-courier"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "courier-1", body)
}

func TestJWTWare_InvalidToken(t *testing.T) {
	app := newApp(jwtware.Config{TokenValidator: &stubValidator{}})

	status, body := do(t, app, "/orders", map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Contains(t, body, "Invalid or expired token")
}

func TestJWTWare_Filter(t *testing.T) {
	validator := &stubValidator{}
	app := newApp(jwtware.Config{
		TokenValidator: validator,
		Filter:         jwtware.PublicPrefixes("/health", "/api/v1/auth/login"),
	})

	status, body := do(t, app, "/api/v1/auth/login/courier", map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "anonymous", body)
	assert.Zero(t, validator.calls)

	status, _ = do(t, app, "/api/v1/auth/logout", map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = do(t, app, "/api/v1/auth/loginfoo", map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, fiber.StatusUnauthorized, status, "prefix must end on a segment")

	status, _ = do(t, app, "/healthz", map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestMatchesPrefix(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{path: "/docs", want: true},
		{path: "/docs/", want: true},
		{path: "/docs/index.html", want: true},
		{path: "/docsearch", want: false},
		{path: "/doc", want: false},
		{path: "/api/v1/auth/login/courier", want: true},
		{path: "/api/v1/auth/loginfoo", want: false},
		{path: "/", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.want, jwtware.MatchesPrefix(tc.path, "/docs/", "/api/v1/auth/login"))
		})
	}

	assert.False(t, jwtware.MatchesPrefix("/anything", "", "/"))
}

func TestJWTWare_IssuerMismatch(t *testing.T) {
	var seen error
	app := newApp(jwtware.Config{
		TokenValidator: &stubValidator{},
		ExpectedIssuer: "courigistics_test",
	})

	status, body := do(t, app, "/orders", map[string]string{"Authorization": "Bearer foreign"})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Contains(t, body, "Security validation failed")

	custom := newApp(jwtware.Config{
		TokenValidator: &stubValidator{},
		ExpectedIssuer: "courigistics_test",
		ErrorHandler: func(ctx router.Context, err error) error {
			seen = err
			return ctx.Status(fiber.StatusTeapot).SendString("teapot")
		},
	})
	status, _ = do(t, custom, "/orders", map[string]string{"Authorization": "Bearer foreign"})
	assert.Equal(t, fiber.StatusTeapot, status)
	assert.ErrorIs(t, seen, jwtware.ErrIssuerMismatch)
}

func TestJWTWare_PrincipalResolver(t *testing.T) {
	t.Run("principal stored in locals and context", func(t *testing.T) {
		app, r := newServer()
		r.Use(jwtware.New(jwtware.Config{
			TokenValidator: &stubValidator{},
			PrincipalResolver: func(_ context.Context, claims jwtware.AuthClaims) (any, error) {
				return "principal:" + claims.Subject(), nil
			},
			ContextEnricher: func(ctx context.Context, _ jwtware.AuthClaims, principal any) context.Context {
				return context.WithValue(ctx, ctxKey{}, principal)
			},
		}))
		r.Get("/me", func(ctx router.Context) error {
			local, _ := ctx.Locals("principal").(string)
			fromCtx, _ := ctx.Context().Value(ctxKey{}).(string)
			return ctx.SendString(local + "|" + fromCtx)
		})

		status, body := do(t, app, "/me", map[string]string{"Authorization": "Bearer good-courier"})
		assert.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "principal:courier-1|principal:courier-1", body)
	})

	t.Run("resolver error aborts before the issuer check", func(t *testing.T) {
		var seen error
		locked := errors.New("account locked")
		app := newApp(jwtware.Config{
			TokenValidator: &stubValidator{},
			ExpectedIssuer: "courigistics_test",
			PrincipalResolver: func(context.Context, jwtware.AuthClaims) (any, error) {
				return nil, locked
			},
			ErrorHandler: func(ctx router.Context, err error) error {
				seen = err
				return ctx.Status(fiber.StatusForbidden).SendString("forbidden")
			},
		})

		status, _ := do(t, app, "/orders", map[string]string{"Authorization": "Bearer foreign"})
		assert.Equal(t, fiber.StatusForbidden, status)
		assert.ErrorIs(t, seen, locked)
	})
}

func TestJWTWare_ValidationListeners(t *testing.T) {
	var roles []string
	denied := errors.New("listener denied")

	app := newApp(jwtware.Config{
		TokenValidator: &stubValidator{},
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(_ router.Context, claims jwtware.AuthClaims) error {
				roles = append(roles, claims.Role())
				return nil
			},
		},
	})
	status, _ := do(t, app, "/orders", map[string]string{"Authorization": "Bearer good-courier"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []string{"COURIER"}, roles)

	blocking := newApp(jwtware.Config{
		TokenValidator: &stubValidator{},
		ValidationListeners: []jwtware.ValidationListener{
			func(router.Context, jwtware.AuthClaims) error { return denied },
		},
	})
	status, _ = do(t, blocking, "/orders", map[string]string{"Authorization": "Bearer good-courier"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestJWTWare_GetDefaultConfig(t *testing.T) {
	assert.Panics(t, func() { jwtware.GetDefaultConfig() })

	cfg := jwtware.GetDefaultConfig(jwtware.Config{TokenValidator: &stubValidator{}})
	assert.Equal(t, "claims", cfg.ContextKey)
	assert.Equal(t, "principal", cfg.PrincipalKey)
	assert.Equal(t, "header:Authorization", cfg.TokenLookup)
	assert.Equal(t, "Bearer", cfg.AuthScheme)
	assert.Positive(t, cfg.Timeout)
	assert.NotNil(t, cfg.Logger)
	assert.Equal(t, "redacted", cfg.TokenSummarizer("anything"))
}
