package server_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goliatone/go-courier-auth/config"
	"github.com/goliatone/go-courier-auth/internal/logger"
	"github.com/goliatone/go-courier-auth/internal/server"
)

func newServer(t *testing.T) *server.Server {
	t.Helper()
	t.Setenv("JWT_SIGNING_KEY", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")
	t.Setenv("APP_PROFILES", "test")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "2")

	cfg, err := config.Parse()
	require.NoError(t, err)

	srv, err := server.New(context.Background(), cfg, logger.Wrap(zap.NewNop()))
	require.NoError(t, err)
	return srv
}

func TestServerRoutes(t *testing.T) {
	app := newServer(t).App()

	t.Run("health is public", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("profile needs a principal", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/courier/me", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage bearer token is rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/courier/me", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

func TestServerLimitsLogin(t *testing.T) {
	app := newServer(t).App()

	login := func() int {
		req := httptest.NewRequest("POST", "/api/v1/auth/login/customer", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusBadRequest, login())
	assert.Equal(t, fiber.StatusBadRequest, login())
	assert.Equal(t, fiber.StatusTooManyRequests, login())
}
