package logger_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/goliatone/go-courier-auth/internal/logger"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := logger.New("dev", "chatty")
	assert.Error(t, err)

	l, err := logger.New("prod", "warn")
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestPrintfAdapter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := logger.Wrap(zap.New(core))

	l.Info("issued %s token for %s", "ACCOUNT_SETUP", "acc-1")
	l.Error("notify failed: %v", assert.AnError)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "issued ACCOUNT_SETUP token for acc-1", entries[0].Message)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}

func TestRequestLoggerOmitsQuery(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := logger.Wrap(zap.New(core))

	app := fiber.New()
	app.Use(l.RequestLogger())
	app.Get("/verify", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest("GET", "/verify?token=secret-token", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/verify", fields["path"])
	assert.Equal(t, int64(fiber.StatusNoContent), fields["status"])
	assert.NotContains(t, fields["path"], "secret-token")
}
