// Package logger adapts zap to the printf style auth.Logger
package logger

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	auth "github.com/goliatone/go-courier-auth"
)

// Logger implements auth.Logger on top of a sugared zap logger
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a development logger for everything but prod
func New(environment, level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	zcfg := zap.NewDevelopmentConfig()
	if environment == auth.EnvironmentProd {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return Wrap(l), nil
}

// Wrap adapts an existing zap logger
func Wrap(l *zap.Logger) *Logger {
	return &Logger{sugar: l.Sugar()}
}

func (l *Logger) Debug(format string, args ...any) { l.sugar.Debugf(format, args...) }

func (l *Logger) Info(format string, args ...any) { l.sugar.Infof(format, args...) }

func (l *Logger) Warn(format string, args ...any) { l.sugar.Warnf(format, args...) }

func (l *Logger) Error(format string, args ...any) { l.sugar.Errorf(format, args...) }

// Named returns a child logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name)}
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// RequestLogger logs one line per request. Query strings are left out
// since verification tokens travel in them.
func (l *Logger) RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		fields := []any{
			"method", c.Method(),
			"path", c.Path(),
			"ip", c.IP(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start),
		}
		if err != nil {
			l.sugar.Errorw("http request error", append(fields, "error", err)...)
			return err
		}
		l.sugar.Infow("http request", fields...)
		return nil
	}
}

var _ auth.Logger = (*Logger)(nil)
