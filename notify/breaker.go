package notify

import (
	"context"
	"errors"
	"time"

	auth "github.com/goliatone/go-courier-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/sony/gobreaker"
)

var ErrBreakerOpen = goerrors.New("notification transport is unavailable", goerrors.CategoryExternal).
	WithTextCode("NOTIFIER_UNAVAILABLE")

type BreakerSettings struct {
	Name        string
	MaxFailures uint32
	// Timeout is how long the breaker stays open before probing again
	Timeout  time.Duration
	Interval time.Duration
}

// BreakerNotifier stops calling a failing transport until it recovers
type BreakerNotifier struct {
	next auth.Notifier
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerNotifier(next auth.Notifier, s BreakerSettings, logger auth.Logger) *BreakerNotifier {
	logger = loggerOr(logger)
	if s.Name == "" {
		s.Name = "notifier"
	}
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from, to)
		},
	}

	return &BreakerNotifier{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerNotifier) Send(ctx context.Context, n auth.Notification) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Send(ctx, n)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen.Clone().WithMetadata(map[string]any{"breaker": b.cb.Name()})
	}
	return err
}

func (b *BreakerNotifier) State() gobreaker.State {
	return b.cb.State()
}
