// Package notify holds the delivery side of auth.Notifier: an async
// queue in front of the request path, a circuit breaker, and kafka
// publishers for email and activity events.
package notify

import (
	auth "github.com/goliatone/go-courier-auth"
)

var (
	_ auth.Notifier     = (*Dispatcher)(nil)
	_ auth.Notifier     = (*BreakerNotifier)(nil)
	_ auth.Notifier     = (*KafkaPublisher)(nil)
	_ auth.Notifier     = (*LogNotifier)(nil)
	_ auth.ActivitySink = (*KafkaActivitySink)(nil)
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func loggerOr(l auth.Logger) auth.Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
