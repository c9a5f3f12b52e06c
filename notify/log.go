package notify

import (
	"context"
	"sort"
	"strings"

	auth "github.com/goliatone/go-courier-auth"
)

// LogNotifier is the development notifier. Links carry live tokens, so
// only the variable names are logged.
type LogNotifier struct {
	logger auth.Logger
}

func NewLogNotifier(logger auth.Logger) *LogNotifier {
	return &LogNotifier{logger: loggerOr(logger)}
}

func (l *LogNotifier) Send(_ context.Context, n auth.Notification) error {
	keys := make([]string, 0, len(n.Variables))
	for k := range n.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	l.logger.Info("email %s to %s subject=%q vars=[%s]", n.Kind, n.Recipient, n.Subject, strings.Join(keys, ","))
	return nil
}
