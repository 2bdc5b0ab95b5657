// Package notify delivers the "get off here" alert. The subsystem only
// consumes presentation; channel configuration lives with the host platform.
package notify

import (
	"context"
	"log"

	"stopalarm/internal/observability/metrics"
)

// Notifier presents an alert to the user.
type Notifier interface {
	Present(ctx context.Context, title, body string) error
}

// LogNotifier writes alerts to the application log. Used as the fallback
// presentation channel and in tests.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier constructs a notifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Present implements Notifier.
func (n *LogNotifier) Present(_ context.Context, title, body string) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Printf("alert: %s: %s", title, body)
	return nil
}

// MultiNotifier fans an alert out to multiple notifiers. The first failure is
// returned after every notifier has been attempted.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Present forwards the alert to all notifiers.
func (m *MultiNotifier) Present(ctx context.Context, title, body string) error {
	if m == nil {
		return nil
	}
	var firstErr error
	for _, notifier := range m.notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Present(ctx, title, body); err != nil {
			metrics.IncNotify(metrics.ResultError)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.IncNotify(metrics.ResultSuccess)
	}
	return firstErr
}
