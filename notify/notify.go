// Package notify delivers welcome notifications for accounts created through
// social sign-up. Delivery is best effort: callers run it off the request
// path and only log failures.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

// Welcomer is notified about a newly created account.
type Welcomer interface {
	Welcome(ctx context.Context, email, displayName string) error
}

// Multi fans a welcome out to several notifiers and joins their errors.
type Multi []Welcomer

// Welcome calls every notifier, even after a failure.
func (m Multi) Welcome(ctx context.Context, email, displayName string) error {
	var errs []error
	for _, w := range m {
		if err := w.Welcome(ctx, email, displayName); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

// Welcome does nothing.
func (Nop) Welcome(context.Context, string, string) error { return nil }

// New builds the notifiers enabled in cfg. Without any configured endpoint it
// returns Nop.
func New(cfg Config, client *http.Client, logger *slog.Logger) (Welcomer, error) {
	var m Multi
	if cfg.WebhookURL != "" {
		w, err := NewWebhookNotifier(cfg, client, logger)
		if err != nil {
			return nil, err
		}
		m = append(m, w)
	}
	if cfg.SlackWebhookURL != "" {
		s, err := NewSlackNotifier(cfg, client, logger)
		if err != nil {
			return nil, err
		}
		m = append(m, s)
	}

	switch len(m) {
	case 0:
		return Nop{}, nil
	case 1:
		return m[0], nil
	default:
		return m, nil
	}
}
