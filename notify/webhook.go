package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// WelcomePayload is the body posted to the welcome webhook.
type WelcomePayload struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	AppName     string `json:"appName"`
}

// WebhookNotifier posts a WelcomePayload for every new account.
type WebhookNotifier struct {
	url     string
	appName string
	poster  *poster
}

// NewWebhookNotifier creates a notifier posting to cfg.WebhookURL.
func NewWebhookNotifier(cfg Config, client *http.Client, logger *slog.Logger) (*WebhookNotifier, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("%w: webhook URL required", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()
	return &WebhookNotifier{url: cfg.WebhookURL, appName: cfg.AppName, poster: newPoster(cfg, client, logger)}, nil
}

// Welcome implements account.Welcomer.
func (n *WebhookNotifier) Welcome(ctx context.Context, email, displayName string) error {
	payload, err := json.Marshal(WelcomePayload{Email: email, DisplayName: displayName, AppName: n.appName})
	if err != nil {
		return fmt.Errorf("failed to marshal welcome payload: %w", err)
	}
	return n.poster.post(ctx, n.url, payload, func(status int, body []byte) error {
		if status < 200 || status > 299 {
			return fmt.Errorf("%w: status=%d", ErrInvalidResponse, status)
		}
		return nil
	})
}
