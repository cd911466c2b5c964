package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// SlackMessage is an incoming-webhook message.
type SlackMessage struct {
	Text      string `json:"text"`
	Channel   string `json:"channel,omitempty"`
	Username  string `json:"username,omitempty"`
	IconEmoji string `json:"icon_emoji,omitempty"`
}

// SlackNotifier announces new sign-ups in a Slack channel.
type SlackNotifier struct {
	url      string
	channel  string
	username string
	icon     string
	appName  string
	poster   *poster
}

// NewSlackNotifier creates a notifier posting to cfg.SlackWebhookURL.
func NewSlackNotifier(cfg Config, client *http.Client, logger *slog.Logger) (*SlackNotifier, error) {
	if cfg.SlackWebhookURL == "" {
		return nil, fmt.Errorf("%w: slack webhook URL required", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()
	return &SlackNotifier{
		url:      cfg.SlackWebhookURL,
		channel:  cfg.SlackChannel,
		username: cfg.SlackUsername,
		icon:     cfg.SlackIconEmoji,
		appName:  cfg.AppName,
		poster:   newPoster(cfg, client, logger),
	}, nil
}

// Welcome implements account.Welcomer.
func (n *SlackNotifier) Welcome(ctx context.Context, email, displayName string) error {
	msg := SlackMessage{
		Text:      fmt.Sprintf("New %s sign-up: %s <%s>", n.appName, escape(displayName), escape(email)),
		Channel:   n.channel,
		Username:  n.username,
		IconEmoji: n.icon,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}
	return n.poster.post(ctx, n.url, payload, func(status int, body []byte) error {
		s := string(body)
		if status != http.StatusOK || (s != "ok" && !strings.Contains(s, `"ok":true`)) {
			return fmt.Errorf("%w: status=%d, body=%s", ErrInvalidResponse, status, s)
		}
		return nil
	})
}

// escape applies Slack's mrkdwn control character escaping.
func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
