package notify

import "time"

// Config configures welcome notifications. Every channel is optional; with
// none configured New returns a Nop notifier.
type Config struct {
	// WebhookURL receives {"email","displayName","appName"} for each new
	// account, e.g. the application's confirmation-email endpoint.
	WebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
	AppName    string `env:"NOTIFY_APP_NAME,default:Invoice Easy"`

	// Slack incoming webhook announcing new sign-ups.
	SlackWebhookURL string `env:"NOTIFY_SLACK_WEBHOOK_URL"`
	SlackChannel    string `env:"NOTIFY_SLACK_CHANNEL"`
	SlackUsername   string `env:"NOTIFY_SLACK_USERNAME,default:Beaver Sign-in"`
	SlackIconEmoji  string `env:"NOTIFY_SLACK_ICON_EMOJI,default::wave:"`

	Timeout time.Duration `env:"NOTIFY_TIMEOUT,default:5s"`

	// Retry configuration
	MaxRetries    int           `env:"NOTIFY_MAX_RETRIES,default:2"`
	RetryDelay    time.Duration `env:"NOTIFY_RETRY_DELAY,default:500ms"`
	RetryMaxDelay time.Duration `env:"NOTIFY_RETRY_MAX_DELAY,default:5s"`
}

// DefaultConfig returns a Config with all default values applied.
func DefaultConfig() Config {
	return Config{
		AppName:        "Invoice Easy",
		SlackUsername:  "Beaver Sign-in",
		SlackIconEmoji: ":wave:",
		Timeout:        5 * time.Second,
		MaxRetries:     2,
		RetryDelay:     500 * time.Millisecond,
		RetryMaxDelay:  5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AppName == "" {
		c.AppName = d.AppName
	}
	if c.SlackUsername == "" {
		c.SlackUsername = d.SlackUsername
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.RetryMaxDelay < c.RetryDelay {
		c.RetryMaxDelay = c.RetryDelay
	}
	return c
}
