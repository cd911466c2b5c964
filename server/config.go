package server

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gobeaver/beaver-signin/cache"
	"github.com/gobeaver/beaver-signin/database"
	"github.com/gobeaver/beaver-signin/logging"
	"github.com/gobeaver/beaver-signin/notify"
)

// Config is the process configuration, loaded with config.Load from
// SIGNIN_-prefixed variables.
type Config struct {
	Environment string `env:"ENVIRONMENT,default:development"`
	ListenAddr  string `env:"LISTEN_ADDR,default::8080"`
	BaseURL     string `env:"BASE_URL,required"`

	// AppSecret is the master secret every key below is derived from
	// unless set explicitly.
	AppSecret          string `env:"APP_SECRET,required"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
	SessionSigningKey  string `env:"SESSION_SIGNING_KEY"`
	CookieSigningKey   string `env:"COOKIE_SIGNING_KEY"`

	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT,default:10s"`
	SessionTTL      time.Duration `env:"SESSION_TTL,default:24h"`
	StateTTL        time.Duration `env:"STATE_TTL,default:10m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default:15s"`

	BreakerThreshold int           `env:"BREAKER_THRESHOLD,default:5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN,default:30s"`

	Providers ProvidersConfig
	Logging   logging.Config
	Database  database.Config
	Cache     cache.Config
	Notify    notify.Config
}

// ProvidersConfig holds the credentials of every supported provider. A
// provider without credentials is still routed but answers "not configured".
type ProvidersConfig struct {
	GoogleClientID     string   `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string   `env:"GOOGLE_CLIENT_SECRET"`
	GoogleScopes       []string `env:"GOOGLE_SCOPES"`
	GoogleEndpoints    GoogleEndpoints

	MicrosoftClientID     string `env:"MICROSOFT_CLIENT_ID"`
	MicrosoftClientSecret string `env:"MICROSOFT_CLIENT_SECRET"`
	MicrosoftTenant       string `env:"MICROSOFT_TENANT,default:common"`
	MicrosoftEndpoints    MicrosoftEndpoints

	AppleClientID   string `env:"APPLE_CLIENT_ID"`
	AppleTeamID     string `env:"APPLE_TEAM_ID"`
	AppleKeyID      string `env:"APPLE_KEY_ID"`
	ApplePrivateKey string `env:"APPLE_PRIVATE_KEY"`
	AppleEndpoints  AppleEndpoints

	// Offline asks Google for a refresh token.
	Offline bool `env:"OAUTH_OFFLINE_ACCESS,default:true"`
}

// GoogleEndpoints override Google's URLs, e.g. to point at a staging identity
// provider. Empty values keep the defaults.
type GoogleEndpoints struct {
	AuthURL     string `env:"GOOGLE_AUTH_URL"`
	TokenURL    string `env:"GOOGLE_TOKEN_URL"`
	UserInfoURL string `env:"GOOGLE_USERINFO_URL"`
}

type MicrosoftEndpoints struct {
	AuthURL     string `env:"MICROSOFT_AUTH_URL"`
	TokenURL    string `env:"MICROSOFT_TOKEN_URL"`
	UserInfoURL string `env:"MICROSOFT_USERINFO_URL"`
}

type AppleEndpoints struct {
	AuthURL  string `env:"APPLE_AUTH_URL"`
	TokenURL string `env:"APPLE_TOKEN_URL"`
}

// Production reports whether cookies must be Secure.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks the values config.Load cannot.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: BASE_URL must be an absolute http(s) URL", ErrInvalidConfig)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("%w: BASE_URL must not have a path", ErrInvalidConfig)
	}
	if c.Production() && u.Scheme != "https" {
		return fmt.Errorf("%w: BASE_URL must use https in production", ErrInvalidConfig)
	}
	if c.StateTTL <= 0 || c.SessionTTL <= 0 {
		return fmt.Errorf("%w: STATE_TTL and SESSION_TTL must be positive", ErrInvalidConfig)
	}
	return nil
}
