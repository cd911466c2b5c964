package server

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gobeaver/beaver-signin/config"
	"github.com/gobeaver/beaver-signin/flow"
	"github.com/gobeaver/beaver-signin/oauth"
)

// buildProviders returns one flow.Provider per supported provider. Providers
// without credentials get a nil client; a provider with unusable credentials
// is an error.
func buildProviders(cfg Config, httpClient oauth.HTTPClient, logger *slog.Logger) ([]flow.Provider, error) {
	p := cfg.Providers
	descs := oauth.Descriptors(p.MicrosoftTenant)

	descs[oauth.Google] = descs[oauth.Google].
		WithEndpoints(p.GoogleEndpoints.AuthURL, p.GoogleEndpoints.TokenURL, p.GoogleEndpoints.UserInfoURL).
		WithScopes(p.GoogleScopes)
	descs[oauth.Microsoft] = descs[oauth.Microsoft].
		WithEndpoints(p.MicrosoftEndpoints.AuthURL, p.MicrosoftEndpoints.TokenURL, p.MicrosoftEndpoints.UserInfoURL)
	descs[oauth.Apple] = descs[oauth.Apple].
		WithEndpoints(p.AppleEndpoints.AuthURL, p.AppleEndpoints.TokenURL, "")

	creds := []struct {
		name       string
		settings   []string
		configured bool
		build      func() (oauth.ProviderConfig, error)
	}{
		{
			name:       oauth.Google,
			settings:   settingNames("GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"),
			configured: p.GoogleClientID != "" && p.GoogleClientSecret != "",
			build: func() (oauth.ProviderConfig, error) {
				return oauth.ProviderConfig{ClientID: p.GoogleClientID, ClientSecret: p.GoogleClientSecret, Offline: p.Offline}, nil
			},
		},
		{
			name:       oauth.Microsoft,
			settings:   settingNames("MICROSOFT_CLIENT_ID", "MICROSOFT_CLIENT_SECRET"),
			configured: p.MicrosoftClientID != "" && p.MicrosoftClientSecret != "",
			build: func() (oauth.ProviderConfig, error) {
				return oauth.ProviderConfig{ClientID: p.MicrosoftClientID, ClientSecret: p.MicrosoftClientSecret, Offline: p.Offline}, nil
			},
		},
		{
			name:       oauth.Apple,
			settings:   settingNames("APPLE_CLIENT_ID", "APPLE_TEAM_ID", "APPLE_KEY_ID", "APPLE_PRIVATE_KEY"),
			configured: p.AppleClientID != "" && p.AppleTeamID != "" && p.AppleKeyID != "" && p.ApplePrivateKey != "",
			build: func() (oauth.ProviderConfig, error) {
				// keys pasted into a single env line carry literal \n
				pem := strings.ReplaceAll(p.ApplePrivateKey, `\n`, "\n")
				secret, err := oauth.NewAppleSecret(p.AppleTeamID, p.AppleKeyID, p.AppleClientID, pem)
				if err != nil {
					return oauth.ProviderConfig{}, err
				}
				return oauth.ProviderConfig{ClientID: p.AppleClientID, AppleSecret: secret}, nil
			},
		},
	}

	providers := make([]flow.Provider, 0, len(creds))
	for _, c := range creds {
		desc := descs[c.name]
		if !c.configured {
			logger.Warn("provider not configured", "provider", c.name)
			providers = append(providers, flow.Provider{Descriptor: desc, Settings: c.settings})
			continue
		}

		pc, err := c.build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		breaker := oauth.NewBreaker(oauth.BreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			Cooldown:         cfg.BreakerCooldown,
			OnStateChange: func(from, to string) {
				logger.Warn("provider circuit breaker changed state", "provider", c.name, "from", from, "to", to)
			},
		})
		client, err := oauth.NewClient(desc, pc, httpClient, oauth.WithBreaker(breaker))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		providers = append(providers, flow.Provider{Descriptor: desc, Client: client, Settings: c.settings})
	}
	return providers, nil
}

// settingNames returns the variable names as the config loader reads them.
func settingNames(names ...string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = config.DefaultPrefix + n
	}
	return out
}
