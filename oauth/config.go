package oauth

import "fmt"

// ProviderConfig holds the credentials registered with a provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	// Offline requests a refresh token where the provider needs extra
	// authorization parameters for it.
	Offline bool
	// AppleSecret replaces ClientSecret for Sign in with Apple.
	AppleSecret *AppleSecret
}

// Validate reports missing credentials.
func (c ProviderConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: missing client ID", ErrInvalidConfig)
	}
	if c.ClientSecret == "" && c.AppleSecret == nil {
		return fmt.Errorf("%w: missing client secret", ErrInvalidConfig)
	}
	return nil
}

func (c ProviderConfig) secret() (string, error) {
	if c.AppleSecret != nil {
		return c.AppleSecret.Secret()
	}
	return c.ClientSecret, nil
}
