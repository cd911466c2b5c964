package oauth

import (
	"net/http"
	"time"
)

// HTTPClient is the subset of *http.Client used for provider calls.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSet holds the credentials returned by a token endpoint. Tokens are
// secrets: never log them or place them in URLs.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	IDToken      string
	Scope        string
	ExpiresAt    time.Time
}

// HasRefreshToken reports whether the provider issued a refresh token.
func (t *TokenSet) HasRefreshToken() bool {
	return t.RefreshToken != ""
}

// Identity is the normalized profile of the signed-in user.
type Identity struct {
	Provider      string
	ProviderID    string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
}

// PKCE carries an RFC 7636 verifier and its derived challenge.
type PKCE struct {
	Verifier        string
	Challenge       string
	ChallengeMethod string
}
