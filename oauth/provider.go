package oauth

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Provider names.
const (
	Google    = "google"
	Microsoft = "microsoft"
	Apple     = "apple"
)

// ProfileSource says where the identity of a provider comes from.
type ProfileSource int

const (
	// ProfileFromUserInfo reads the identity from a user-info endpoint.
	ProfileFromUserInfo ProfileSource = iota
	// ProfileFromIDToken reads the identity from the id_token returned by
	// the token endpoint.
	ProfileFromIDToken
)

// Descriptor describes one identity provider. The sign-in flow is the same
// for every provider; only the values here differ.
type Descriptor struct {
	Name        string
	DisplayName string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	Issuer      string

	Scopes []string
	// AuthParams are added to every authorization URL.
	AuthParams url.Values
	// OfflineParams are added to the authorization URL when offline access
	// is requested.
	OfflineParams url.Values
	// FormPost providers return the callback as a cross-site POST.
	FormPost bool

	Profile ProfileSource
	decode  func(raw []byte) (*Identity, error)
}

// GoogleDescriptor describes Google's OAuth 2.0 endpoints.
func GoogleDescriptor() Descriptor {
	return Descriptor{
		Name:        Google,
		DisplayName: "Google",
		AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:    "https://oauth2.googleapis.com/token",
		UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		Issuer:      "https://accounts.google.com",
		Scopes:      []string{"openid", "email", "profile"},
		OfflineParams: url.Values{
			"access_type": {"offline"},
			"prompt":      {"consent"},
		},
		Profile: ProfileFromUserInfo,
		decode:  decodeGoogleUser,
	}
}

// MicrosoftDescriptor describes the Microsoft identity platform for tenant
// ("common" when empty).
func MicrosoftDescriptor(tenant string) Descriptor {
	if tenant == "" {
		tenant = "common"
	}
	base := "https://login.microsoftonline.com/" + url.PathEscape(tenant) + "/oauth2/v2.0"
	return Descriptor{
		Name:        Microsoft,
		DisplayName: "Microsoft",
		AuthURL:     base + "/authorize",
		TokenURL:    base + "/token",
		UserInfoURL: "https://graph.microsoft.com/oidc/userinfo",
		Issuer:      "https://login.microsoftonline.com/" + tenant + "/v2.0",
		Scopes:      []string{"openid", "email", "profile", "offline_access"},
		Profile:     ProfileFromUserInfo,
		decode:      decodeOIDCUser,
	}
}

// AppleDescriptor describes Sign in with Apple.
func AppleDescriptor() Descriptor {
	return Descriptor{
		Name:        Apple,
		DisplayName: "Apple",
		AuthURL:     "https://appleid.apple.com/auth/authorize",
		TokenURL:    "https://appleid.apple.com/auth/token",
		Issuer:      "https://appleid.apple.com",
		Scopes:      []string{"name", "email"},
		AuthParams: url.Values{
			"response_mode": {"form_post"},
		},
		FormPost: true,
		Profile:  ProfileFromIDToken,
	}
}

// Descriptors returns the built-in providers keyed by name.
func Descriptors(microsoftTenant string) map[string]Descriptor {
	return map[string]Descriptor{
		Google:    GoogleDescriptor(),
		Microsoft: MicrosoftDescriptor(microsoftTenant),
		Apple:     AppleDescriptor(),
	}
}

// WithEndpoints returns a copy of d with the non-empty URLs replaced.
func (d Descriptor) WithEndpoints(authURL, tokenURL, userInfoURL string) Descriptor {
	if authURL != "" {
		d.AuthURL = authURL
	}
	if tokenURL != "" {
		d.TokenURL = tokenURL
	}
	if userInfoURL != "" {
		d.UserInfoURL = userInfoURL
	}
	return d
}

// WithScopes returns a copy of d requesting scopes instead of the defaults.
func (d Descriptor) WithScopes(scopes []string) Descriptor {
	if len(scopes) > 0 {
		d.Scopes = append([]string(nil), scopes...)
	}
	return d
}

// decodeProfile turns a user-info response into an Identity.
func (d Descriptor) decodeProfile(raw []byte) (*Identity, error) {
	decode := d.decode
	if decode == nil {
		decode = decodeOIDCUser
	}
	id, err := decode(raw)
	if err != nil {
		return nil, err
	}
	id.Provider = d.Name
	id.Email = strings.TrimSpace(id.Email)
	return id, nil
}

// googleUser is the v2 userinfo response.
type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
	HD            string `json:"hd"`
}

func decodeGoogleUser(raw []byte) (*Identity, error) {
	var user googleUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	name := user.Name
	if name == "" {
		name = strings.TrimSpace(user.GivenName + " " + user.FamilyName)
	}
	return &Identity{
		ProviderID:    user.ID,
		Email:         user.Email,
		EmailVerified: user.VerifiedEmail,
		DisplayName:   name,
		AvatarURL:     user.Picture,
	}, nil
}

// oidcUser is the standard OpenID Connect userinfo response.
type oidcUser struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// decodeOIDCUser reads a userinfo response. preferred_username is never used
// as an email: tenants can set it to any address without proving ownership.
func decodeOIDCUser(raw []byte) (*Identity, error) {
	var user oidcUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	name := user.Name
	if name == "" {
		name = strings.TrimSpace(user.GivenName + " " + user.FamilyName)
	}
	return &Identity{
		ProviderID:    user.Subject,
		Email:         user.Email,
		EmailVerified: user.EmailVerified != nil && *user.EmailVerified,
		DisplayName:   name,
		AvatarURL:     user.Picture,
	}, nil
}
