// Package oauth implements the provider side of the OAuth 2.0 authorization
// code flow with PKCE (RFC 7636) for Google, Microsoft and Apple.
//
// A Descriptor holds everything that differs between providers: endpoints,
// scopes, extra authorization parameters and how the profile is read. A
// Client combines a descriptor with registered credentials:
//
//	client, err := oauth.NewClient(oauth.GoogleDescriptor(), oauth.ProviderConfig{
//	    ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
//	    ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
//	    Offline:      true,
//	}, &http.Client{Timeout: 10 * time.Second})
//
//	pkce, _ := oauth.GeneratePKCE()
//	state, _ := oauth.NewState()
//	authURL := client.AuthorizationURL(redirectURI, state, pkce.Challenge)
//
//	// later, in the callback
//	tokens, err := client.ExchangeCode(ctx, code, redirectURI, pkce.Verifier)
//	identity, err := client.FetchProfile(ctx, tokens)
//
// Provider calls are attempted exactly once. A Breaker can be attached with
// WithBreaker to fail fast while a provider is down; only transport errors
// and 5xx responses count towards opening it.
//
// Sign in with Apple uses an ES256 client secret (see AppleSecret) and reads
// the identity from the id_token instead of a user-info endpoint.
//
// Errors returned by Client wrap one of the sentinel errors (ErrTransport,
// ErrTokenExchange, ErrProfileFetch, ErrMissingEmail, ...) inside an *Error
// carrying the provider, the operation and the HTTP status.
package oauth
