package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// Client performs the provider side of the authorization code flow for one
// provider. It is safe for concurrent use.
type Client struct {
	desc       Descriptor
	cfg        ProviderConfig
	httpClient HTTPClient
	breaker    *Breaker
	now        func() time.Time
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBreaker guards token and profile calls with b.
func WithBreaker(b *Breaker) ClientOption {
	return func(c *Client) { c.breaker = b }
}

// WithClock overrides time.Now, used for token expiry and id_token checks.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client. httpClient is shared across requests and must
// carry a timeout.
func NewClient(desc Descriptor, cfg ProviderConfig, httpClient HTTPClient, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", desc.Name, err)
	}
	if httpClient == nil {
		return nil, fmt.Errorf("%s: %w: http client required", desc.Name, ErrInvalidConfig)
	}
	if desc.Profile == ProfileFromUserInfo && desc.UserInfoURL == "" {
		return nil, fmt.Errorf("%s: %w: user info URL required", desc.Name, ErrInvalidConfig)
	}

	c := &Client{desc: desc, cfg: cfg, httpClient: httpClient, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Descriptor returns the provider description.
func (c *Client) Descriptor() Descriptor {
	return c.desc
}

// AuthorizationURL builds the consent URL. The result depends only on its
// inputs and the client configuration.
func (c *Client) AuthorizationURL(redirectURI, state, challenge string) string {
	params := url.Values{
		"client_id":             {c.cfg.ClientID},
		"redirect_uri":          {redirectURI},
		"response_type":         {"code"},
		"scope":                 {strings.Join(c.desc.Scopes, " ")},
		"state":                 {state},
		"code_challenge":        {challenge},
		"code_challenge_method": {MethodS256},
	}
	for k, v := range c.desc.AuthParams {
		params[k] = v
	}
	if c.cfg.Offline {
		for k, v := range c.desc.OfflineParams {
			params[k] = v
		}
	}

	sep := "?"
	if strings.Contains(c.desc.AuthURL, "?") {
		sep = "&"
	}
	return c.desc.AuthURL + sep + params.Encode()
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	IDToken          string `json:"id_token"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeCode redeems an authorization code together with the PKCE
// verifier. It makes exactly one request.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*TokenSet, error) {
	secret, err := c.cfg.secret()
	if err != nil {
		return nil, &Error{Provider: c.desc.Name, Op: "exchange", Err: fmt.Errorf("%w: %w", ErrInvalidConfig, err)}
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {secret},
		"code_verifier": {verifier},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.desc.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Provider: c.desc.Name, Op: "exchange", Err: fmt.Errorf("%w: %v", ErrTokenExchange, err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req, "exchange")
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	decodeErr := json.Unmarshal(body, &tr)

	if status < 200 || status > 299 || tr.Error != "" {
		e := &Error{Provider: c.desc.Name, Op: "exchange", Status: status, Code: tr.Error, Description: tr.ErrorDescription, Err: ErrTokenExchange}
		if tr.Error != "" {
			e.Err = codeError(tr.Error)
		}
		return nil, e
	}
	if decodeErr != nil {
		return nil, &Error{Provider: c.desc.Name, Op: "exchange", Status: status, Err: fmt.Errorf("%w: %w: %v", ErrTokenExchange, ErrInvalidResponse, decodeErr)}
	}
	if tr.AccessToken == "" {
		return nil, &Error{Provider: c.desc.Name, Op: "exchange", Status: status, Err: fmt.Errorf("%w: %w: missing access_token", ErrTokenExchange, ErrInvalidResponse)}
	}

	tokens := &TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		IDToken:      tr.IDToken,
		Scope:        tr.Scope,
	}
	if tr.ExpiresIn > 0 {
		tokens.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tokens, nil
}

// FetchProfile returns the identity behind tokens. An identity without an
// email address yields ErrMissingEmail.
func (c *Client) FetchProfile(ctx context.Context, tokens *TokenSet) (*Identity, error) {
	if tokens == nil || tokens.AccessToken == "" {
		return nil, &Error{Provider: c.desc.Name, Op: "profile", Err: fmt.Errorf("%w: no access token", ErrProfileFetch)}
	}

	var (
		id  *Identity
		err error
	)
	if c.desc.Profile == ProfileFromIDToken {
		id, err = c.desc.identityFromIDToken(tokens.IDToken, c.cfg.ClientID, c.now())
		if err != nil {
			return nil, &Error{Provider: c.desc.Name, Op: "profile", Err: fmt.Errorf("%w: %w", ErrProfileFetch, err)}
		}
	} else {
		id, err = c.fetchUserInfo(ctx, tokens.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	if id.ProviderID == "" {
		return nil, &Error{Provider: c.desc.Name, Op: "profile", Err: fmt.Errorf("%w: %w: missing subject", ErrProfileFetch, ErrInvalidResponse)}
	}
	if id.Email == "" {
		return nil, &Error{Provider: c.desc.Name, Op: "profile", Err: ErrMissingEmail}
	}
	return id, nil
}

func (c *Client) fetchUserInfo(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.desc.UserInfoURL, nil)
	if err != nil {
		return nil, &Error{Provider: c.desc.Name, Op: "profile", Err: fmt.Errorf("%w: %v", ErrProfileFetch, err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req, "profile")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &Error{Provider: c.desc.Name, Op: "profile", Status: status, Err: ErrProfileFetch}
	}

	id, err := c.desc.decodeProfile(body)
	if err != nil {
		return nil, &Error{Provider: c.desc.Name, Op: "profile", Status: status, Err: fmt.Errorf("%w: %w", ErrProfileFetch, err)}
	}
	return id, nil
}

// do sends req once, through the breaker when configured, and reads a
// bounded body.
func (c *Client) do(req *http.Request, op string) (int, []byte, error) {
	var (
		status int
		body   []byte
	)
	call := func() error {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &Error{Provider: c.desc.Name, Op: op, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return &Error{Provider: c.desc.Name, Op: op, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
		}
		status = resp.StatusCode
		if status >= 500 {
			// reported to the breaker, translated by the caller
			return &Error{Provider: c.desc.Name, Op: op, Status: status}
		}
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(call)
	} else {
		err = call()
	}

	var oauthErr *Error
	switch {
	case err == nil:
		return status, body, nil
	case errors.As(err, &oauthErr) && oauthErr.Err == nil:
		return status, body, nil
	case errors.Is(err, ErrCircuitOpen):
		return 0, nil, &Error{Provider: c.desc.Name, Op: op, Err: err}
	default:
		return 0, nil, err
	}
}
