// Package oauthtest provides an in-process OAuth 2.0 provider for tests.
package oauthtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/beaver-signin/krypto"
	"github.com/gobeaver/beaver-signin/oauth"
)

// Profile is returned by the user-info endpoint in Google's v2 shape.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// Config configures the fake provider.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenExpiry  time.Duration
	// NoRefreshToken omits refresh_token from token responses.
	NoRefreshToken bool
}

type grant struct {
	redirectURI string
	challenge   string
	method      string
	profile     Profile
	used        bool
	expiresAt   time.Time
}

type failure struct {
	status int
	code   string
}

// Server is a fake authorization server enforcing single-use codes,
// redirect URI binding and PKCE S256 verification.
type Server struct {
	server *httptest.Server
	cfg    Config

	mu       sync.Mutex
	grants   map[string]*grant
	tokens   map[string]Profile
	failures map[string]failure
	calls    map[string]int
}

// NewServer starts a fake provider. Call Close when done.
func NewServer(cfg Config) *Server {
	if cfg.ClientID == "" {
		cfg.ClientID = "test-client"
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = "test-secret"
	}
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = time.Hour
	}

	s := &Server{
		cfg:      cfg,
		grants:   make(map[string]*grant),
		tokens:   make(map[string]Profile),
		failures: make(map[string]failure),
		calls:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", s.handleAuthorize)
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/userinfo", s.handleUserInfo)
	s.server = httptest.NewServer(mux)
	return s
}

// Close shuts down the server.
func (s *Server) Close() { s.server.Close() }

// URL returns the base URL.
func (s *Server) URL() string { return s.server.URL }

// Client returns an HTTP client that talks to the server.
func (s *Server) Client() *http.Client { return s.server.Client() }

// ClientID returns the registered client id.
func (s *Server) ClientID() string { return s.cfg.ClientID }

// ClientSecret returns the registered client secret.
func (s *Server) ClientSecret() string { return s.cfg.ClientSecret }

// Descriptor returns a Google-shaped descriptor pointing at this server.
func (s *Server) Descriptor() oauth.Descriptor {
	return oauth.GoogleDescriptor().WithEndpoints(s.URL()+"/authorize", s.URL()+"/token", s.URL()+"/userinfo")
}

// ProviderConfig returns credentials accepted by this server.
func (s *Server) ProviderConfig() oauth.ProviderConfig {
	return oauth.ProviderConfig{ClientID: s.cfg.ClientID, ClientSecret: s.cfg.ClientSecret, Offline: true}
}

// IssueCode registers an authorization code as if the user had consented.
func (s *Server) IssueCode(redirectURI, challenge string, profile Profile) string {
	code, err := krypto.GenerateURLSafeToken(16)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[code] = &grant{
		redirectURI: redirectURI,
		challenge:   challenge,
		method:      oauth.MethodS256,
		profile:     profile,
		expiresAt:   time.Now().Add(10 * time.Minute),
	}
	return code
}

// Consent follows an authorization URL produced by the client under test
// and returns the code and state the provider would send to the callback.
func (s *Server) Consent(authorizationURL string, profile Profile) (code, state string, err error) {
	u, err := url.Parse(authorizationURL)
	if err != nil {
		return "", "", err
	}
	q := u.Query()
	if q.Get("client_id") != s.cfg.ClientID {
		return "", "", fmt.Errorf("unknown client_id %q", q.Get("client_id"))
	}
	if q.Get("response_type") != "code" {
		return "", "", fmt.Errorf("unsupported response_type %q", q.Get("response_type"))
	}
	if q.Get("code_challenge_method") != oauth.MethodS256 || q.Get("code_challenge") == "" {
		return "", "", fmt.Errorf("missing S256 code challenge")
	}
	return s.IssueCode(q.Get("redirect_uri"), q.Get("code_challenge"), profile), q.Get("state"), nil
}

// Fail makes endpoint ("token" or "userinfo") answer with status and an
// optional OAuth error code from now on.
func (s *Server) Fail(endpoint string, status int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = failure{status: status, code: code}
}

// Calls returns how many requests endpoint has received.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

func (s *Server) enter(endpoint string) (failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[endpoint]++
	f, ok := s.failures[endpoint]
	return f, ok
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	s.enter("authorize")
	q := r.URL.Query()
	code := s.IssueCode(q.Get("redirect_uri"), q.Get("code_challenge"), Profile{ID: "authorize-user", Email: "user@example.com", VerifiedEmail: true})

	target, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	params := target.Query()
	params.Set("code", code)
	params.Set("state", q.Get("state"))
	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.enter("token"); ok {
		writeError(w, f.status, f.code, "injected failure")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "POST required")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed form")
		return
	}
	if r.PostForm.Get("client_id") != s.cfg.ClientID || r.PostForm.Get("client_secret") != s.cfg.ClientSecret {
		writeError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" {
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "")
		return
	}

	s.mu.Lock()
	g, ok := s.grants[r.PostForm.Get("code")]
	switch {
	case !ok || g.used || time.Now().After(g.expiresAt):
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "invalid_grant", "code is invalid, expired or already used")
		return
	case g.redirectURI != r.PostForm.Get("redirect_uri"):
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	case !oauth.VerifyChallenge(r.PostForm.Get("code_verifier"), g.challenge, g.method):
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match challenge")
		return
	}
	g.used = true
	access, _ := krypto.GenerateURLSafeToken(24)
	s.tokens[access] = g.profile
	s.mu.Unlock()

	resp := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   int(s.cfg.TokenExpiry.Seconds()),
		"scope":        "openid email profile",
	}
	if !s.cfg.NoRefreshToken {
		refresh, _ := krypto.GenerateURLSafeToken(24)
		resp["refresh_token"] = refresh
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.enter("userinfo"); ok {
		writeError(w, f.status, f.code, "injected failure")
		return
	}
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		writeError(w, http.StatusUnauthorized, "invalid_token", "missing bearer token")
		return
	}

	s.mu.Lock()
	profile, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token", "unknown access token")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	if code == "" {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
