// Package flow implements the browser side of social sign-in: initiation
// redirects the user to the provider, and the callback validates the
// response, exchanges the code, resolves the account and issues a session.
//
// The callback is a linear state machine. Every exit is a 302 and every exit
// clears the transient state, verifier and context cookies.
package flow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gobeaver/beaver-signin/account"
	"github.com/gobeaver/beaver-signin/cache"
	"github.com/gobeaver/beaver-signin/krypto"
	"github.com/gobeaver/beaver-signin/oauth"
	"github.com/gobeaver/beaver-signin/session"
	"github.com/gobeaver/beaver-signin/signedcookie"
)

// ErrInvalidConfig is returned by NewHandler for missing dependencies.
var ErrInvalidConfig = errors.New("invalid flow configuration")

// ErrReplay marks a callback whose state was already consumed.
var ErrReplay = errors.New("oauth state already used")

// ProviderClient is the provider side of the flow; *oauth.Client implements it.
type ProviderClient interface {
	AuthorizationURL(redirectURI, state, challenge string) string
	ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*oauth.TokenSet, error)
	FetchProfile(ctx context.Context, tokens *oauth.TokenSet) (*oauth.Identity, error)
}

// IdentityResolver maps identities onto accounts; *account.Resolver implements it.
type IdentityResolver interface {
	Resolve(ctx context.Context, in account.Input) (*account.Resolution, error)
}

// SessionIssuer mints the application session; *session.Issuer implements it.
type SessionIssuer interface {
	Issue(accountID, email, provider string) (string, *session.Claims, error)
	SetCookie(w http.ResponseWriter, token string)
}

// Provider is a sign-in provider. Client is nil when the provider is known
// but has no credentials configured.
type Provider struct {
	Descriptor oauth.Descriptor
	Client     ProviderClient
	// Settings names the configuration variables an operator must set to
	// enable the provider. They appear in the "not configured" error.
	Settings []string
}

// Config holds the flow settings.
type Config struct {
	// BaseURL is the public origin, used for the redirect URI and for
	// post-flow redirects.
	BaseURL string
	// Secure marks cookies Secure; set in production.
	Secure bool
	// StateTTL bounds the time between initiation and callback.
	StateTTL time.Duration

	LoginPath  string
	SignupPath string
}

// Deps are the collaborators of a Handler. Replay, Metrics and Logger are
// optional.
type Deps struct {
	Providers []Provider
	Cookies   *signedcookie.Signer
	Tokens    krypto.TokenEncryptor
	Resolver  IdentityResolver
	Sessions  SessionIssuer
	Replay    cache.Cache
	Metrics   *Metrics
	Logger    *slog.Logger
}

// Handler serves initiation and callback for every configured provider.
type Handler struct {
	cfg       Config
	providers map[string]Provider
	cookies   *signedcookie.Signer
	tokens    krypto.TokenEncryptor
	resolver  IdentityResolver
	sessions  SessionIssuer
	replay    cache.Cache
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler validates cfg and deps.
func NewHandler(cfg Config, deps Deps) (*Handler, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if deps.Cookies == nil || deps.Tokens == nil || deps.Resolver == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("%w: cookies, tokens, resolver and sessions are required", ErrInvalidConfig)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.SignupPath == "" {
		cfg.SignupPath = "/signup"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		cfg:       cfg,
		providers: make(map[string]Provider, len(deps.Providers)),
		cookies:   deps.Cookies,
		tokens:    deps.Tokens,
		resolver:  deps.Resolver,
		sessions:  deps.Sessions,
		replay:    deps.Replay,
		metrics:   deps.Metrics,
		logger:    logger.With("component", "flow"),
		now:       time.Now,
	}
	for _, p := range deps.Providers {
		if p.Descriptor.Name == "" {
			return nil, fmt.Errorf("%w: provider without name", ErrInvalidConfig)
		}
		h.providers[p.Descriptor.Name] = p
	}
	return h, nil
}

// Routes registers the sign-in endpoints on r. Providers answering with
// form_post call back with POST.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/auth/{provider}", h.Initiate)
	r.Get("/api/auth/{provider}/callback", h.Callback)
	r.Post("/api/auth/{provider}/callback", h.Callback)
}

// Configured reports, per provider, whether credentials are present.
func (h *Handler) Configured() map[string]bool {
	out := make(map[string]bool, len(h.providers))
	for name, p := range h.providers {
		out[name] = p.Client != nil
	}
	return out
}

// Provider returns the registered provider called name. Unknown names wrap
// oauth.ErrProviderNotFound.
func (h *Handler) Provider(name string) (Provider, error) {
	p, ok := h.providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q", oauth.ErrProviderNotFound, name)
	}
	return p, nil
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (string, Provider, bool) {
	name := chi.URLParam(r, "provider")
	p, err := h.Provider(name)
	if err != nil {
		h.logger.Debug("sign-in request for unknown provider", "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown OAuth provider"})
		return name, Provider{}, false
	}
	return name, p, true
}

func (h *Handler) redirectURI(provider string) string {
	return h.cfg.BaseURL + "/api/auth/" + provider + "/callback"
}

func stateCookie(provider string) string    { return provider + "_oauth_state" }
func verifierCookie(provider string) string { return provider + "_code_verifier" }
func contextCookie(provider string) string  { return provider + "_signup_context" }

// cookieAttrs returns the transient cookie attributes. A form_post callback
// is a cross-site POST, which only carries SameSite=None cookies.
func (h *Handler) cookieAttrs(p Provider) signedcookie.Attributes {
	attrs := signedcookie.Attributes{
		Path:     "/",
		MaxAge:   h.cfg.StateTTL,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if p.Descriptor.FormPost {
		attrs.SameSite = http.SameSiteNoneMode
		attrs.Secure = true
	}
	return attrs
}

func (h *Handler) clearTransient(w http.ResponseWriter, provider string, p Provider) {
	attrs := h.cookieAttrs(p)
	for _, name := range []string{stateCookie(provider), verifierCookie(provider), contextCookie(provider)} {
		signedcookie.Clear(w, name, attrs)
	}
}

func replayKey(provider, state string) string {
	sum := sha256.Sum256([]byte(state))
	return "oauth:consumed:" + provider + ":" + hex.EncodeToString(sum[:])
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
}
