// Package session issues and verifies the application session that follows
// a successful sign-in. Sessions are HS256 JWTs carried in an HttpOnly
// cookie.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the name of the session cookie.
const CookieName = "oauth_session"

const (
	defaultIssuer = "beaver-signin"
	defaultTTL    = 24 * time.Hour
	minKeyLength  = 32
)

var (
	ErrInvalidConfig  = errors.New("invalid session configuration")
	ErrInvalidSession = errors.New("invalid session")
	ErrNoSession      = errors.New("no session")
)

// Claims are the JWT claims of an application session.
type Claims struct {
	Email    string `json:"email"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// AccountID returns the subject, the id of the signed-in account.
func (c *Claims) AccountID() string {
	return c.Subject
}

// Config configures an Issuer.
type Config struct {
	Issuer string
	TTL    time.Duration
	// Secure marks the cookie Secure; set in production.
	Secure bool
}

// Issuer mints and verifies sessions.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an issuer signing with key.
func NewIssuer(key []byte, cfg Config, opts ...Option) (*Issuer, error) {
	if len(key) < minKeyLength {
		return nil, fmt.Errorf("%w: signing key must be at least %d bytes", ErrInvalidConfig, minKeyLength)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}

	i := &Issuer{
		key:    append([]byte(nil), key...),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		secure: cfg.Secure,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue mints a session token for an account.
func (i *Issuer) Issue(accountID, email, provider string) (string, *Claims, error) {
	if accountID == "" {
		return "", nil, fmt.Errorf("%w: account id required", ErrInvalidSession)
	}

	now := i.now()
	claims := &Claims{
		Email:    email,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session: %w", err)
	}
	return token, claims, nil
}

// Parse verifies token and returns its claims.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// SetCookie writes token as the session cookie.
func (i *Issuer) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(i.ttl / time.Second),
		Expires:  i.now().Add(i.ttl),
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (i *Issuer) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest returns the verified session carried by r.
func (i *Issuer) FromRequest(r *http.Request) (*Claims, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}
	return i.Parse(c.Value)
}
