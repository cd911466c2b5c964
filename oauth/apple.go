package oauth

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	appleAudience      = "https://appleid.apple.com"
	appleSecretTTL     = 30 * 24 * time.Hour
	appleSecretRenew   = time.Hour
	appleIDTokenLeeway = time.Minute
)

// AppleSecret mints the ES256 client secret Apple requires in place of a
// static client secret. Secrets are cached until shortly before expiry.
type AppleSecret struct {
	teamID   string
	keyID    string
	clientID string
	key      *ecdsa.PrivateKey
	now      func() time.Time

	mu      sync.Mutex
	secret  string
	expires time.Time
}

// NewAppleSecret parses the PKCS#8 PEM private key downloaded from Apple.
func NewAppleSecret(teamID, keyID, clientID, privateKeyPEM string) (*AppleSecret, error) {
	if teamID == "" || keyID == "" || clientID == "" {
		return nil, fmt.Errorf("%w: apple requires team id, key id and client id", ErrInvalidConfig)
	}
	key, err := parseApplePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &AppleSecret{teamID: teamID, keyID: keyID, clientID: clientID, key: key, now: time.Now}, nil
}

// Secret returns a valid client secret JWT.
func (s *AppleSecret) Secret() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.secret != "" && now.Add(appleSecretRenew).Before(s.expires) {
		return s.secret, nil
	}

	expires := now.Add(appleSecretTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    s.teamID,
		Subject:   s.clientID,
		Audience:  jwt.ClaimStrings{appleAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign apple client secret: %w", err)
	}
	s.secret, s.expires = signed, expires
	return signed, nil
}

func parseApplePrivateKey(pemKey string) (*ecdsa.PrivateKey, error) {
	// Keys pasted into env files often carry literal \n sequences.
	pemKey = strings.ReplaceAll(pemKey, `\n`, "\n")
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	ecdsaKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not ECDSA")
	}
	return ecdsaKey, nil
}

// idTokenClaims covers the identity claims of an OpenID Connect id_token.
// Apple sends email_verified either as a bool or as the string "true".
type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

func (c *idTokenClaims) emailVerified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// identityFromIDToken reads the identity from an id_token received directly
// from the token endpoint over TLS. The issuer, audience and expiry are
// checked; the signature is not, since the token never passed through the
// user agent.
func (d Descriptor) identityFromIDToken(idToken, clientID string, now time.Time) (*Identity, error) {
	if idToken == "" {
		return nil, fmt.Errorf("%w: token response has no id_token", ErrInvalidResponse)
	}

	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	validator := jwt.NewValidator(
		jwt.WithIssuer(d.Issuer),
		jwt.WithAudience(clientID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(appleIDTokenLeeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err := validator.Validate(claims); err != nil {
		return nil, fmt.Errorf("%w: id_token: %v", ErrInvalidResponse, err)
	}

	return &Identity{
		Provider:      d.Name,
		ProviderID:    claims.Subject,
		Email:         strings.TrimSpace(claims.Email),
		EmailVerified: claims.emailVerified(),
		DisplayName:   claims.Name,
	}, nil
}
