package oauth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testAppleKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey() error = %v", err)
	}
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestNewAppleSecretValidation(t *testing.T) {
	_, pemKey := testAppleKey(t)

	tests := []struct {
		name                           string
		teamID, keyID, clientID, keyPEM string
	}{
		{"missing team id", "", "KEY123", "com.example.web", pemKey},
		{"missing key id", "TEAM123", "", "com.example.web", pemKey},
		{"missing client id", "TEAM123", "KEY123", "", pemKey},
		{"garbage key", "TEAM123", "KEY123", "com.example.web", "not a pem"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAppleSecret(tt.teamID, tt.keyID, tt.clientID, tt.keyPEM)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewAppleSecret() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestAppleSecretClaims(t *testing.T) {
	key, pemKey := testAppleKey(t)
	// keys from env files carry escaped newlines
	escaped := strings.ReplaceAll(pemKey, "\n", `\n`)

	s, err := NewAppleSecret("TEAM123", "KEY123", "com.example.web", escaped)
	if err != nil {
		t.Fatalf("NewAppleSecret() error = %v", err)
	}
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	secret, err := s.Secret()
	if err != nil {
		t.Fatalf("Secret() error = %v", err)
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(secret, &claims, func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("ParseWithClaims() error = %v", err)
	}
	if token.Header["kid"] != "KEY123" {
		t.Errorf("kid = %v, want KEY123", token.Header["kid"])
	}
	if claims.Issuer != "TEAM123" || claims.Subject != "com.example.web" {
		t.Errorf("iss/sub = %s/%s", claims.Issuer, claims.Subject)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "https://appleid.apple.com" {
		t.Errorf("aud = %v", claims.Audience)
	}
	if got := claims.ExpiresAt.Sub(now); got != 30*24*time.Hour {
		t.Errorf("lifetime = %v, want 30 days", got)
	}
}

func TestAppleSecretCaching(t *testing.T) {
	_, pemKey := testAppleKey(t)
	s, err := NewAppleSecret("TEAM123", "KEY123", "com.example.web", pemKey)
	if err != nil {
		t.Fatalf("NewAppleSecret() error = %v", err)
	}
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	first, _ := s.Secret()
	now = now.Add(29 * 24 * time.Hour)
	second, _ := s.Secret()
	if first != second {
		t.Error("secret should be reused while far from expiry")
	}

	now = now.Add(24*time.Hour - 30*time.Minute)
	third, _ := s.Secret()
	if third == first {
		t.Error("secret should be renewed within an hour of expiry")
	}
}

func testIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unused"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func TestIdentityFromIDToken(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := AppleDescriptor()

	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":            "https://appleid.apple.com",
			"aud":            "com.example.web",
			"sub":            "001234.abcd",
			"email":          " User@Example.com ",
			"email_verified": "true",
			"iat":            now.Unix(),
			"exp":            now.Add(10 * time.Minute).Unix(),
		}
	}

	t.Run("valid token", func(t *testing.T) {
		id, err := d.identityFromIDToken(testIDToken(t, base()), "com.example.web", now)
		if err != nil {
			t.Fatalf("identityFromIDToken() error = %v", err)
		}
		if id.ProviderID != "001234.abcd" || id.Email != "User@Example.com" || !id.EmailVerified || id.Provider != Apple {
			t.Errorf("identity = %+v", id)
		}
	})

	t.Run("boolean email_verified", func(t *testing.T) {
		claims := base()
		claims["email_verified"] = false
		id, err := d.identityFromIDToken(testIDToken(t, claims), "com.example.web", now)
		if err != nil {
			t.Fatalf("identityFromIDToken() error = %v", err)
		}
		if id.EmailVerified {
			t.Error("EmailVerified should be false")
		}
	})

	failures := map[string]func(jwt.MapClaims){
		"wrong issuer":   func(c jwt.MapClaims) { c["iss"] = "https://evil.example" },
		"wrong audience": func(c jwt.MapClaims) { c["aud"] = "com.other.app" },
		"expired":        func(c jwt.MapClaims) { c["exp"] = now.Add(-2 * time.Minute).Unix() },
		"missing expiry": func(c jwt.MapClaims) { delete(c, "exp") },
	}
	for name, mutate := range failures {
		t.Run(name, func(t *testing.T) {
			claims := base()
			mutate(claims)
			_, err := d.identityFromIDToken(testIDToken(t, claims), "com.example.web", now)
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("identityFromIDToken() error = %v, want ErrInvalidResponse", err)
			}
		})
	}

	t.Run("missing token", func(t *testing.T) {
		if _, err := d.identityFromIDToken("", "com.example.web", now); !errors.Is(err, ErrInvalidResponse) {
			t.Errorf("error = %v, want ErrInvalidResponse", err)
		}
	})
}
