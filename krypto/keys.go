package krypto

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Key purposes used to derive independent keys from one application secret.
const (
	PurposeTokenEncryption = "beaver-signin/token-encryption"
	PurposeSessionSigning  = "beaver-signin/session-signing"
	PurposeCookieSigning   = "beaver-signin/cookie-signing"
)

// MinSecretLength is the shortest accepted master secret.
const MinSecretLength = 32

// ErrWeakSecret is returned when a master secret is shorter than MinSecretLength.
var ErrWeakSecret = errors.New("krypto: secret must be at least 32 bytes")

// DeriveKey expands secret into a size-byte key bound to purpose (HKDF-SHA256).
func DeriveKey(secret []byte, purpose string, size int) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("krypto: derive %s: %w", purpose, err)
	}
	return key, nil
}

// DecodeKey accepts a standard or URL-safe base64 encoded key, falling back to
// the raw bytes of the string.
func DecodeKey(encoded string) []byte {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(encoded); err == nil {
			switch len(key) {
			case 16, 24, 32, 64:
				return key
			}
		}
	}
	return []byte(encoded)
}

// KeyFor returns the configured key when set, otherwise a key derived from
// the master secret for purpose.
func KeyFor(configured, master string, purpose string, size int) ([]byte, error) {
	if configured != "" {
		return DecodeKey(configured), nil
	}
	return DeriveKey([]byte(master), purpose, size)
}
