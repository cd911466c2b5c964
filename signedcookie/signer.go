// Package signedcookie signs short-lived cookie values with HMAC-SHA256 so
// the server can trust values it handed to the browser earlier.
//
// A signed value has the form
//
//	base64url(value) "." expires-unix "." hex(hmac(name|expires|value))
//
// The cookie name is part of the MAC, so a value signed for one cookie is
// rejected when presented under another name.
package signedcookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinKeyLength is the shortest accepted HMAC key.
const MinKeyLength = 32

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrMalformed        = errors.New("malformed signed value")
	ErrExpired          = errors.New("signed value has expired")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Signer signs and verifies cookie values. It is safe for concurrent use.
type Signer struct {
	key           []byte
	defaultExpiry time.Duration
	now           func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithDefaultExpiry sets the lifetime used when Sign is given no expiry.
func WithDefaultExpiry(d time.Duration) Option {
	return func(s *Signer) {
		if d > 0 {
			s.defaultExpiry = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// New creates a signer using key, which must be at least MinKeyLength bytes.
func New(key []byte, opts ...Option) (*Signer, error) {
	if len(key) < MinKeyLength {
		return nil, fmt.Errorf("%w: key must be at least %d bytes", ErrInvalidConfig, MinKeyLength)
	}
	s := &Signer{
		key:           append([]byte(nil), key...),
		defaultExpiry: 10 * time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign returns value signed for the cookie called name. A non-positive
// expiry uses the default.
func (s *Signer) Sign(name, value string, expiry time.Duration) string {
	if expiry <= 0 {
		expiry = s.defaultExpiry
	}
	expires := s.now().Add(expiry).Unix()
	encoded := base64.RawURLEncoding.EncodeToString([]byte(value))
	return encoded + "." + strconv.FormatInt(expires, 10) + "." + s.signature(name, expires, encoded)
}

// Verify checks the signature and expiry of signed and returns the original
// value.
func (s *Signer) Verify(name, signed string) (string, error) {
	encoded, expires, sig, err := split(signed)
	if err != nil {
		return "", err
	}

	expected := s.signature(name, expires, encoded)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", ErrInvalidSignature
	}
	if s.now().Unix() > expires {
		return "", ErrExpired
	}

	value, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(value), nil
}

func split(signed string) (encoded string, expires int64, sig string, err error) {
	parts := strings.Split(signed, ".")
	if len(parts) != 3 || parts[2] == "" {
		return "", 0, "", ErrMalformed
	}
	expires, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("%w: invalid expiration", ErrMalformed)
	}
	return parts[0], expires, parts[2], nil
}

func (s *Signer) signature(name string, expires int64, encoded string) string {
	h := hmac.New(sha256.New, s.key)
	fmt.Fprintf(h, "%s|%d|%s", name, expires, encoded)
	return hex.EncodeToString(h.Sum(nil))
}
