package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const tokenVersion = "v1."

var (
	// ErrInvalidKeySize is returned for keys that are not 16, 24 or 32 bytes.
	ErrInvalidKeySize = errors.New("krypto: key must be 16, 24 or 32 bytes")
	// ErrMalformedCiphertext is returned when a sealed value cannot be decoded.
	ErrMalformedCiphertext = errors.New("krypto: malformed ciphertext")
	// ErrDecrypt is returned when authentication of a sealed value fails.
	ErrDecrypt = errors.New("krypto: decryption failed")
)

// TokenEncryptor seals provider credentials before they are persisted.
type TokenEncryptor interface {
	EncryptToken(plaintext string) (string, error)
	DecryptToken(sealed string) (string, error)
}

// TokenCipher implements TokenEncryptor with AES-GCM. Sealed values are
// "v1." followed by base64url(nonce || ciphertext).
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher creates an AES-GCM cipher for the given key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &TokenCipher{gcm: gcm}, nil
}

// Encrypt seals data with a fresh random nonce.
func (c *TokenCipher) Encrypt(data []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.gcm.Seal(nil, nonce, data, nil), nonce, nil
}

// Decrypt opens data sealed by Encrypt.
func (c *TokenCipher) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != c.gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce size: got %d, want %d: %w", len(nonce), c.gcm.NonceSize(), ErrMalformedCiphertext)
	}
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// EncryptToken seals a token into a single storable string. The empty string
// stays empty so optional credentials remain absent.
func (c *TokenCipher) EncryptToken(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ciphertext, nonce, err := c.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return tokenVersion + base64.RawURLEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

// DecryptToken reverses EncryptToken.
func (c *TokenCipher) DecryptToken(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, tokenVersion) {
		return "", ErrMalformedCiphertext
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, tokenVersion))
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", ErrMalformedCiphertext)
	}
	nonceSize := c.gcm.NonceSize()
	if len(raw) < nonceSize+c.gcm.Overhead() {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := c.Decrypt(raw[nonceSize:], raw[:nonceSize])
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
