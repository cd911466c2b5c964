package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/gobeaver/beaver-signin/krypto"
)

// MethodS256 is the only challenge method issued.
const MethodS256 = "S256"

const (
	randomBytes       = 32
	minVerifierLength = 43
	maxVerifierLength = 128
)

// NewState returns a fresh CSRF state value (32 random bytes, base64url).
func NewState() (string, error) {
	state, err := krypto.GenerateURLSafeToken(randomBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return state, nil
}

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() (string, error) {
	verifier, err := krypto.GenerateURLSafeToken(randomBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	if len(verifier) < minVerifierLength {
		return "", fmt.Errorf("generated verifier too short: %d chars", len(verifier))
	}
	return verifier, nil
}

// Challenge derives the S256 challenge for verifier.
func Challenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// GeneratePKCE creates a verifier and its S256 challenge.
func GeneratePKCE() (*PKCE, error) {
	verifier, err := NewVerifier()
	if err != nil {
		return nil, err
	}
	return &PKCE{
		Verifier:        verifier,
		Challenge:       Challenge(verifier),
		ChallengeMethod: MethodS256,
	}, nil
}

// VerifyChallenge reports whether verifier is well formed and hashes to
// challenge under method.
func VerifyChallenge(verifier, challenge, method string) bool {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return false
	}
	var expected string
	switch method {
	case MethodS256:
		expected = Challenge(verifier)
	case "plain":
		expected = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}
