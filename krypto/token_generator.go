package krypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
)

// Base36 is the lower-case alphanumeric charset for GenerateRandomString.
const Base36 = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateURLSafeToken returns length random bytes encoded as unpadded
// base64url. 32 bytes yields 43 characters.
func GenerateURLSafeToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateRandomString draws length characters uniformly from charset using
// crypto/rand.
func GenerateRandomString(length int, charset string) (string, error) {
	if charset == "" {
		return "", errors.New("krypto: empty charset")
	}
	charsetLen := big.NewInt(int64(len(charset)))

	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}
