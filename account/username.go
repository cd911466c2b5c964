package account

import (
	"strings"

	"github.com/gobeaver/beaver-signin/krypto"
)

const usernameSuffixLength = 4

// GenerateUsername derives a username from the local part of email with
// non-alphanumerics removed, followed by four random base36 characters.
func GenerateUsername(email string) (string, error) {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range local {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		base = "user"
	}

	suffix, err := krypto.GenerateRandomString(usernameSuffixLength, krypto.Base36)
	if err != nil {
		return "", err
	}
	return base + suffix, nil
}
