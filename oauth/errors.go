package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates missing or unusable provider credentials.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProviderNotFound indicates an unknown provider name.
	ErrProviderNotFound = errors.New("oauth provider not found")

	// ErrTransport indicates the provider could not be reached in time.
	ErrTransport = errors.New("provider unreachable")

	// ErrTokenExchange indicates the token endpoint rejected the code.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrProfileFetch indicates the profile could not be read.
	ErrProfileFetch = errors.New("profile fetch failed")

	// ErrMissingEmail indicates the profile carried no email address.
	ErrMissingEmail = errors.New("profile has no email")

	// ErrInvalidResponse indicates a malformed provider response.
	ErrInvalidResponse = errors.New("invalid response from provider")

	// ErrAccessDenied indicates the user denied consent.
	ErrAccessDenied = errors.New("access denied by user")

	// ErrInvalidGrant indicates an expired, reused or mismatched code.
	ErrInvalidGrant = errors.New("invalid authorization grant")
)

// Error is an error reported by a provider endpoint.
type Error struct {
	Provider    string // Provider where error occurred
	Op          string // "exchange" or "profile"
	Code        string // OAuth error code (e.g., "invalid_grant")
	Description string // Provider description; logged, never shown to users
	Status      int    // HTTP status, 0 for transport failures
	Err         error  // Underlying error
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("oauth %s [%s]: %s (%s)", e.Op, e.Provider, e.Description, e.Code)
	case e.Code != "":
		return fmt.Sprintf("oauth %s [%s]: %s", e.Op, e.Provider, e.Code)
	case e.Status != 0:
		return fmt.Sprintf("oauth %s [%s]: unexpected status %d: %v", e.Op, e.Provider, e.Status, e.Err)
	default:
		return fmt.Sprintf("oauth %s [%s]: %v", e.Op, e.Provider, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// codeError maps an OAuth error code from a token response onto a sentinel.
func codeError(code string) error {
	switch code {
	case "access_denied":
		return fmt.Errorf("%w: %w", ErrTokenExchange, ErrAccessDenied)
	case "invalid_grant", "invalid_request":
		return fmt.Errorf("%w: %w", ErrTokenExchange, ErrInvalidGrant)
	default:
		return ErrTokenExchange
	}
}
