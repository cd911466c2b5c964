package flow

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind classifies callback failures.
type Kind int

const (
	KindProvider Kind = iota + 1
	KindParameter
	KindSecurity
	KindExchange
	KindProfile
	KindResolution
	KindConfiguration
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindProvider:
		return "provider"
	case KindParameter:
		return "parameter"
	case KindSecurity:
		return "security"
	case KindExchange:
		return "exchange"
	case KindProfile:
		return "profile"
	case KindResolution:
		return "resolution"
	case KindConfiguration:
		return "configuration"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// User-facing reasons carried to the login page.
const (
	reasonNoCode          = "No authorization code received"
	reasonNoState         = "Missing OAuth state"
	reasonInvalidState    = "Invalid OAuth state"
	reasonConfiguration   = "OAuth configuration error"
	reasonExchange        = "Failed to exchange authorization code"
	reasonProfile         = "Failed to get user information"
	reasonDatabase        = "Database error occurred"
	reasonAuthFailed      = "Authentication failed"
	reasonMissingEmailFmt = "Unable to retrieve email from %s"
	reasonUnverifiedFmt   = "Your %s email address is not verified"
)

// Error is a callback failure. Reason is safe to show to the user; Err holds
// the detail that is only logged.
type Error struct {
	Kind   Kind
	Step   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failure at %s: %s", e.Kind, e.Step, e.Reason)
	}
	return fmt.Sprintf("%s failure at %s: %s: %v", e.Kind, e.Step, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// providerReason maps an OAuth error code returned to the callback.
func providerReason(code, display string) string {
	switch code {
	case "access_denied":
		return "You denied access to your " + display + " account"
	case "invalid_request":
		return "Invalid OAuth request"
	case "unauthorized_client":
		return "Unauthorized OAuth client"
	case "unsupported_response_type":
		return "Unsupported OAuth response type"
	case "invalid_scope":
		return "Invalid OAuth scope requested"
	case "server_error":
		return display + " OAuth server error"
	case "temporarily_unavailable":
		return display + " OAuth temporarily unavailable"
	default:
		return display + " authentication failed"
	}
}

// escapeReason query-escapes s with spaces as %20.
func escapeReason(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
