package flow

import (
	"encoding/json"
	"net/url"
	"strings"
)

// DefaultReturnTo is where a successful sign-in lands without a returnTo.
const DefaultReturnTo = "/dashboard"

// SignupContext is carried from initiation to callback in a signed cookie.
type SignupContext struct {
	IsSignUp bool   `json:"isSignUp"`
	IsTrial  bool   `json:"isTrial"`
	ReturnTo string `json:"returnTo"`
}

// AllowsSignup reports whether an unknown email may create an account.
func (c SignupContext) AllowsSignup() bool {
	return c.IsSignUp || c.IsTrial
}

// DefaultContext is used when the context cookie is absent or unusable.
func DefaultContext() SignupContext {
	return SignupContext{ReturnTo: DefaultReturnTo}
}

// ContextStatus says how a SignupContext was obtained.
type ContextStatus int

const (
	ContextAbsent ContextStatus = iota
	ContextMalformed
	ContextParsed
)

func (s ContextStatus) String() string {
	switch s {
	case ContextAbsent:
		return "absent"
	case ContextMalformed:
		return "malformed"
	default:
		return "parsed"
	}
}

// ContextResult is the outcome of reading the signup context. Absent and
// malformed contexts carry DefaultContext.
type ContextResult struct {
	Context SignupContext
	Status  ContextStatus
}

// ParseContext decodes raw. It never fails.
func ParseContext(raw string) ContextResult {
	if raw == "" {
		return ContextResult{Context: DefaultContext(), Status: ContextAbsent}
	}
	var c SignupContext
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return ContextResult{Context: DefaultContext(), Status: ContextMalformed}
	}
	c.ReturnTo = SanitizeReturnTo(c.ReturnTo)
	return ContextResult{Context: c, Status: ContextParsed}
}

// SanitizeReturnTo keeps s only if it is a path on this site; anything that
// could redirect elsewhere becomes DefaultReturnTo.
func SanitizeReturnTo(s string) string {
	if s == "" || !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/\\") {
		return DefaultReturnTo
	}
	if strings.ContainsAny(s, "\\\r\n\t") {
		return DefaultReturnTo
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return DefaultReturnTo
	}
	u.Fragment = ""
	return u.String()
}

// withQuery appends raw query pairs to a local path.
func withQuery(path, pairs string) string {
	if strings.Contains(path, "?") {
		return path + "&" + pairs
	}
	return path + "?" + pairs
}
