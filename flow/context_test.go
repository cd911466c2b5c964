package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContext(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   SignupContext
		status ContextStatus
	}{
		{"absent", "", DefaultContext(), ContextAbsent},
		{"malformed", "{not json", DefaultContext(), ContextMalformed},
		{"signup", `{"isSignUp":true,"returnTo":"/invoices"}`, SignupContext{IsSignUp: true, ReturnTo: "/invoices"}, ContextParsed},
		{"trial without return path", `{"isTrial":true}`, SignupContext{IsTrial: true, ReturnTo: DefaultReturnTo}, ContextParsed},
		{"foreign return path", `{"returnTo":"https://evil.example.com"}`, DefaultContext(), ContextParsed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseContext(tt.raw)
			assert.Equal(t, tt.want, got.Context)
			assert.Equal(t, tt.status, got.Status)
		})
	}
}

func TestSanitizeReturnTo(t *testing.T) {
	tests := map[string]string{
		"":                         DefaultReturnTo,
		"/invoices":                "/invoices",
		"/invoices?tab=open":       "/invoices?tab=open",
		"/settings#billing":        "/settings",
		"//evil.example.com":       DefaultReturnTo,
		"/\\evil.example.com":      DefaultReturnTo,
		"https://evil.example.com": DefaultReturnTo,
		"javascript:alert(1)":      DefaultReturnTo,
		"invoices":                 DefaultReturnTo,
		"/a\r\nSet-Cookie: x=1":    DefaultReturnTo,
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeReturnTo(in), "SanitizeReturnTo(%q)", in)
	}
}

func TestAllowsSignup(t *testing.T) {
	assert.False(t, DefaultContext().AllowsSignup())
	assert.True(t, SignupContext{IsSignUp: true}.AllowsSignup())
	assert.True(t, SignupContext{IsTrial: true}.AllowsSignup())
}

func TestProviderReason(t *testing.T) {
	assert.Equal(t, "You denied access to your Apple account", providerReason("access_denied", "Apple"))
	assert.Equal(t, "Invalid OAuth scope requested", providerReason("invalid_scope", "Google"))
	assert.Equal(t, "Microsoft OAuth temporarily unavailable", providerReason("temporarily_unavailable", "Microsoft"))
	assert.Equal(t, "Google authentication failed", providerReason("weird", "Google"))
}

func TestEscapeReason(t *testing.T) {
	assert.Equal(t, "Invalid%20OAuth%20state", escapeReason(reasonInvalidState))
	assert.Equal(t, "a%26b%3Dc", escapeReason("a&b=c"))
}

func TestWithQuery(t *testing.T) {
	assert.Equal(t, "/dashboard?oauth=success", withQuery("/dashboard", "oauth=success"))
	assert.Equal(t, "/invoices?tab=open&oauth=success", withQuery("/invoices?tab=open", "oauth=success"))
}

func TestReplayKey(t *testing.T) {
	k := replayKey("google", "state-value")
	assert.Regexp(t, `^oauth:consumed:google:[0-9a-f]{64}$`, k)
	assert.NotEqual(t, k, replayKey("apple", "state-value"))
}

func TestSettingsList(t *testing.T) {
	assert.Equal(t, "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET", settingsList("google", nil))
	assert.Equal(t, "A", settingsList("x", []string{"A"}))
	assert.Equal(t, "A and B", settingsList("x", []string{"A", "B"}))
	assert.Equal(t, "A, B, C and D", settingsList("x", []string{"A", "B", "C", "D"}))
}
