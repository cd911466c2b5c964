package flow

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gobeaver/beaver-signin/oauth"
)

// Initiate starts a sign-in: it mints state and PKCE, stores them with the
// signup context in signed cookies and redirects to the provider.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	name, p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	display := p.Descriptor.DisplayName
	logger := h.logger.With("provider", name)

	if p.Client == nil {
		h.metrics.initiated(name, "unconfigured")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": display + " OAuth not configured. Please set " + settingsList(name, p.Settings) + " environment variables.",
		})
		return
	}

	state, err := oauth.NewState()
	if err != nil {
		h.initiateFailed(w, name, display, logger, err)
		return
	}
	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		h.initiateFailed(w, name, display, logger, err)
		return
	}

	q := r.URL.Query()
	sc := SignupContext{
		IsSignUp: q.Get("signup") == "true",
		IsTrial:  q.Get("trial") == "true",
		ReturnTo: DefaultReturnTo,
	}
	if rt := q.Get("returnTo"); rt != "" {
		sc.ReturnTo = SanitizeReturnTo(rt)
	}
	raw, err := json.Marshal(sc)
	if err != nil {
		h.initiateFailed(w, name, display, logger, err)
		return
	}

	attrs := h.cookieAttrs(p)
	h.cookies.Set(w, stateCookie(name), state, attrs)
	h.cookies.Set(w, verifierCookie(name), pkce.Verifier, attrs)
	h.cookies.Set(w, contextCookie(name), string(raw), attrs)

	authURL := p.Client.AuthorizationURL(h.redirectURI(name), state, pkce.Challenge)
	h.metrics.initiated(name, "redirected")
	logger.Debug("sign-in initiated", "signup", sc.IsSignUp, "trial", sc.IsTrial)

	noStore(w)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *Handler) initiateFailed(w http.ResponseWriter, name, display string, logger *slog.Logger, err error) {
	h.metrics.initiated(name, "error")
	logger.Error("failed to initiate sign-in", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "Failed to initiate " + display + " authentication",
	})
}

// settingsList joins the variable names as "A, B and C". Without explicit
// names it falls back to the client id and secret pair.
func settingsList(name string, settings []string) string {
	if len(settings) == 0 {
		upper := strings.ToUpper(name)
		settings = []string{upper + "_CLIENT_ID", upper + "_CLIENT_SECRET"}
	}
	if len(settings) == 1 {
		return settings[0]
	}
	return strings.Join(settings[:len(settings)-1], ", ") + " and " + settings[len(settings)-1]
}
