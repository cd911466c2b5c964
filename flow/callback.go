package flow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gobeaver/beaver-signin/account"
	"github.com/gobeaver/beaver-signin/oauth"
	"github.com/gobeaver/beaver-signin/signedcookie"
)

type callbackResult struct {
	location string
	outcome  string
	session  string
	err      *Error
}

// Callback completes a sign-in. It always answers 302, to the return path on
// success, to the signup page for unknown emails and to the login page on
// failure, and it always clears the transient cookies.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	name, p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	start := h.now()

	res := h.runCallback(r, name, p)

	h.clearTransient(w, name, p)
	if res.session != "" {
		h.sessions.SetCookie(w, res.session)
	}
	noStore(w)

	var kind Kind
	if res.err != nil {
		kind = res.err.Kind
	}
	h.metrics.completed(name, res.outcome, kind, h.now().Sub(start))

	http.Redirect(w, r, res.location, http.StatusFound)
}

func (h *Handler) runCallback(r *http.Request, name string, p Provider) (res callbackResult) {
	defer func() {
		if v := recover(); v != nil {
			res = h.failure(name, &Error{Kind: KindInternal, Step: "panic", Reason: reasonAuthFailed, Err: fmt.Errorf("recovered: %v", v)})
		}
	}()

	ctx := r.Context()
	display := p.Descriptor.DisplayName

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return h.failure(name, &Error{Kind: KindParameter, Step: "params", Reason: reasonNoCode, Err: err})
		}
	}

	if code := r.FormValue("error"); code != "" {
		return h.failure(name, &Error{
			Kind:   KindProvider,
			Step:   "provider",
			Reason: providerReason(code, display),
			Err:    fmt.Errorf("provider returned %s: %s", code, r.FormValue("error_description")),
		})
	}

	code := r.FormValue("code")
	if code == "" {
		return h.failure(name, &Error{Kind: KindParameter, Step: "params", Reason: reasonNoCode})
	}
	state := r.FormValue("state")
	if state == "" {
		return h.failure(name, &Error{Kind: KindParameter, Step: "params", Reason: reasonNoState})
	}

	if p.Client == nil {
		return h.failure(name, &Error{Kind: KindConfiguration, Step: "config", Reason: reasonConfiguration, Err: oauth.ErrInvalidConfig})
	}

	verifier, err := h.verifyState(ctx, r, name, state)
	if err != nil {
		return h.failure(name, err)
	}

	sc := h.readContext(r, name)

	tokens, xerr := p.Client.ExchangeCode(ctx, code, h.redirectURI(name), verifier)
	if xerr != nil {
		return h.failure(name, &Error{Kind: KindExchange, Step: "exchange", Reason: reasonExchange, Err: xerr})
	}

	id, perr := p.Client.FetchProfile(ctx, tokens)
	if perr != nil {
		reason := reasonProfile
		if errors.Is(perr, oauth.ErrMissingEmail) {
			reason = fmt.Sprintf(reasonMissingEmailFmt, display)
		}
		return h.failure(name, &Error{Kind: KindProfile, Step: "profile", Reason: reason, Err: perr})
	}
	if id.Provider == "" {
		id.Provider = name
	}

	creds, cerr := h.seal(tokens)
	if cerr != nil {
		return h.failure(name, &Error{Kind: KindInternal, Step: "encrypt", Reason: reasonAuthFailed, Err: cerr})
	}

	resolution, rerr := h.resolver.Resolve(ctx, account.Input{
		Identity:    *id,
		Credentials: creds,
		Signup:      sc.AllowsSignup(),
	})
	if rerr != nil {
		e := &Error{Kind: KindInternal, Step: "resolve", Reason: reasonAuthFailed, Err: rerr}
		switch {
		case errors.Is(rerr, account.ErrUnverifiedEmail):
			e.Kind, e.Reason = KindResolution, fmt.Sprintf(reasonUnverifiedFmt, display)
		case errors.Is(rerr, account.ErrStore):
			e.Kind, e.Reason = KindResolution, reasonDatabase
		}
		return h.failure(name, e)
	}

	logger := h.logger.With("provider", name, "outcome", resolution.Outcome.String())

	if resolution.Outcome == account.OutcomeRejected {
		logger.Info("sign-in rejected, no account for email")
		return callbackResult{
			location: h.cfg.BaseURL + h.cfg.SignupPath + "?prefill=" + url.QueryEscape(resolution.Email) + "&provider=" + name,
			outcome:  resolution.Outcome.String(),
		}
	}

	acct := resolution.Account
	token, _, serr := h.sessions.Issue(acct.ID, acct.Email, name)
	if serr != nil {
		return h.failure(name, &Error{Kind: KindInternal, Step: "session", Reason: reasonAuthFailed, Err: serr})
	}

	pairs := "oauth=success&linked=" + name
	if resolution.Outcome == account.OutcomeCreated {
		pairs = "welcome=true&oauth=success&provider=" + name
	}
	logger.Info("sign-in completed", "account_id", acct.ID)

	return callbackResult{
		location: h.cfg.BaseURL + withQuery(sc.ReturnTo, pairs),
		outcome:  resolution.Outcome.String(),
		session:  token,
	}
}

// verifyState checks the state cookie against the callback state, consumes
// the state in the replay cache and returns the PKCE verifier.
func (h *Handler) verifyState(ctx context.Context, r *http.Request, name, state string) (string, *Error) {
	stored, err := h.cookies.Read(r, stateCookie(name))
	if err != nil {
		return "", &Error{Kind: KindSecurity, Step: "state", Reason: reasonInvalidState, Err: err}
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(state)) != 1 {
		return "", &Error{Kind: KindSecurity, Step: "state", Reason: reasonInvalidState, Err: errors.New("state mismatch")}
	}
	verifier, err := h.cookies.Read(r, verifierCookie(name))
	if err != nil || verifier == "" {
		if err == nil {
			err = errors.New("empty verifier")
		}
		return "", &Error{Kind: KindSecurity, Step: "verifier", Reason: reasonInvalidState, Err: err}
	}

	if h.replay != nil {
		fresh, err := h.replay.SetIfAbsent(ctx, replayKey(name, state), []byte("1"), h.cfg.StateTTL)
		if err != nil {
			return "", &Error{Kind: KindInternal, Step: "replay", Reason: reasonAuthFailed, Err: err}
		}
		if !fresh {
			return "", &Error{Kind: KindSecurity, Step: "replay", Reason: reasonInvalidState, Err: ErrReplay}
		}
	}
	return verifier, nil
}

// readContext never fails; unusable cookies fall back to DefaultContext.
func (h *Handler) readContext(r *http.Request, name string) SignupContext {
	raw, err := h.cookies.Read(r, contextCookie(name))
	var res ContextResult
	switch {
	case errors.Is(err, signedcookie.ErrNoCookie):
		res = ParseContext("")
	case err != nil:
		res = ContextResult{Context: DefaultContext(), Status: ContextMalformed}
	default:
		res = ParseContext(raw)
	}
	if res.Status != ContextParsed {
		h.logger.Debug("signup context unavailable, using default", "provider", name, "status", res.Status.String(), "error", err)
	}
	return res.Context
}

func (h *Handler) seal(tokens *oauth.TokenSet) (account.Credentials, error) {
	creds := account.Credentials{ExpiresAt: tokens.ExpiresAt}
	var err error
	if creds.AccessToken, err = h.tokens.EncryptToken(tokens.AccessToken); err != nil {
		return account.Credentials{}, fmt.Errorf("seal access token: %w", err)
	}
	if tokens.HasRefreshToken() {
		if creds.RefreshToken, err = h.tokens.EncryptToken(tokens.RefreshToken); err != nil {
			return account.Credentials{}, fmt.Errorf("seal refresh token: %w", err)
		}
	}
	return creds, nil
}

func (h *Handler) failure(name string, e *Error) callbackResult {
	h.logger.Warn("sign-in callback failed",
		"provider", name,
		"step", e.Step,
		"kind", e.Kind.String(),
		"reason", e.Reason,
		"error", e.Err,
	)
	return callbackResult{
		location: h.cfg.BaseURL + h.cfg.LoginPath + "?error=" + escapeReason(e.Reason),
		outcome:  "failed",
		err:      e,
	}
}
