package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/beaver-signin/oauth"
)

// ErrStore wraps every persistence failure returned by Resolve.
var ErrStore = errors.New("account store failure")

// ErrInvalidInput is returned when the identity cannot be resolved at all.
var ErrInvalidInput = errors.New("invalid identity")

// ErrUnverifiedEmail is returned when an identity whose email the provider
// did not verify would be attached to an account, either by linking it to an
// existing account, replacing the subject of an existing link or creating a
// new account.
var ErrUnverifiedEmail = errors.New("email not verified by provider")

// Outcome is the result of resolving an identity.
type Outcome int

const (
	// OutcomeUpdated means an existing link was refreshed.
	OutcomeUpdated Outcome = iota + 1
	// OutcomeLinked means a new provider link was added to an existing account.
	OutcomeLinked
	// OutcomeCreated means a new account and link were created.
	OutcomeCreated
	// OutcomeRejected means no account exists and sign-up was not requested.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpdated:
		return "updated"
	case OutcomeLinked:
		return "linked"
	case OutcomeCreated:
		return "created"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Credentials are the provider tokens in their encrypted, storable form.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Input is what the callback knows once the provider has answered.
type Input struct {
	Identity    oauth.Identity
	Credentials Credentials
	// Signup allows account creation (sign-up or trial flows).
	Signup bool
}

// Resolution is the result of Resolve. Account is nil when rejected.
type Resolution struct {
	Outcome Outcome
	Account *Account
	Email   string
}

// Welcomer is told about newly created accounts.
type Welcomer interface {
	Welcome(ctx context.Context, email, displayName string) error
}

// Resolver maps a provider identity onto an account.
type Resolver struct {
	store          Store
	welcomer       Welcomer
	logger         *slog.Logger
	welcomeTimeout time.Duration
	maxAttempts    int

	wg sync.WaitGroup
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithWelcomer notifies w after every account creation.
func WithWelcomer(w Welcomer) ResolverOption {
	return func(r *Resolver) { r.welcomer = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// WithWelcomeTimeout bounds each welcome notification.
func WithWelcomeTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.welcomeTimeout = d
		}
	}
}

// WithMaxAttempts bounds re-resolution after uniqueness conflicts.
func WithMaxAttempts(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// NewResolver creates a resolver on store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:          store,
		logger:         slog.Default(),
		welcomeTimeout: 10 * time.Second,
		maxAttempts:    3,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "account")
	return r
}

// Resolve applies the first matching rule: update an existing link, link a
// new provider to an existing account, create an account when sign-up is
// allowed, or reject. A uniqueness conflict means another sign-in for the
// same email committed first; resolution is then retried so it converges to
// update or link.
//
// Only an existing link with the same provider subject may be updated from an
// unverified email. Every other mutation fails with ErrUnverifiedEmail.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Resolution, error) {
	email := strings.ToLower(strings.TrimSpace(in.Identity.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrInvalidInput)
	}
	if in.Identity.Provider == "" || in.Identity.ProviderID == "" {
		return nil, fmt.Errorf("%w: missing provider subject", ErrInvalidInput)
	}

	for attempt := 1; ; attempt++ {
		res, err := r.resolveOnce(ctx, email, in)
		if err == nil {
			if res.Outcome == OutcomeCreated {
				r.welcome(res.Account, in.Identity.DisplayName)
			}
			return res, nil
		}
		if errors.Is(err, ErrUnverifiedEmail) {
			r.logger.Warn("refusing identity with unverified email",
				"provider", in.Identity.Provider)
			return nil, err
		}
		if errors.Is(err, ErrConflict) && attempt < r.maxAttempts {
			r.logger.Debug("concurrent sign-in detected, resolving again",
				"provider", in.Identity.Provider, "attempt", attempt, "error", err)
			continue
		}
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
}

func (r *Resolver) resolveOnce(ctx context.Context, email string, in Input) (*Resolution, error) {
	acct, err := r.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	verified := in.Identity.EmailVerified
	if acct != nil {
		if link := acct.Link(in.Identity.Provider); link != nil {
			if !verified && link.ProviderID != in.Identity.ProviderID {
				return nil, ErrUnverifiedEmail
			}
			applyIdentity(link, email, in)
			if err := r.store.UpdateLink(ctx, link); err != nil {
				return nil, err
			}
			return &Resolution{Outcome: OutcomeUpdated, Account: acct, Email: email}, nil
		}

		if !verified {
			return nil, ErrUnverifiedEmail
		}
		link := newLink(acct.ID, email, in)
		if err := r.store.CreateLink(ctx, link); err != nil {
			return nil, err
		}
		acct.Links = append(acct.Links, *link)
		return &Resolution{Outcome: OutcomeLinked, Account: acct, Email: email}, nil
	}

	if !in.Signup {
		return &Resolution{Outcome: OutcomeRejected, Email: email}, nil
	}
	if !verified {
		return nil, ErrUnverifiedEmail
	}

	username, err := GenerateUsername(email)
	if err != nil {
		return nil, err
	}
	displayName := in.Identity.DisplayName
	if displayName == "" {
		displayName = username
	}
	acct = &Account{
		Email:       email,
		Username:    username,
		DisplayName: displayName,
		AvatarURL:   in.Identity.AvatarURL,
		Country:     DefaultCountry,
		Currency:    DefaultCurrency,
	}
	if err := r.store.CreateAccount(ctx, acct, newLink("", email, in)); err != nil {
		return nil, err
	}
	return &Resolution{Outcome: OutcomeCreated, Account: acct, Email: email}, nil
}

// applyIdentity refreshes a link in place. A token response without a
// refresh token keeps the stored one.
func applyIdentity(link *LinkedAccount, email string, in Input) {
	link.ProviderID = in.Identity.ProviderID
	link.Email = email
	link.DisplayName = in.Identity.DisplayName
	link.AvatarURL = in.Identity.AvatarURL
	link.AccessToken = in.Credentials.AccessToken
	if in.Credentials.RefreshToken != "" {
		link.RefreshToken = in.Credentials.RefreshToken
	}
	link.TokenExpiry = expiry(in.Credentials.ExpiresAt)
}

func newLink(accountID, email string, in Input) *LinkedAccount {
	return &LinkedAccount{
		AccountID:    accountID,
		Provider:     in.Identity.Provider,
		ProviderID:   in.Identity.ProviderID,
		Email:        email,
		DisplayName:  in.Identity.DisplayName,
		AvatarURL:    in.Identity.AvatarURL,
		AccessToken:  in.Credentials.AccessToken,
		RefreshToken: in.Credentials.RefreshToken,
		TokenExpiry:  expiry(in.Credentials.ExpiresAt),
	}
}

func expiry(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// welcome notifies the welcomer without blocking the sign-in. Failures are
// logged only.
func (r *Resolver) welcome(acct *Account, name string) {
	if r.welcomer == nil || acct == nil {
		return
	}
	displayName := name
	if displayName == "" {
		displayName = acct.Username
	}
	email := acct.Email

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("welcome notification panicked", "panic", p)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.welcomeTimeout)
		defer cancel()
		if err := r.welcomer.Welcome(ctx, email, displayName); err != nil {
			r.logger.Warn("failed to send welcome notification", "error", err)
		}
	}()
}

// Wait blocks until pending welcome notifications have finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}
