package oauth

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// ErrCircuitOpen is returned without contacting the provider while the
// breaker is open. It wraps ErrTransport.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open: %w", ErrTransport)

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int
	// Cooldown is how long the breaker stays open before letting one probe through
	Cooldown time.Duration
	// OnStateChange is called when the breaker changes state
	OnStateChange func(from, to string)
}

// Breaker fails provider calls fast after repeated transport failures. It
// never retries: each call is attempted at most once.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu                  sync.Mutex
	state               string
	consecutiveFailures int
	openUntil           time.Time
	probing             bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now, state: StateClosed}
}

// Call runs fn unless the breaker is open. Only failures for which
// countsAsOutage is true move the breaker towards open.
func (b *Breaker) Call(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Before(b.openUntil) {
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if !countsAsOutage(err) {
		b.consecutiveFailures = 0
		if b.state != StateClosed {
			b.setState(StateClosed)
		}
		return
	}

	b.consecutiveFailures++
	if b.state == StateHalfOpen || b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.openUntil = b.now().Add(b.cfg.Cooldown)
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(to string) {
	from := b.state
	b.state = to
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

// countsAsOutage separates provider outages from ordinary rejections such
// as an expired authorization code.
func countsAsOutage(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransport) {
		return true
	}
	var oauthErr *Error
	return errors.As(err, &oauthErr) && oauthErr.Status >= 500
}
