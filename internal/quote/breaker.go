package quote

import (
	"sync"
	"time"
)

// CircuitState represents the state of a source circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // Normal operation
	CircuitOpen     CircuitState = "OPEN"      // Failing, source skipped
	CircuitHalfOpen CircuitState = "HALF_OPEN" // One trial call allowed
)

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// source is skipped. Zero disables the breaker.
	FailureThreshold int
	// Cooldown is how long an open breaker skips the source.
	Cooldown time.Duration
}

// Breaker tracks consecutive failures of one source.
type Breaker struct {
	name   string
	config BreakerConfig
	now    func() time.Time

	mu          sync.Mutex
	state       CircuitState
	failures    int
	openedAt    time.Time
	trialActive bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, config BreakerConfig, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		name:   name,
		config: config,
		now:    now,
		state:  CircuitClosed,
	}
}

// Allow reports whether the source may be called now.
func (b *Breaker) Allow() bool {
	if b == nil || b.config.FailureThreshold <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) >= b.config.Cooldown {
			b.state = CircuitHalfOpen
			b.trialActive = true
			return true
		}
		return false
	case CircuitHalfOpen:
		if b.trialActive {
			return false
		}
		b.trialActive = true
		return true
	}
	return true
}

// Success records a successful call.
func (b *Breaker) Success() {
	if b == nil || b.config.FailureThreshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
	b.trialActive = false
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	if b == nil || b.config.FailureThreshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		// Any failure in half-open goes back to open
		b.open()
	case CircuitClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.open()
		}
	}
}

func (b *Breaker) open() {
	b.state = CircuitOpen
	b.openedAt = b.now()
	b.failures = 0
	b.trialActive = false
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the source name.
func (b *Breaker) Name() string {
	return b.name
}
