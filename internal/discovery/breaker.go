package discovery

import (
	"sync"
	"time"
)

type cbState int

const (
	cbClosed cbState = iota
	cbOpen
	cbHalfOpen
)

func (s cbState) String() string {
	switch s {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	Enabled             bool
	FailureThreshold    int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
}

// Breaker takes an address out of rotation after consecutive failed wire calls
type Breaker struct {
	cfg             BreakerConfig
	state           cbState
	failures        int
	halfOpenSuccess int
	lastFailureAt   time.Time
	now             func() time.Time
	mu              sync.Mutex
}

// NewBreaker creates a new Breaker
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 2
	}
	return &Breaker{
		cfg:   cfg,
		state: cbClosed,
		now:   time.Now,
	}
}

// Allow reports whether the address may receive a wire call
func (b *Breaker) Allow() bool {
	if !b.cfg.Enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case cbHalfOpen:
		return b.halfOpenSuccess < b.cfg.HalfOpenMaxRequests
	case cbOpen:
		if b.now().Sub(b.lastFailureAt) >= b.cfg.RecoveryTimeout {
			b.state = cbHalfOpen
			b.halfOpenSuccess = 0
			return true
		}
		return false
	default:
		return true
	}
}

// Success records a completed wire call
func (b *Breaker) Success() {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case cbHalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.HalfOpenMaxRequests {
			b.state = cbClosed
			b.failures = 0
		}
	case cbClosed:
		b.failures = 0
	}
}

// Failure records a failed wire call
func (b *Breaker) Failure() {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = b.now()

	switch b.state {
	case cbClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = cbOpen
		}
	case cbHalfOpen:
		b.state = cbOpen
		b.halfOpenSuccess = 0
	}
}

// State returns closed, open or half-open
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}
