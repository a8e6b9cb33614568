package gateway

import (
	"sync"
	"sync/atomic"
	"time"
)

// BreakerState is one of Closed, Open, HalfOpen.
type BreakerState int32

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a per-model circuit breaker. State is read via an atomic
// load on the hot path; transitions take the guard mutex so a
// HalfOpen-probe admission and a concurrent RecordFailure can't race each
// other into an inconsistent failure count.
//
// Grounded on the teacher's internal/mcp/errors/circuit_breaker.go state
// machine (Threshold/Timeout fields, failure-count-driven transitions),
// adapted from an http.Client wrapper to the exact Closed/Open/HalfOpen
// semantics this spec names.
type Breaker struct {
	state            atomic.Int32
	failureThreshold int
	recoveryTimeout  time.Duration

	guard           sync.Mutex
	consecutiveFail int
	openedAt        time.Time
}

// NewBreaker creates a breaker with the given consecutive-failure
// threshold and recovery timeout. Defaults to 5 failures / 30s per
// spec.md if either is zero.
func NewBreaker(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &Breaker{failureThreshold: failureThreshold, recoveryTimeout: recoveryTimeout}
}

// Allow reports whether a call may proceed, transitioning Open to
// HalfOpen once the recovery timeout has elapsed.
func (b *Breaker) Allow() bool {
	switch BreakerState(b.state.Load()) {
	case Closed, HalfOpen:
		return true
	case Open:
		b.guard.Lock()
		defer b.guard.Unlock()
		if BreakerState(b.state.Load()) != Open {
			return true
		}
		if time.Since(b.openedAt) >= b.recoveryTimeout {
			b.state.Store(int32(HalfOpen))
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets the breaker to Closed and zeros the failure count.
func (b *Breaker) RecordSuccess() {
	b.guard.Lock()
	defer b.guard.Unlock()
	b.consecutiveFail = 0
	b.state.Store(int32(Closed))
}

// RecordFailure increments the consecutive failure count and trips the
// breaker to Open once the threshold is reached.
func (b *Breaker) RecordFailure() {
	b.guard.Lock()
	defer b.guard.Unlock()
	b.consecutiveFail++
	if BreakerState(b.state.Load()) == HalfOpen || b.consecutiveFail >= b.failureThreshold {
		b.state.Store(int32(Open))
		b.openedAt = time.Now()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	return BreakerState(b.state.Load())
}
