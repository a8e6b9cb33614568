package gateway

import (
	"sync"
	"time"
)

// rateWindowEntry records one acquired request's token cost at the time
// it was granted, for sliding-window pruning.
type rateWindowEntry struct {
	at     time.Time
	tokens int
}

// modelLimiterState is the per-model sliding-window state protected by
// RateLimiter.mu, mirroring the teacher's ClientLimiter shape
// (internal/mcp/protocol/ratelimiter.go) adapted from a per-client to a
// per-model token-bucket-over-a-window limiter.
type modelLimiterState struct {
	rpm     int
	tpm     int
	window  []rateWindowEntry
}

// RateLimiter enforces per-model requests-per-minute and tokens-per-minute
// budgets over a sliding 60-second window. Pruning of expired entries runs
// on every Acquire call, matching the spec's documented contract.
type RateLimiter struct {
	mu      sync.Mutex
	models  map[string]*modelLimiterState
	window  time.Duration
}

// NewRateLimiter creates a rate limiter with a 60-second sliding window.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		models: make(map[string]*modelLimiterState),
		window: 60 * time.Second,
	}
}

// Register declares a model's RPM and TPM budget. Calling it again resets
// that model's window.
func (r *RateLimiter) Register(model string, rpm, tpm int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model] = &modelLimiterState{rpm: rpm, tpm: tpm}
}

// Acquire prunes entries older than the window, then admits the request if
// both the request count and the token total (existing + estimated) stay
// within budget. On admission the request is recorded in the window.
func (r *RateLimiter) Acquire(model string, estimatedTokens int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.models[model]
	if !ok {
		// Unregistered models are unthrottled; the endpoint registry is the
		// source of truth for which models exist at all.
		return true
	}

	now := time.Now()
	cutoff := now.Add(-r.window)
	pruned := state.window[:0]
	for _, e := range state.window {
		if e.at.After(cutoff) {
			pruned = append(pruned, e)
		}
	}
	state.window = pruned

	if len(state.window) >= state.rpm {
		return false
	}

	tokenTotal := estimatedTokens
	for _, e := range state.window {
		tokenTotal += e.tokens
	}
	if tokenTotal > state.tpm {
		return false
	}

	state.window = append(state.window, rateWindowEntry{at: now, tokens: estimatedTokens})
	return true
}
