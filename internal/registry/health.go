package registry

import (
	"sync"
	"time"
)

// CircuitState mirrors the reference corpus's timeout.CircuitBreaker states,
// repurposed here to track bidder auction outcomes (every invited auction
// a bidder does not win counts against it) rather than outbound
// adapter-call reliability — this protocol never calls bidders, it only scores what they
// send it.
type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half_open"
)

// Health tracks per-bidder participation outcomes and opens a circuit for a
// bidder that has missed (not won) several consecutive auctions, so callers
// can skip inviting it without waiting out its per-bidder timeout every
// single auction. This is purely an efficiency hint: skipping a
// circuit-broken bidder never changes auction correctness (fanout is
// best-effort and no-bid is always a valid outcome per §4.5/§4.6).
type Health struct {
	maxFailures  int
	resetTimeout time.Duration

	mu           sync.RWMutex
	failures     map[string]int
	lastFailTime map[string]time.Time
	state        map[string]CircuitState
}

// NewHealth constructs a health tracker. maxFailures consecutive misses
// (see RecordMiss) open the circuit for resetTimeout before
// allowing a half-open probe.
func NewHealth(maxFailures int, resetTimeout time.Duration) *Health {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &Health{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		failures:     make(map[string]int),
		lastFailTime: make(map[string]time.Time),
		state:        make(map[string]CircuitState),
	}
}

// Allow reports whether bidderName should be invited to the current
// auction. An open circuit whose resetTimeout has elapsed transitions to
// half-open and allows a single probe.
func (h *Health) Allow(bidderName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.getStateLocked(bidderName) {
	case StateOpen:
		if time.Since(h.lastFailTime[bidderName]) > h.resetTimeout {
			h.state[bidderName] = StateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordWin records an auction bidderName won, resetting its miss count.
func (h *Health) RecordWin(bidderName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[bidderName] = 0
	h.state[bidderName] = StateClosed
}

// RecordMiss records an auction in which bidderName was invited but did not
// win, whether it bid and lost or never bid before the window closed.
func (h *Health) RecordMiss(bidderName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[bidderName]++
	h.lastFailTime[bidderName] = time.Now()
	if h.failures[bidderName] >= h.maxFailures {
		h.state[bidderName] = StateOpen
	}
}

// State returns the current circuit state for a bidder (closed if unseen).
func (h *Health) State(bidderName string) CircuitState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.getStateLocked(bidderName)
}

func (h *Health) getStateLocked(bidderName string) CircuitState {
	if s, ok := h.state[bidderName]; ok {
		return s
	}
	return StateClosed
}

// Reset clears all tracked state for a bidder, used by operators working
// around a known-transient outage without waiting for resetTimeout.
func (h *Health) Reset(bidderName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failures, bidderName)
	delete(h.lastFailTime, bidderName)
	h.state[bidderName] = StateClosed
}
