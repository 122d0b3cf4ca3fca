// Package observability carries the ambient metrics/logging concerns the
// core's operations emit on every auction/bid/event/recommendation
// transition (SPEC_FULL.md §2's "[NEW] Structured logging" and the
// analytics export note in §4.7). Recorder and Rolling are adapted
// directly from the teacher's bidders.MetricsRecorder /
// RollingMetricsRecorder, renamed from per-adapter outbound-call metrics to
// per-bidder inbound-auction metrics: requests become "invited", success
// becomes "won", and a submitted bid that does not win becomes "lost". The
// auction runner records only invited/won/lost; the timeout, error and
// latency methods are recorded by no caller in this module.
package observability

import (
	"sort"
	"sync"
	"time"
)

// Recorder records bidder-level metrics. Implementations must be cheap and
// non-blocking — callers invoke these inline on the hot auction-close path.
type Recorder interface {
	IncInvited(bidder string)
	IncWon(bidder string)
	IncLost(bidder string)
	IncTimeout(bidder string)
	IncError(bidder, reason string)
	ObserveLatencyMS(bidder string, ms float64)
}

type noopRecorder struct{}

func (noopRecorder) IncInvited(string)                {}
func (noopRecorder) IncWon(string)                    {}
func (noopRecorder) IncLost(string)                   {}
func (noopRecorder) IncTimeout(string)                {}
func (noopRecorder) IncError(string, string)          {}
func (noopRecorder) ObserveLatencyMS(string, float64) {}

// NoOp is a Recorder that discards everything; the default until a caller
// wires a Rolling recorder.
var NoOp Recorder = noopRecorder{}

// Snapshot is a read-only view of one bidder's metrics for APIs and
// dashboards.
type Snapshot struct {
	Bidder     string         `json:"bidder"`
	Invited    int            `json:"invited"`
	Won        int            `json:"won"`
	Lost       int            `json:"lost"`
	Timeout    int            `json:"timeout"`
	Errors     map[string]int `json:"errors,omitempty"`
	LatencyP50 float64        `json:"latency_p50_ms"`
	LatencyP95 float64        `json:"latency_p95_ms"`
	LatencyP99 float64        `json:"latency_p99_ms"`
}

// Rolling is an in-process Recorder keeping a bounded rolling window of
// latency observations per bidder and simple cumulative counters.
type Rolling struct {
	mu sync.Mutex

	invited map[string]int
	won     map[string]int
	lost    map[string]int
	timeout map[string]int
	errs    map[string]map[string]int
	lat     map[string][]float64

	windowSize int
}

// NewRolling creates a recorder with a per-bidder rolling latency window.
// windowSize<=0 defaults to 512.
func NewRolling(windowSize int) *Rolling {
	if windowSize <= 0 {
		windowSize = 512
	}
	return &Rolling{
		invited:    map[string]int{},
		won:        map[string]int{},
		lost:       map[string]int{},
		timeout:    map[string]int{},
		errs:       map[string]map[string]int{},
		lat:        map[string][]float64{},
		windowSize: windowSize,
	}
}

func (r *Rolling) IncInvited(bidder string) { r.inc(r.invited, bidder) }
func (r *Rolling) IncWon(bidder string)     { r.inc(r.won, bidder) }
func (r *Rolling) IncLost(bidder string)    { r.inc(r.lost, bidder) }
func (r *Rolling) IncTimeout(bidder string) { r.inc(r.timeout, bidder) }

func (r *Rolling) IncError(bidder, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.errs[bidder]
	if !ok {
		m = map[string]int{}
		r.errs[bidder] = m
	}
	m[reason]++
}

func (r *Rolling) ObserveLatencyMS(bidder string, ms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	arr := append(r.lat[bidder], ms)
	if len(arr) > r.windowSize {
		arr = arr[len(arr)-r.windowSize:]
	}
	r.lat[bidder] = arr
}

func (r *Rolling) inc(m map[string]int, k string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[k]++
}

// Percentiles returns p50/p95/p99 latency for bidder over its current
// rolling window; zeros when no observations exist.
func (r *Rolling) Percentiles(bidder string) (p50, p95, p99 float64) {
	r.mu.Lock()
	vals := append([]float64(nil), r.lat[bidder]...)
	r.mu.Unlock()
	return percentiles(vals)
}

// SnapshotAll returns one Snapshot per bidder seen so far.
func (r *Rolling) SnapshotAll() []Snapshot {
	r.mu.Lock()
	keys := map[string]struct{}{}
	for k := range r.invited {
		keys[k] = struct{}{}
	}
	for k := range r.won {
		keys[k] = struct{}{}
	}
	for k := range r.lost {
		keys[k] = struct{}{}
	}
	for k := range r.timeout {
		keys[k] = struct{}{}
	}
	for k := range r.errs {
		keys[k] = struct{}{}
	}
	for k := range r.lat {
		keys[k] = struct{}{}
	}

	out := make([]Snapshot, 0, len(keys))
	for b := range keys {
		var errsCopy map[string]int
		if em, ok := r.errs[b]; ok {
			errsCopy = make(map[string]int, len(em))
			for k, v := range em {
				errsCopy[k] = v
			}
		}
		latCopy := append([]float64(nil), r.lat[b]...)
		out = append(out, Snapshot{
			Bidder:  b,
			Invited: r.invited[b],
			Won:     r.won[b],
			Lost:    r.lost[b],
			Timeout: r.timeout[b],
			Errors:  errsCopy,
		})
		p50, p95, p99 := percentiles(latCopy)
		out[len(out)-1].LatencyP50 = p50
		out[len(out)-1].LatencyP95 = p95
		out[len(out)-1].LatencyP99 = p99
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Bidder < out[j].Bidder })
	return out
}

func percentiles(vals []float64) (p50, p95, p99 float64) {
	if len(vals) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(vals)
	idx := func(p float64) int {
		if len(vals) == 1 {
			return 0
		}
		pos := int(p*float64(len(vals)-1) + 0.5)
		if pos < 0 {
			pos = 0
		}
		if pos >= len(vals) {
			pos = len(vals) - 1
		}
		return pos
	}
	return vals[idx(0.50)], vals[idx(0.95)], vals[idx(0.99)]
}

// sinceMS converts the time elapsed since start to milliseconds for a
// latency observation; no code in this module calls it.
func sinceMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
