// Package weave implements the cache-first Weave recommendation
// coordinator (§4.8): a strictly non-blocking get_or_create surface over
// the same auction core, backed by a background task pool. The cache-first,
// background-task-then-poll-for-completion shape mirrors
// internal/bidders/debugger.go's request/response capture buffer in the
// teacher repo — both keep a bounded in-memory structure fed by background
// goroutines and read by independent, later callers — generalized here from
// a debug ring buffer to a durable, ledgerstore-backed cache keyed by
// (session_id, message_id).
package weave

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/auction/internal/auctionrunner"
	"github.com/rivalapexmediation/auction/internal/ledgerstore"
)

// Status is a Recommendation's lifecycle stage.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// DefaultWindow is the coordinator-specific auction window (§4.8: "default
// 500 ms"), much longer than the inbound runner's default since there is no
// platform waiting synchronously.
const DefaultWindow = 500 * time.Millisecond

// DefaultRetryAfter is returned to callers observing an in-progress record
// (§4.8: "retry_after_ms = 150").
const DefaultRetryAfter = 150 * time.Millisecond

// Recommendation is the persisted cache entity keyed by (session_id,
// message_id) (§3).
type Recommendation struct {
	SessionID        string                `json:"session_id"`
	MessageID        string                `json:"message_id"`
	Status           Status                `json:"status"`
	Query            string                `json:"query"`
	WeaveContent     string                `json:"weave_content,omitempty"`
	ServeToken       string                `json:"serve_token,omitempty"`
	CreativeMetadata map[string]string     `json:"creative_metadata,omitempty"`
	AuctionResult    *auctionrunner.Result `json:"auction_result,omitempty"`
	Error            string                `json:"error,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// Request carries the coordinator's get_or_create input (§4.8).
type Request struct {
	SessionID string
	MessageID string
	Query     string
}

// AuctionCore is the subset of the full auction core the coordinator drives
// in the background: open an auction over the synthetic context and
// classify it into pools.
type AuctionCore interface {
	OpenRecommendationAuction(ctx context.Context, req Request, window time.Duration) (auctionrunner.Result, error)
}

// Coordinator implements get_or_create with the three-path, non-blocking
// semantics of §4.8, running background auctions through a bounded worker
// pool so a burst of cache misses can't spawn unbounded goroutines.
type Coordinator struct {
	store      ledgerstore.Store
	core       AuctionCore
	window     time.Duration
	retryAfter time.Duration
	tasks      chan func()
}

// New builds a Coordinator. workers bounds the background task pool
// concurrency; window overrides DefaultWindow when positive; retryAfter
// overrides DefaultRetryAfter when positive (§4.8 "retry_after_ms").
func New(store ledgerstore.Store, core AuctionCore, workers int, window, retryAfter time.Duration) *Coordinator {
	if workers <= 0 {
		workers = 4
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	c := &Coordinator{store: store, core: core, window: window, retryAfter: retryAfter, tasks: make(chan func(), 256)}
	for i := 0; i < workers; i++ {
		go c.worker()
	}
	return c
}

func (c *Coordinator) worker() {
	for task := range c.tasks {
		task()
	}
}

func cacheKey(sessionID, messageID string) string {
	return "recommendation:" + sessionID + ":" + messageID
}

// Outcome is returned synchronously by GetOrCreate.
type Outcome struct {
	Status         Status
	RetryAfter     time.Duration
	Recommendation Recommendation
}

// GetOrCreate implements §4.8's three paths. It never blocks on the
// background auction — path 3 schedules the task and returns immediately.
func (c *Coordinator) GetOrCreate(ctx context.Context, req Request) (Outcome, error) {
	key := cacheKey(req.SessionID, req.MessageID)

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return Outcome{}, fmt.Errorf("weave: get %s: %w", key, err)
	}
	if ok {
		rec, decodeErr := decodeRecommendation(data)
		if decodeErr != nil {
			return Outcome{}, fmt.Errorf("weave: decode %s: %w", key, decodeErr)
		}
		switch rec.Status {
		case StatusCompleted, StatusFailed:
			return Outcome{Status: rec.Status, Recommendation: *rec}, nil
		default:
			return Outcome{Status: StatusInProgress, RetryAfter: c.retryAfter}, nil
		}
	}

	now := time.Now().UTC()
	rec := &Recommendation{
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		Status:    StatusInProgress,
		Query:     req.Query,
		CreatedAt: now,
		UpdatedAt: now,
	}
	payload, err := encodeRecommendation(rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("weave: encode %s: %w", key, err)
	}

	created := false
	_, err = c.store.Update(ctx, key, func(cur []byte, exists bool) ([]byte, error) {
		if exists {
			return cur, nil // someone else created it first; path 3 falls back to 1/2
		}
		created = true
		return payload, nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("weave: create-if-absent %s: %w", key, err)
	}

	if !created {
		// Conflict: re-read and fall back to path 1 or 2.
		return c.GetOrCreate(ctx, req)
	}

	c.schedule(req, key)
	return Outcome{Status: StatusInProgress, RetryAfter: c.retryAfter}, nil
}

// schedule enqueues the background auction task. If the pool is saturated
// the task is dropped and the record is left IN_PROGRESS; later callers for
// the same key find that record and do not re-schedule it (GetOrCreate only
// schedules when it creates a fresh record), so the practical effect is a
// poll that stays in_progress, never a duplicate auction.
func (c *Coordinator) schedule(req Request, key string) {
	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.window+2*time.Second)
		defer cancel()
		c.runBackground(ctx, req, key)
	}
	select {
	case c.tasks <- task:
	default:
		log.WithField("key", key).Warn("weave: background task pool saturated, dropping")
	}
}

func (c *Coordinator) runBackground(ctx context.Context, req Request, key string) {
	result, err := c.core.OpenRecommendationAuction(ctx, req, c.window)
	now := time.Now().UTC()

	_, updateErr := c.store.Update(ctx, key, func(cur []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, nil
		}
		rec, decodeErr := decodeRecommendation(cur)
		if decodeErr != nil {
			return nil, decodeErr
		}
		if rec.Status != StatusInProgress {
			return cur, nil // already settled by a prior attempt
		}

		if err != nil {
			rec.Status = StatusFailed
			rec.Error = err.Error()
			rec.UpdatedAt = now
			return encodeRecommendation(rec)
		}

		rec.Status = StatusCompleted
		rec.ServeToken = result.ServeToken
		rec.AuctionResult = &result
		if result.Winner != nil {
			rec.WeaveContent = formatWeaveContent(result.Winner)
			rec.CreativeMetadata = creativeMetadata(result.Winner)
		}
		rec.UpdatedAt = now
		return encodeRecommendation(rec)
	})
	if updateErr != nil {
		log.WithError(updateErr).WithField("key", key).Error("weave: background task failed to persist outcome")
	}
}

// formatWeaveContent renders a winning bid's creative for inline inclusion
// in a conversational response, annotated per-link with "[Ad]" (§4.8,
// GLOSSARY "Weave creative").
func formatWeaveContent(winner *auctionrunner.Bid) string {
	if winner == nil || len(winner.Creative) == 0 {
		return ""
	}
	lines := strings.Split(string(winner.Creative), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines[i] = "[Ad] " + line
	}
	return strings.Join(lines, "\n")
}

// creativeMetadata summarizes the winning bid's pricing terms for callers
// that render the creative without needing the full auction_result (§3
// "creative_metadata").
func creativeMetadata(winner *auctionrunner.Bid) map[string]string {
	return map[string]string{
		"bidder":        winner.Bidder,
		"pricing_model": string(winner.PricingModel),
		"price":         winner.Price.String(),
	}
}

func encodeRecommendation(r *Recommendation) ([]byte, error) { return json.Marshal(r) }

func decodeRecommendation(data []byte) (*Recommendation, error) {
	var r Recommendation
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
