package auctionrunner

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/auction/internal/fanout"
	"github.com/rivalapexmediation/auction/internal/observability"
)

// DefaultWindow is the default auction window (§4.6: "default 50, permitted
// range 30-70" milliseconds).
const DefaultWindow = 50 * time.Millisecond

// MinWindow and MaxWindow bound the caller-supplied window.
const (
	MinWindow = 30 * time.Millisecond
	MaxWindow = 70 * time.Millisecond
)

// Persister is the subset of the ledger capability the runner needs to
// settle an auction: write the initial record, independent of the richer
// FSM transitions ledgerfsm layers on top of the same store.
type Persister interface {
	CreateSettled(ctx context.Context, result Result, auc Auction) error
}

// Runner owns the live-auction inbox and coordinates Open/Bid/Close across
// independent HTTP requests, matching bidding.AuctionEngine's role but
// rendezvousing on externally-submitted bids instead of dialing adapters.
type Runner struct {
	inbox   *inbox
	pub     fanout.Publisher
	persist Persister
	metrics observability.Recorder
}

// New builds a Runner. pub may be nil, in which case Open skips fanout
// entirely (useful for tests exercising only the inbox rendezvous).
func New(pub fanout.Publisher, persist Persister) *Runner {
	return &Runner{inbox: newInbox(), pub: pub, persist: persist, metrics: observability.NoOp}
}

// WithMetrics attaches a metrics recorder; nil restores the no-op recorder.
func (r *Runner) WithMetrics(rec observability.Recorder) *Runner {
	if rec == nil {
		rec = observability.NoOp
	}
	r.metrics = rec
	return r
}

// OpenRequest carries everything needed to open a new auction slot.
type OpenRequest struct {
	AuctionID     string
	TargetPools   []string
	TargetBidders map[string]struct{}
	Window        time.Duration
	ContextReq    any
}

// Open registers a new OPEN slot, publishes to fanout (best-effort), waits
// for the window to close, runs selection, mints a serve_token, persists the
// result, and returns it (§4.6 Open/Close sequences).
func (r *Runner) Open(ctx context.Context, req OpenRequest) (Result, error) {
	window := req.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if window < MinWindow {
		window = MinWindow
	}
	if window > MaxWindow {
		window = MaxWindow
	}

	now := time.Now()
	auc := Auction{
		AuctionID:      req.AuctionID,
		OpenedAt:       now,
		WindowDeadline: now.Add(window),
		TargetPools:    req.TargetPools,
		TargetBidders:  req.TargetBidders,
		State:          StateOpen,
	}

	s, err := r.inbox.open(auc)
	if err != nil {
		return Result{}, err
	}

	for bidder := range auc.TargetBidders {
		r.metrics.IncInvited(bidder)
	}

	if r.pub != nil {
		env := fanout.Envelope{AuctionID: auc.AuctionID, ContextRequest: req.ContextReq, WindowDeadline: auc.WindowDeadline}
		for _, pool := range req.TargetPools {
			fanout.PublishBestEffort(ctx, r.pub, pool, env, 0)
		}
	}

	bids := s.awaitClose(auc.WindowDeadline)
	result := r.settle(ctx, auc, bids)

	s.markSettled()
	r.inbox.remove(auc.AuctionID)

	return result, nil
}

// Bid submits a signature-verified bid into the auction identified by
// auction_id. The caller is responsible for verifying the signature and
// schema before calling Bid (§4.6 Bid submission path step 1).
func (r *Runner) Bid(ctx context.Context, b Bid) error {
	s, ok := r.inbox.lookup(b.AuctionID)
	if !ok {
		return ErrUnknownAuction
	}
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = time.Now()
	}
	return s.submit(b)
}

// settle runs selection, mints a serve_token on a win, and persists the
// outcome with bounded retry. Persistence failure still returns the computed
// result with Persisted=false, per §7's propagation policy.
func (r *Runner) settle(ctx context.Context, auc Auction, bids []Bid) Result {
	winner, ok := Select(bids)
	result := Result{AuctionID: auc.AuctionID, NoBid: !ok}
	if ok {
		token, err := mintServeToken()
		if err != nil {
			log.WithError(err).WithField("auction_id", auc.AuctionID).Error("auctionrunner: serve_token mint failed")
		}
		w := winner
		result.Winner = &w
		result.ServeToken = token

		r.metrics.IncWon(winner.Bidder)
		for _, b := range bids {
			if b.Bidder != winner.Bidder {
				r.metrics.IncLost(b.Bidder)
			}
		}
	}

	if r.persist == nil {
		result.Persisted = true
		return result
	}

	if err := r.persist.CreateSettled(ctx, result, auc); err != nil {
		log.WithError(err).WithField("auction_id", auc.AuctionID).Error("auctionrunner: persist failed after retries, returning unpersisted result")
		result.Persisted = false
		return result
	}
	result.Persisted = true
	return result
}

// mintServeToken generates a 128-bit, base64url-encoded identifier (§4.6).
func mintServeToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auctionrunner: mint serve_token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewBidID mints a UUIDv4 bid identifier for traceability in logs and
// analytics (§3 "[NEW] Identifiers").
func NewBidID() string {
	return uuid.NewString()
}
