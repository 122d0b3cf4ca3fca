package ledgerfsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rivalapexmediation/auction/internal/auctionrunner"
	"github.com/rivalapexmediation/auction/internal/ledgerstore"
)

// Sentinel errors for the §7 error-kind envelope.
var (
	ErrNoSuchAuction = errors.New("ledgerfsm: no such auction")
	ErrTerminalState = errors.New("ledgerfsm: terminal state already reached")
)

// Exporter is the optional analytics sink a terminal transition fires into.
// Implementations must not block the FSM — Export is expected to apply its
// own bounded timeout (§4.7 "[NEW] Analytics export").
type Exporter interface {
	Export(ctx context.Context, record Record)
}

// FSM processes ledger record creation and event-callback transitions over
// a ledgerstore.Store, the same layering the reference corpus's
// double-entry ledger uses: all invariants are enforced inside a single
// atomic Update mutator so concurrent callers on the same auction_id never
// race.
type FSM struct {
	store  ledgerstore.Store
	export Exporter
}

// New builds an FSM over store. export may be nil to disable analytics.
func New(store ledgerstore.Store, export Exporter) *FSM {
	return &FSM{store: store, export: export}
}

func recordKey(auctionID string) string {
	return "ledger:" + auctionID
}

// CreateSettled writes the initial record for a just-closed auction,
// transitioning CREATED -> SERVED (winner) or CREATED -> NO_BID, satisfying
// auctionrunner.Persister. It uses bounded retry per §7's propagation
// policy for storage failures during auction close.
func (f *FSM) CreateSettled(ctx context.Context, result auctionrunner.Result, auc auctionrunner.Auction) error {
	now := time.Now().UTC()
	rec := &Record{
		AuctionID:  auc.AuctionID,
		ServeToken: result.ServeToken,
		Winner:     result.Winner,
		NoBid:      result.NoBid,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if result.NoBid {
		rec.State = StateNoBid
	} else {
		rec.State = StateServed
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("ledgerfsm: encode record: %w", err)
	}
	if err := ledgerstore.PutWithRetry(ctx, f.store, recordKey(auc.AuctionID), data); err != nil {
		return fmt.Errorf("ledgerfsm: persist record: %w", err)
	}

	if rec.State.terminal() {
		f.fireExport(ctx, *rec)
	}
	return nil
}

// ApplyEvent processes one event callback (§4.7 steps 2-4): loads the
// record, verifies serve_token, advances state per the table, and appends
// to history — all inside one atomic Update so concurrent callbacks on the
// same auction_id serialize and duplicate (type, nonce) pairs are no-ops.
func (f *FSM) ApplyEvent(ctx context.Context, auctionID, serveToken string, eventType EventType, nonce string, ts time.Time) (Record, error) {
	key := recordKey(auctionID)
	var outcome Record
	var opErr error
	transitioned := false

	mutator := func(cur []byte, exists bool) ([]byte, error) {
		transitioned = false
		if !exists {
			opErr = ErrNoSuchAuction
			return cur, nil
		}
		rec, err := decodeRecord(cur)
		if err != nil {
			opErr = fmt.Errorf("ledgerfsm: decode record: %w", err)
			return cur, nil
		}
		if rec.ServeToken != serveToken {
			opErr = ErrNoSuchAuction
			return cur, nil
		}

		if rec.hasApplied(eventType, nonce) {
			outcome = *rec
			return cur, nil // idempotent no-op
		}

		if rec.State.terminal() {
			opErr = ErrTerminalState
			return cur, nil
		}

		next, ok := nextState(eventType)
		if !ok {
			opErr = fmt.Errorf("ledgerfsm: unknown event type %q", eventType)
			return cur, nil
		}

		rec.State = next
		rec.appendEvent(eventType, nonce, ts)
		rec.UpdatedAt = time.Now().UTC()
		outcome = *rec
		transitioned = true
		return encodeRecord(rec)
	}

	// Unlike CreateSettled's bounded retry on auction close, event-callback
	// storage failures fail fast on the first attempt: §7 has the caller
	// retry the callback itself, relying on idempotent (event_type, nonce)
	// handling for safety, rather than the FSM absorbing retry latency here.
	if _, err := f.store.Update(ctx, key, mutator); err != nil {
		return Record{}, fmt.Errorf("ledgerfsm: storage update failed: %w", err)
	}
	if opErr != nil {
		return Record{}, opErr
	}

	if transitioned && outcome.State.terminal() {
		f.fireExport(ctx, outcome)
	}
	return outcome, nil
}

// Get loads a record by auction_id for read-only inspection (e.g. API
// status lookups).
func (f *FSM) Get(ctx context.Context, auctionID string) (Record, bool, error) {
	data, ok, err := f.store.Get(ctx, recordKey(auctionID))
	if err != nil || !ok {
		return Record{}, ok, err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return Record{}, false, err
	}
	return *rec, true, nil
}

func (f *FSM) fireExport(ctx context.Context, rec Record) {
	if f.export == nil {
		return
	}
	f.export.Export(ctx, rec)
}
