package ledgerfsm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalapexmediation/auction/internal/auctionrunner"
	"github.com/rivalapexmediation/auction/internal/ledgerstore"
)

type recordingExporter struct {
	records []Record
}

func (e *recordingExporter) Export(_ context.Context, rec Record) {
	e.records = append(e.records, rec)
}

func settledResult(auctionID string, winner *auctionrunner.Bid) auctionrunner.Result {
	return auctionrunner.Result{
		AuctionID:  auctionID,
		Winner:     winner,
		NoBid:      winner == nil,
		ServeToken: "tok_" + auctionID,
	}
}

func TestFSM_CreateSettled_ServedThenCPAReported(t *testing.T) {
	store := ledgerstore.NewMemory()
	exporter := &recordingExporter{}
	fsm := New(store, exporter)
	ctx := context.Background()

	winner := &auctionrunner.Bid{Bidder: "beta", PricingModel: auctionrunner.CPA}
	require.NoError(t, fsm.CreateSettled(ctx, settledResult("ctx_1", winner), auctionrunner.Auction{AuctionID: "ctx_1"}))

	rec, ok, err := fsm.Get(ctx, "ctx_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateServed, rec.State)

	updated, err := fsm.ApplyEvent(ctx, "ctx_1", "tok_ctx_1", EventCPA, "nonce-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StateCPAReported, updated.State)
	assert.Len(t, exporter.records, 1)
}

func TestFSM_CreateSettled_NoBidIsTerminal(t *testing.T) {
	store := ledgerstore.NewMemory()
	fsm := New(store, nil)
	ctx := context.Background()

	require.NoError(t, fsm.CreateSettled(ctx, settledResult("ctx_2", nil), auctionrunner.Auction{AuctionID: "ctx_2"}))
	rec, _, err := fsm.Get(ctx, "ctx_2")
	require.NoError(t, err)
	assert.Equal(t, StateNoBid, rec.State)
}

func TestFSM_DuplicateEvent_Idempotent(t *testing.T) {
	store := ledgerstore.NewMemory()
	fsm := New(store, nil)
	ctx := context.Background()

	winner := &auctionrunner.Bid{Bidder: "alpha", PricingModel: auctionrunner.CPC}
	require.NoError(t, fsm.CreateSettled(ctx, settledResult("ctx_3", winner), auctionrunner.Auction{AuctionID: "ctx_3"}))

	first, err := fsm.ApplyEvent(ctx, "ctx_3", "tok_ctx_3", EventCPC, "nonce-dup", time.Now())
	require.NoError(t, err)
	second, err := fsm.ApplyEvent(ctx, "ctx_3", "tok_ctx_3", EventCPC, "nonce-dup", time.Now())
	require.NoError(t, err)

	assert.Equal(t, first.State, second.State)
	assert.Len(t, second.History, 1)
}

func TestFSM_TerminalState_RejectsFurtherEvents(t *testing.T) {
	store := ledgerstore.NewMemory()
	fsm := New(store, nil)
	ctx := context.Background()

	winner := &auctionrunner.Bid{Bidder: "alpha", PricingModel: auctionrunner.CPC}
	require.NoError(t, fsm.CreateSettled(ctx, settledResult("ctx_4", winner), auctionrunner.Auction{AuctionID: "ctx_4"}))

	_, err := fsm.ApplyEvent(ctx, "ctx_4", "tok_ctx_4", EventCPC, "n1", time.Now())
	require.NoError(t, err)

	_, err = fsm.ApplyEvent(ctx, "ctx_4", "tok_ctx_4", EventCPA, "n2", time.Now())
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestFSM_WrongServeToken_NoSuchAuction(t *testing.T) {
	store := ledgerstore.NewMemory()
	fsm := New(store, nil)
	ctx := context.Background()

	winner := &auctionrunner.Bid{Bidder: "alpha", PricingModel: auctionrunner.CPC}
	require.NoError(t, fsm.CreateSettled(ctx, settledResult("ctx_5", winner), auctionrunner.Auction{AuctionID: "ctx_5"}))

	_, err := fsm.ApplyEvent(ctx, "ctx_5", "wrong-token", EventCPC, "n1", time.Now())
	assert.ErrorIs(t, err, ErrNoSuchAuction)
}

func TestFSM_UnknownAuction_NoSuchAuction(t *testing.T) {
	store := ledgerstore.NewMemory()
	fsm := New(store, nil)
	_, err := fsm.ApplyEvent(context.Background(), "missing", "tok", EventCPC, "n1", time.Now())
	assert.ErrorIs(t, err, ErrNoSuchAuction)
}
