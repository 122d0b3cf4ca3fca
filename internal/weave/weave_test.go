package weave

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalapexmediation/auction/internal/auctionrunner"
	"github.com/rivalapexmediation/auction/internal/ledgerstore"
)

type stubCore struct {
	result auctionrunner.Result
	err    error
	delay  time.Duration
	calls  int
}

func (s *stubCore) OpenRecommendationAuction(ctx context.Context, req Request, window time.Duration) (auctionrunner.Result, error) {
	s.calls++
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.result, s.err
}

func TestCoordinator_FirstCallInProgressThenCompletes(t *testing.T) {
	store := ledgerstore.NewMemory()
	core := &stubCore{result: auctionrunner.Result{
		ServeToken: "tok",
		Winner:     &auctionrunner.Bid{Bidder: "alpha", Creative: []byte("visit our store")},
	}}
	coord := New(store, core, 2, 20*time.Millisecond, 0)
	ctx := context.Background()

	out, err := coord.GetOrCreate(ctx, Request{SessionID: "sess_1", MessageID: "msg_1", Query: "shoes"})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, out.Status)
	assert.Equal(t, DefaultRetryAfter, out.RetryAfter)

	assert.Eventually(t, func() bool {
		out2, err := coord.GetOrCreate(ctx, Request{SessionID: "sess_1", MessageID: "msg_1"})
		require.NoError(t, err)
		return out2.Status == StatusCompleted
	}, time.Second, 5*time.Millisecond)

	final, err := coord.GetOrCreate(ctx, Request{SessionID: "sess_1", MessageID: "msg_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Contains(t, final.Recommendation.WeaveContent, "[Ad]")
	assert.Equal(t, "alpha", final.Recommendation.CreativeMetadata["bidder"])
	assert.Equal(t, 1, core.calls)
}

func TestCoordinator_BackgroundFailure_RecordsFailed(t *testing.T) {
	store := ledgerstore.NewMemory()
	core := &stubCore{err: errors.New("no bidders responded")}
	coord := New(store, core, 2, 10*time.Millisecond, 0)
	ctx := context.Background()

	_, err := coord.GetOrCreate(ctx, Request{SessionID: "sess_2", MessageID: "msg_1"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		out, err := coord.GetOrCreate(ctx, Request{SessionID: "sess_2", MessageID: "msg_1"})
		require.NoError(t, err)
		return out.Status == StatusFailed
	}, time.Second, 5*time.Millisecond)
}

func TestCoordinator_SecondCallerSeesInProgressWithoutRetriggering(t *testing.T) {
	store := ledgerstore.NewMemory()
	core := &stubCore{delay: 50 * time.Millisecond, result: auctionrunner.Result{NoBid: true}}
	coord := New(store, core, 2, 10*time.Millisecond, 0)
	ctx := context.Background()

	_, err := coord.GetOrCreate(ctx, Request{SessionID: "sess_3", MessageID: "msg_1"})
	require.NoError(t, err)

	out, err := coord.GetOrCreate(ctx, Request{SessionID: "sess_3", MessageID: "msg_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, out.Status)
	assert.Equal(t, 1, core.calls)
}
