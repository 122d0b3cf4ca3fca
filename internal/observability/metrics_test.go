package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRolling_CountersAndPercentiles(t *testing.T) {
	r := NewRolling(0)
	r.IncInvited("alpha")
	r.IncInvited("alpha")
	r.IncWon("alpha")
	r.IncLost("beta")
	r.IncError("beta", "schema_invalid")
	r.ObserveLatencyMS("alpha", 10)
	r.ObserveLatencyMS("alpha", 20)
	r.ObserveLatencyMS("alpha", 30)

	snaps := r.SnapshotAll()
	byBidder := map[string]Snapshot{}
	for _, s := range snaps {
		byBidder[s.Bidder] = s
	}

	assert.Equal(t, 2, byBidder["alpha"].Invited)
	assert.Equal(t, 1, byBidder["alpha"].Won)
	assert.Equal(t, 1, byBidder["beta"].Lost)
	assert.Equal(t, 1, byBidder["beta"].Errors["schema_invalid"])
	assert.Greater(t, byBidder["alpha"].LatencyP95, 0.0)
}

func TestNoOp_NeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		NoOp.IncInvited("alpha")
		NoOp.IncWon("alpha")
		NoOp.IncLost("alpha")
		NoOp.IncTimeout("alpha")
		NoOp.IncError("alpha", "x")
		NoOp.ObserveLatencyMS("alpha", 1)
	})
}
