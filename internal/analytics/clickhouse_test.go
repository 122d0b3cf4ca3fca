package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rivalapexmediation/auction/internal/auctionrunner"
	"github.com/rivalapexmediation/auction/internal/ledgerfsm"
)

func TestRowFromRecord_WinnerPopulatesWinnerFields(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	record := ledgerfsm.Record{
		AuctionID:  "auc-1",
		State:      ledgerfsm.StateCPAReported,
		ServeToken: "tok-1",
		Winner: &auctionrunner.Bid{
			Bidder:       "alpha",
			Price:        decimal.NewFromFloat(4.5),
			PricingModel: auctionrunner.CPA,
		},
		History: []ledgerfsm.Event{
			{Type: ledgerfsm.EventCPA, Nonce: "n1", Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	r := rowFromRecord(record)
	assert.Equal(t, "auc-1", r.auctionID)
	assert.Equal(t, "alpha", r.winnerBidder)
	assert.Equal(t, "CPA", r.winnerModel)
	assert.Equal(t, 4.5, r.winnerPrice)
	assert.Equal(t, uint8(0), r.noBid)
	assert.Equal(t, "CPA", r.eventType)
}

func TestRowFromRecord_NoBidLeavesWinnerFieldsBlank(t *testing.T) {
	record := ledgerfsm.Record{
		AuctionID: "auc-2",
		State:     ledgerfsm.StateNoBid,
		NoBid:     true,
	}

	r := rowFromRecord(record)
	assert.Equal(t, "", r.winnerBidder)
	assert.Equal(t, uint8(1), r.noBid)
	assert.Equal(t, "", r.eventType)
}
