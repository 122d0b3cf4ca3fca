package auctionrunner

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func bid(bidder string, model PricingModel, price string) Bid {
	return Bid{Bidder: bidder, PricingModel: model, Price: decimal.RequireFromString(price)}
}

func TestSelect_PricingModelBeatsPrice(t *testing.T) {
	alpha := bid("alpha", CPC, "1.00")
	beta := bid("beta", CPA, "0.50")

	winner, ok := Select([]Bid{alpha, beta})
	assert.True(t, ok)
	assert.Equal(t, "beta", winner.Bidder)
}

func TestSelect_DescendingPriceWithinModel(t *testing.T) {
	low := bid("low", CPC, "1.00")
	high := bid("high", CPC, "2.00")

	winner, ok := Select([]Bid{low, high})
	assert.True(t, ok)
	assert.Equal(t, "high", winner.Bidder)
}

func TestSelect_TieBreakAscendingName(t *testing.T) {
	zed := bid("zed", CPC, "1.00")
	ann := bid("ann", CPC, "1.00")

	winner, ok := Select([]Bid{zed, ann})
	assert.True(t, ok)
	assert.Equal(t, "ann", winner.Bidder)
}

func TestSelect_Empty(t *testing.T) {
	_, ok := Select(nil)
	assert.False(t, ok)
}

func TestSelect_DeterministicRegardlessOfOrder(t *testing.T) {
	a := bid("alpha", CPX, "5.00")
	b := bid("beta", CPC, "1.00")
	c := bid("gamma", CPA, "0.10")

	w1, _ := Select([]Bid{a, b, c})
	w2, _ := Select([]Bid{c, b, a})
	assert.Equal(t, w1.Bidder, w2.Bidder)
	assert.Equal(t, "gamma", w1.Bidder)
}
