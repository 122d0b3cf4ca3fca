package auctionrunner

import "sort"

// Select runs the selection algorithm (§4.6.1): priority order among bids is
// determined first by pricing model (CPA > CPC > CPX), then by descending
// price within the same model, then by ascending bidder name as a
// deterministic tie-break. It is pure: the same bid slice always ranks the
// same winner regardless of append order, matching bidding.selectWinner's
// sort-then-take-first shape but with a three-key comparator instead of a
// single CPM sort.
func Select(bids []Bid) (winner Bid, ok bool) {
	if len(bids) == 0 {
		return Bid{}, false
	}

	ranked := make([]Bid, len(bids))
	copy(ranked, bids)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ra, rb := pricingRank(a.PricingModel), pricingRank(b.PricingModel); ra != rb {
			return ra < rb
		}
		if cmp := a.Price.Cmp(b.Price); cmp != 0 {
			return cmp > 0
		}
		return a.Bidder < b.Bidder
	})

	return ranked[0], true
}
