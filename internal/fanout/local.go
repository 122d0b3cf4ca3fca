package fanout

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Local is the "local" fanout backend (§4.5): it logs the envelope at debug
// level and drops it. It exists for single-process deployments and tests
// where no bidder actually discovers requests through a broker.
type Local struct{}

// NewLocal builds a Local publisher.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Publish(_ context.Context, pool string, env Envelope) error {
	log.WithFields(log.Fields{
		"pool":       pool,
		"auction_id": env.AuctionID,
	}).Debug("fanout: local publish (log-and-drop)")
	return nil
}

func logPublishFailure(pool, auctionID string, err error) {
	log.WithError(err).WithFields(log.Fields{
		"pool":       pool,
		"auction_id": auctionID,
	}).Warn("fanout: publish failed, continuing without this pool's bidders")
}
