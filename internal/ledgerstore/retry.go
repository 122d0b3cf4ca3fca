package ledgerstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// PutWithRetry retries a Put up to three attempts with jittered exponential
// backoff, per §7's propagation policy for storage failures during auction
// close. It never retries a context cancellation/deadline.
func PutWithRetry(ctx context.Context, store Store, key string, value []byte) error {
	b := backoff.WithContext(boundedBackoff(), ctx)
	attempt := 0
	op := func() error {
		attempt++
		err := store.Put(ctx, key, value)
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).WithField("key", key).
				Warn("ledgerstore: put failed, retrying")
		}
		return err
	}
	return backoff.Retry(op, b)
}

// boundedBackoff returns a 3-attempt exponential backoff with jitter,
// matching §7: "retried a bounded number of times (e.g., three attempts
// with jitter)".
func boundedBackoff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 10 * time.Millisecond
	eb.MaxInterval = 100 * time.Millisecond
	eb.RandomizationFactor = 0.5
	return backoff.WithMaxRetries(eb, 2) // initial attempt + 2 retries = 3 total
}
