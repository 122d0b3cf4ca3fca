package fanout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingPublisher struct {
	pool string
	env  Envelope
	err  error
	hung time.Duration
}

func (r *recordingPublisher) Publish(ctx context.Context, pool string, env Envelope) error {
	if r.hung > 0 {
		select {
		case <-time.After(r.hung):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.pool, r.env = pool, env
	return r.err
}

func TestLocal_PublishNeverErrors(t *testing.T) {
	l := NewLocal()
	err := l.Publish(context.Background(), "retail", Envelope{AuctionID: "a1"})
	assert.NoError(t, err)
}

func TestPublishBestEffort_SwallowsError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("boom")}
	assert.NotPanics(t, func() {
		PublishBestEffort(context.Background(), pub, "retail", Envelope{AuctionID: "a1"}, 0)
	})
	assert.Equal(t, "retail", pub.pool)
}

func TestPublishBestEffort_BoundsLatency(t *testing.T) {
	pub := &recordingPublisher{hung: 50 * time.Millisecond}
	start := time.Now()
	PublishBestEffort(context.Background(), pub, "retail", Envelope{AuctionID: "a1"}, 5*time.Millisecond)
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 40*time.Millisecond)
}
