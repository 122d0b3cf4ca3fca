// Package fanout implements the best-effort publish capability bidders
// discover requests through (§4.5). Two variants are provided: a local sink
// that logs and drops, and a Redis Pub/Sub variant keyed by
// topic_prefix+pool standing in for a managed cloud pub/sub service. The
// structure — a small manager wrapping a redis.Client with typed
// marshal/unmarshal helpers — is adapted from the reference corpus's
// waterfall.Manager, which did the equivalent Get/Set-as-JSON plumbing for
// per-placement configuration instead of per-pool envelopes.
package fanout

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is published to every target pool on auction open.
type Envelope struct {
	AuctionID      string    `json:"auction_id"`
	ContextRequest any       `json:"context_request"`
	WindowDeadline time.Time `json:"window_deadline"`
}

// Publisher publishes an envelope to a category pool. Implementations must
// bound their own latency — the runner never waits past a small fixed
// timeout for Publish to return, per §4.5/§5.
type Publisher interface {
	Publish(ctx context.Context, pool string, env Envelope) error
}

// DefaultPublishTimeout is the bounded timeout the runner applies around
// Publish calls (§4.5/§5: "small fixed bound, e.g. 10ms").
const DefaultPublishTimeout = 10 * time.Millisecond

// PublishBestEffort calls pub.Publish with a bounded timeout and swallows
// any error after logging it — publish failures never abort an auction
// (§4.5: "publish errors are logged and do not abort the auction").
func PublishBestEffort(ctx context.Context, pub Publisher, pool string, env Envelope, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	pubCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pub.Publish(pubCtx, pool, env); err != nil {
		logPublishFailure(pool, env.AuctionID, err)
	}
}

func marshalEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
