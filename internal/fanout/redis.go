package fanout

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisPubSub is the "pubsub" fanout backend (§4.5): it PUBLISHes the
// envelope on a topic derived from topic_prefix+pool, standing in for a
// managed cloud pub/sub service none of the retrieved repos vendor a client
// for. The client wiring (a shared *redis.Client, JSON-marshaled payloads,
// logrus error reporting) follows waterfall.WaterfallManager's pattern of
// wrapping go-redis for small structured documents.
type RedisPubSub struct {
	client      *redis.Client
	topicPrefix string
}

// NewRedisPubSub builds a RedisPubSub publisher. topicPrefix is prepended to
// the pool name to form the channel, e.g. "aip:pools:" + "retail".
func NewRedisPubSub(client *redis.Client, topicPrefix string) *RedisPubSub {
	return &RedisPubSub{client: client, topicPrefix: topicPrefix}
}

func (r *RedisPubSub) Publish(ctx context.Context, pool string, env Envelope) error {
	payload, err := marshalEnvelope(env)
	if err != nil {
		return fmt.Errorf("fanout: marshal envelope: %w", err)
	}

	channel := r.topicPrefix + pool
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		log.WithError(err).WithField("channel", channel).Error("fanout: redis publish failed")
		return err
	}
	return nil
}
