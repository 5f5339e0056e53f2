package tiercache

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// invalidationMessage is the broadcast payload. Flush invalidates
// everything; otherwise Key names the entry, or the invalidation tag, to
// drop on the receiving side.
type invalidationMessage struct {
	Key   string `json:"key,omitempty"`
	Flush bool   `json:"flush,omitempty"`
}

// broadcaster fans cache invalidations out to other processes over the blob
// store's pub/sub channel. This process receives its own messages too;
// re-applying them to the transient tiers is harmless since the local
// invalidation already ran.
type broadcaster struct {
	client  redis.UniversalClient
	channel string
	logger  Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func newBroadcaster(client redis.UniversalClient, channel string, logger Logger) *broadcaster {
	return &broadcaster{
		client:  client,
		channel: channel,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// subscribe starts the receive loop. Delivery is best effort: a dropped
// message only means a transient tier serves a stale entry until it expires.
func (b *broadcaster) subscribe(ctx context.Context, handle func(invalidationMessage)) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	b.mu.Lock()
	b.pubsub = pubsub
	b.mu.Unlock()

	go func() {
		ch := pubsub.Channel()

		for {
			select {
			case <-b.done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var decoded invalidationMessage
				if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
					b.logger.Printf("broadcast: undecodable message: %v", err)

					continue
				}

				handle(decoded)
			}
		}
	}()
}

// publish sends an invalidation. Failures are logged, never surfaced: the
// local invalidation already succeeded.
func (b *broadcaster) publish(ctx context.Context, msg invalidationMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Printf("broadcast: encode failed: %v", err)

		return
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Printf("broadcast: publish failed: %v", err)
	}
}

// stop tears down the subscription.
func (b *broadcaster) stop() {
	close(b.done)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubsub != nil {
		_ = b.pubsub.Close()
		b.pubsub = nil
	}
}
