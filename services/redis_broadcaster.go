package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// redisChannelPrefix namespaces workflow events in Redis so the instance can
// share a Redis database with other consumers.
const redisChannelPrefix = "workflow:"

// RedisBroadcaster bridges workflow events across processes through Redis
// pub/sub. Publishes go to Redis; a background goroutine relays everything
// received from Redis (including this process's own publishes) into the
// local channel broadcaster. Delivery stays at-least-once.
type RedisBroadcaster struct {
	client *redis.Client
	local  *ChannelBroadcaster
	cancel context.CancelFunc
}

// NewRedisClient creates a Redis client for the broadcaster
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

// NewRedisBroadcaster starts the Redis bridge on top of a local broadcaster
func NewRedisBroadcaster(client *redis.Client, local *ChannelBroadcaster) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())

	b := &RedisBroadcaster{
		client: client,
		local:  local,
		cancel: cancel,
	}

	pubsub := client.PSubscribe(ctx, redisChannelPrefix+"*")
	go b.relay(ctx, pubsub)

	return b
}

// relay re-injects events received from Redis into the local broadcaster
func (b *RedisBroadcaster) relay(ctx context.Context, pubsub *redis.PubSub) {
	defer func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("warning: failed to close redis pubsub: %v", err)
		}
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("warning: dropping malformed workflow event from redis: %v", err)
				continue
			}

			topic := msg.Channel[len(redisChannelPrefix):]
			b.local.Publish(topic, event)
		}
	}
}

// Publish sends the event through Redis. If Redis is unreachable the event
// is delivered locally instead, so single-process deployments degrade
// gracefully.
func (b *RedisBroadcaster) Publish(topic string, event Event) {
	event.Topic = topic

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("warning: failed to marshal workflow event: %v", err)
		b.local.Publish(topic, event)
		return
	}

	if err := b.client.Publish(context.Background(), redisChannelPrefix+topic, payload).Err(); err != nil {
		log.Printf("warning: redis publish failed, delivering locally: %v", err)
		b.local.Publish(topic, event)
	}
}

// Subscribe delegates to the local broadcaster; the relay goroutine feeds it
// with events from every process.
func (b *RedisBroadcaster) Subscribe(topic string) (<-chan Event, func()) {
	return b.local.Subscribe(topic)
}

// Close stops the relay goroutine
func (b *RedisBroadcaster) Close() {
	b.cancel()
}
