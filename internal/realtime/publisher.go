// Package realtime publishes live tracking events to subscribers. Topics are
// "delivery:<id>" for riders watching a delivery and "driver:<id>" for
// driver-facing streams. Publishing is fire-and-forget from the core's point
// of view.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher fans an event out to every subscriber of a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload any) error
}

// Envelope is the wire form of a published event.
type Envelope struct {
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	ProducedAt time.Time       `json:"produced_at"`
}

// DeliveryTopic returns the topic for subscribers of one delivery.
func DeliveryTopic(deliveryID string) string { return "delivery:" + deliveryID }

// DriverTopic returns the topic for subscribers of one driver.
func DriverTopic(driverID string) string { return "driver:" + driverID }

// RedisPublisher implements Publisher over Redis Pub/Sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher over the given client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

var _ Publisher = (*RedisPublisher)(nil)

// Publish sends the event to every subscriber of topic.
func (p *RedisPublisher) Publish(ctx context.Context, topic, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	envelope, err := json.Marshal(Envelope{
		Event:      event,
		Payload:    raw,
		ProducedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return p.client.Publish(ctx, topic, envelope).Err()
}

// NopPublisher discards every event. Used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
