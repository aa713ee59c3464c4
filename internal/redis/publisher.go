package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Publisher fans frames out to other server processes over Redis pub/sub.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends payload on the given channel. Delivery is fire-and-forget;
// callers decide whether a failure matters.
func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}
