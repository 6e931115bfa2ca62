package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "daebak:orders"

// Publisher announces confirmed orders on a redis channel for the kitchen
// and delivery services.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(addr, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &Publisher{client: rdb, channel: channel}
}

func (p *Publisher) Save(ctx context.Context, r Record) error {
	payload, err := encodeRecord(r)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.client.Close() }

func encodeRecord(r Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	return b, nil
}
