package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mediumart/echo.io/pkg/wire"
)

// publishClient is the subset of go-redis used by the publisher.
type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher fans locally-originated events out to the broker so that every
// other instance delivers them to its own connections.
type Publisher struct {
	client publishClient
	origin string
	logger zerolog.Logger
}

func NewPublisher(client publishClient, origin string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		origin: origin,
		logger: logger.With().Str("component", "broker_publisher").Logger(),
	}
}

// Publish sends the message on the broker channel, stamping this instance's
// origin so the local bridge does not deliver it a second time.
func (p *Publisher) Publish(ctx context.Context, channel string, msg wire.BrokerMessage) error {
	if msg.Origin == "" {
		msg.Origin = p.origin
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("broker publish: marshal: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("broker publish: %w", err)
	}
	return nil
}
