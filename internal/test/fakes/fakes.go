// Package fakes provides in-memory test doubles for the service's broker
// dependencies. These are used in integration tests to exercise the full
// delivery path without a running redis.
package fakes

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mediumart/echo.io/internal/broker"
	"github.com/mediumart/echo.io/pkg/wire"
)

// --- Broker ---

// InMemoryBroker stands in for the redis pub/sub server. Tests publish
// messages into it and every open subscription receives them, which is how a
// message from another instance reaches the bridge under test.
type InMemoryBroker struct {
	mu     sync.Mutex
	subs   []*InMemorySubscription
	logger zerolog.Logger
}

func NewInMemoryBroker(logger zerolog.Logger) *InMemoryBroker {
	return &InMemoryBroker{
		logger: logger.With().Str("component", "InMemoryBroker").Logger(),
	}
}

// PSubscribe matches the broker.Subscriber interface. The pattern is ignored;
// every subscription sees every message.
func (b *InMemoryBroker) PSubscribe(_ context.Context, _ ...string) broker.PubSub {
	sub := &InMemorySubscription{
		msgs:     make(chan *redis.Message, 100),
		doneChan: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Publish fans the message out to every open subscription, the way a real
// broker would deliver a PUBLISH from another instance.
func (b *InMemoryBroker) Publish(channel string, msg wire.BrokerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.deliver(&redis.Message{Channel: channel, Payload: string(payload)})
	}
	return nil
}

// InMemorySubscription implements broker.PubSub over a buffered channel.
type InMemorySubscription struct {
	msgs     chan *redis.Message
	stopOnce sync.Once
	doneChan chan struct{}
}

func (s *InMemorySubscription) Receive(_ context.Context) (interface{}, error) {
	return &redis.Subscription{Kind: "psubscribe"}, nil
}

func (s *InMemorySubscription) Channel(_ ...redis.ChannelOption) <-chan *redis.Message {
	return s.msgs
}

// Close stops delivery. The message channel is left open so a publish racing
// with Close cannot send on a closed channel; delivery is gated on doneChan.
func (s *InMemorySubscription) Close() error {
	s.stopOnce.Do(func() {
		close(s.doneChan)
	})
	return nil
}

func (s *InMemorySubscription) deliver(msg *redis.Message) {
	select {
	case s.msgs <- msg:
	case <-s.doneChan:
	}
}

// --- Publisher ---

// Publisher records what the subscription router hands to the broker side,
// and can loop it back into an InMemoryBroker to simulate a second instance
// receiving it.
type Publisher struct {
	origin        string
	loopback      *InMemoryBroker
	publishedChan chan wire.BrokerMessage
	logger        zerolog.Logger
}

// NewPublisher creates a recording publisher. loopback may be nil.
func NewPublisher(origin string, loopback *InMemoryBroker, logger zerolog.Logger) *Publisher {
	return &Publisher{
		origin:        origin,
		loopback:      loopback,
		publishedChan: make(chan wire.BrokerMessage, 100),
		logger:        logger,
	}
}

func (p *Publisher) Published() <-chan wire.BrokerMessage { return p.publishedChan }

// Publish matches the subscription.Publisher interface.
func (p *Publisher) Publish(_ context.Context, channel string, msg wire.BrokerMessage) error {
	if msg.Origin == "" {
		msg.Origin = p.origin
	}
	p.logger.Info().Str("channel", channel).Str("event", msg.Event).Msg("[FAKES-PUBLISHER] Publish called.")
	p.publishedChan <- msg
	if p.loopback != nil {
		return p.loopback.Publish(channel, msg)
	}
	return nil
}
