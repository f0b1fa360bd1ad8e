// Package broker bridges a shared Redis pub/sub backbone into local
// deliveries. Every server instance holds one pattern subscription; messages
// published on any instance (or by an application backend) fan out through
// the dispatch router to the local room named by the message channel.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mediumart/echo.io/internal/dispatch"
	"github.com/mediumart/echo.io/pkg/wire"
)

const (
	// DefaultPattern subscribes to every channel on the broker.
	DefaultPattern = "*"

	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

var (
	subscribedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echoio_broker_subscribed",
		Help: "1 while the broker subscription is live, 0 otherwise.",
	})
	messagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echoio_broker_messages_total",
		Help: "Messages received from the broker.",
	})
	discardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echoio_broker_discarded_total",
		Help: "Broker messages discarded as undecodable or incomplete.",
	})
)

// PubSub is the subset of redis.PubSub the bridge consumes.
type PubSub interface {
	Receive(ctx context.Context) (interface{}, error)
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// Subscriber opens pattern subscriptions on the broker.
type Subscriber interface {
	PSubscribe(ctx context.Context, patterns ...string) PubSub
}

type redisSubscriber struct {
	client *redis.Client
}

func (s redisSubscriber) PSubscribe(ctx context.Context, patterns ...string) PubSub {
	return s.client.PSubscribe(ctx, patterns...)
}

// NewRedisSubscriber adapts a go-redis client to the Subscriber interface.
func NewRedisSubscriber(client *redis.Client) Subscriber {
	return redisSubscriber{client: client}
}

// State describes the bridge's connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Health is a snapshot of the bridge state for the health endpoint.
type Health struct {
	State     string `json:"state"`
	LastError string `json:"last_error,omitempty"`
}

// Dispatcher is the delivery surface the bridge forwards into.
type Dispatcher interface {
	Dispatch(channel string, in dispatch.Instruction)
}

// Bridge maintains the process-wide broker subscription. Subscription
// failures trigger reconnection with bounded exponential backoff rather than
// being swallowed.
type Bridge struct {
	subscriber Subscriber
	dispatcher Dispatcher
	pattern    string
	// origin is this instance's id; messages we published ourselves were
	// already delivered locally and are skipped on receipt.
	origin string
	logger zerolog.Logger

	mu      sync.Mutex
	state   State
	lastErr error

	cancel context.CancelFunc
	done   chan struct{}
}

func NewBridge(subscriber Subscriber, dispatcher Dispatcher, pattern, origin string, logger zerolog.Logger) *Bridge {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Bridge{
		subscriber: subscriber,
		dispatcher: dispatcher,
		pattern:    pattern,
		origin:     origin,
		logger:     logger.With().Str("component", "broker").Logger(),
	}
}

// Start launches the subscription loop. It returns immediately; connection
// state is observable through Health.
func (b *Bridge) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(runCtx)
	return nil
}

// Stop tears down the subscription and waits for the loop to exit.
func (b *Bridge) Stop(ctx context.Context) error {
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports the current connection state.
func (b *Bridge) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := Health{State: b.state.String()}
	if b.lastErr != nil {
		h.LastError = b.lastErr.Error()
	}
	return h
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)
	defer b.setState(StateDisconnected, nil)

	backoff := initialBackoff
	for {
		b.setState(StateConnecting, nil)
		pubsub := b.subscriber.PSubscribe(ctx, b.pattern)

		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			b.setState(StateDisconnected, err)
			b.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Broker subscription failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		b.setState(StateSubscribed, nil)
		backoff = initialBackoff
		b.logger.Info().Str("pattern", b.pattern).Msg("Subscribed to broker")

		ch := pubsub.Channel()
	consume:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break consume
				}
				b.handle(msg)
			}
		}

		_ = pubsub.Close()
		if ctx.Err() != nil {
			return
		}
		b.setState(StateDisconnected, errors.New("broker: message stream closed"))
		b.logger.Warn().Dur("retry_in", backoff).Msg("Broker message stream closed, reconnecting")
		if !sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// handle decodes one broker message and forwards it as a whole-room dispatch.
// The payload is copied out and routed; nothing here blocks on registry state.
func (b *Bridge) handle(msg *redis.Message) {
	messagesTotal.Inc()

	var bm wire.BrokerMessage
	if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
		discardedTotal.Inc()
		b.logger.Debug().Err(err).Str("channel", msg.Channel).Msg("Discarding undecodable broker message")
		return
	}
	if bm.Event == "" {
		discardedTotal.Inc()
		b.logger.Debug().Str("channel", msg.Channel).Msg("Discarding broker message without event")
		return
	}
	if b.origin != "" && bm.Origin == b.origin {
		return
	}

	b.dispatcher.Dispatch(msg.Channel, dispatch.Instruction{Event: bm.Event, Data: bm.Data})
}

func (b *Bridge) setState(state State, err error) {
	b.mu.Lock()
	b.state = state
	if err != nil {
		b.lastErr = err
	}
	b.mu.Unlock()

	if state == StateSubscribed {
		subscribedGauge.Set(1)
	} else {
		subscribedGauge.Set(0)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
