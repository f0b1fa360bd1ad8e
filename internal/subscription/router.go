// Package subscription is the per-connection control plane: it classifies
// requested channels, verifies tickets for restricted scopes, and routes
// joins, leaves, and client events to the presence registry, the transport,
// and the dispatch layer.
package subscription

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mediumart/echo.io/internal/dispatch"
	"github.com/mediumart/echo.io/internal/ticket"
	"github.com/mediumart/echo.io/pkg/wire"
)

var rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "echoio_rejected_subscriptions_total",
	Help: "Subscribe attempts rejected by channel authorization.",
}, []string{"reason"})

// Transport is the room capability the router consumes.
type Transport interface {
	Join(ctx context.Context, connID, room string) error
	Leave(connID, room string)
	InRoom(connID, room string) bool
}

// Registry is the presence registry surface, pluggable through the service
// configuration.
type Registry interface {
	Subscribe(ctx context.Context, userID, channel, connID string, status wire.PresenceStatus) error
	Unsubscribe(ctx context.Context, connID, channel string)
	OnDisconnecting(ctx context.Context, connID string)
}

// Dispatcher delivers client events locally.
type Dispatcher interface {
	Dispatch(channel string, in dispatch.Instruction)
}

// Publisher fans client events out to other instances through the broker.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg wire.BrokerMessage) error
}

// Router implements the subscribe/unsubscribe state machine.
type Router struct {
	transport  Transport
	registry   Registry
	dispatcher Dispatcher
	// publisher may be nil when the process runs without a broker.
	publisher Publisher
	authKey   string
	logger    zerolog.Logger
}

func NewRouter(
	transport Transport,
	registry Registry,
	dispatcher Dispatcher,
	publisher Publisher,
	authKey string,
	logger zerolog.Logger,
) *Router {
	return &Router{
		transport:  transport,
		registry:   registry,
		dispatcher: dispatcher,
		publisher:  publisher,
		authKey:    authKey,
		logger:     logger.With().Str("component", "subscription").Logger(),
	}
}

// Subscribe handles a channel subscribe request. Failed authorization blocks
// the join without surfacing a protocol error to the client; the attempt is
// only logged and counted.
func (r *Router) Subscribe(ctx context.Context, connID string, req wire.SubscribeRequest) {
	if req.Channel == "" {
		return
	}
	logger := r.logger.With().Str("conn", connID).Str("channel", req.Channel).Logger()

	scope := wire.ScopeOf(req.Channel)
	if scope == wire.ScopePublic {
		if err := r.transport.Join(ctx, connID, req.Channel); err != nil {
			logger.Warn().Err(err).Msg("Public join failed")
		}
		return
	}

	claims, ok := r.authorize(logger, req)
	if !ok {
		return
	}

	switch scope {
	case wire.ScopePrivate:
		// The ticket proves authorization; a private channel is otherwise a
		// plain room join.
		if err := r.transport.Join(ctx, connID, req.Channel); err != nil {
			logger.Warn().Err(err).Msg("Private join failed")
		}

	case wire.ScopePresence:
		if claims.UserID == "" {
			rejectedTotal.WithLabelValues("missing_user").Inc()
			logger.Debug().Msg("Rejected presence subscribe without user_id claim")
			return
		}
		if r.transport.InRoom(connID, req.Channel) {
			return
		}
		status := wire.PresenceStatus{UserInfo: claims.UserInfo}
		if err := r.registry.Subscribe(ctx, claims.UserID, req.Channel, connID, status); err != nil {
			logger.Warn().Err(err).Msg("Presence subscribe failed")
		}
	}
}

// Unsubscribe handles a channel unsubscribe request.
func (r *Router) Unsubscribe(ctx context.Context, connID string, req wire.UnsubscribeRequest) {
	if req.Channel == "" {
		return
	}
	if wire.ScopeOf(req.Channel) == wire.ScopePresence {
		if r.transport.InRoom(connID, req.Channel) {
			r.registry.Unsubscribe(ctx, connID, req.Channel)
		}
		return
	}
	r.transport.Leave(connID, req.Channel)
}

// ClientEvent relays a client-originated event to the channel's other local
// members and publishes it to the broker for remote ones. Events for
// channels the sender has not joined are dropped.
func (r *Router) ClientEvent(ctx context.Context, connID string, ev wire.ClientEvent) {
	if ev.Channel == "" || ev.Event == "" {
		return
	}
	if !r.transport.InRoom(connID, ev.Channel) {
		return
	}

	payload := wire.EventPayload{Channel: ev.Channel, Data: ev.Data}
	r.dispatcher.Dispatch(ev.Channel, dispatch.Instruction{
		Event:  ev.Event,
		ConnID: connID,
		Data:   payload,
	})

	if r.publisher == nil {
		return
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := r.publisher.Publish(ctx, ev.Channel, wire.BrokerMessage{Event: ev.Event, Data: encoded}); err != nil {
		r.logger.Warn().Err(err).Str("channel", ev.Channel).Msg("Broker publish failed")
	}
}

// OnDisconnecting releases the connection's presence memberships.
func (r *Router) OnDisconnecting(ctx context.Context, connID string) {
	r.registry.OnDisconnecting(ctx, connID)
}

// authorize validates the request's ticket against the requested channel.
func (r *Router) authorize(logger zerolog.Logger, req wire.SubscribeRequest) (*wire.Claims, bool) {
	token := req.Ticket()
	if token == "" {
		rejectedTotal.WithLabelValues("missing_ticket").Inc()
		logger.Debug().Msg("Rejected scoped subscribe without ticket")
		return nil, false
	}

	payload, err := ticket.Verify(token, r.authKey)
	if err != nil {
		rejectedTotal.WithLabelValues("invalid_ticket").Inc()
		logger.Debug().Msg("Rejected subscribe with invalid ticket")
		return nil, false
	}
	if payload.Claims == nil || payload.Claims.ChannelName != req.Channel {
		rejectedTotal.WithLabelValues("channel_mismatch").Inc()
		logger.Debug().Msg("Rejected subscribe with mismatched channel claim")
		return nil, false
	}
	return payload.Claims, true
}
