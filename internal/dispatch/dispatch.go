// Package dispatch resolves logical broadcast instructions into concrete
// transport deliveries. It is the single delivery path used by the presence
// registry, the subscription router, and the broker bridge.
package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mediumart/echo.io/pkg/wire"
)

var (
	dispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echoio_dispatched_events_total",
		Help: "Events delivered to a transport target.",
	}, []string{"event"})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echoio_dropped_events_total",
		Help: "Events dropped because their target connection no longer exists.",
	})
)

// Transport is the delivery capability the router consumes from the socket
// layer. Every connection is implicitly a member of a room named by its own
// id, which is how a frame is addressed to exactly one connection.
type Transport interface {
	// Emit delivers frame to every connection joined to room, skipping the
	// connection identified by exclude when non-empty.
	Emit(room, exclude string, frame wire.Frame)
	// Resolve reports whether id identifies a live connection.
	Resolve(id string) bool
}

// Instruction is a logical broadcast: an event and payload for a channel,
// optionally excluding the acting connection, optionally overriding the
// target room.
type Instruction struct {
	Event string
	// ConnID names the acting connection to exclude from delivery. If it is
	// set but no longer resolvable the instruction is dropped silently.
	ConnID string
	// Room overrides the channel as the delivery room. Used for unicast
	// replies addressed to a connection's self-room.
	Room string
	Data any
}

// Router turns instructions into transport emits.
type Router struct {
	transport Transport
	logger    zerolog.Logger
}

func NewRouter(transport Transport, logger zerolog.Logger) *Router {
	return &Router{
		transport: transport,
		logger:    logger.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch resolves the instruction's target and emits. Delivery is
// best-effort: an unresolvable actor drops the message, and there is no
// confirmation or retry.
func (r *Router) Dispatch(channel string, in Instruction) {
	room := in.Room
	if room == "" {
		room = channel
	}

	if in.ConnID != "" && !r.transport.Resolve(in.ConnID) {
		droppedTotal.Inc()
		r.logger.Debug().
			Str("channel", channel).
			Str("event", in.Event).
			Str("conn", in.ConnID).
			Msg("Dropping event for unresolvable connection")
		return
	}

	r.transport.Emit(room, in.ConnID, wire.Frame{
		Event:   in.Event,
		Channel: channel,
		Data:    in.Data,
	})
	dispatchedTotal.WithLabelValues(in.Event).Inc()
}

// Joining notifies current channel members of a new presence, excluding the
// connection that just joined.
func (r *Router) Joining(channel, connID string, status any) {
	r.Dispatch(channel, Instruction{Event: wire.EventJoining, ConnID: connID, Data: status})
}

// Subscribed replies to exactly the subscribing connection with the statuses
// of the other members, by addressing that connection's self-room.
func (r *Router) Subscribed(channel, connID string, statuses []wire.PresenceStatus) {
	r.Dispatch(channel, Instruction{Event: wire.EventSubscribed, Room: connID, Data: statuses})
}

// Leaving notifies the whole channel that a presence is gone.
func (r *Router) Leaving(channel string, status any) {
	r.Dispatch(channel, Instruction{Event: wire.EventLeaving, Data: status})
}
