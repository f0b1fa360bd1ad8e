// Package presence owns the presence state of all connected users: which
// authenticated user is present on which presence channel, and through which
// physical connections. It is the single writer of both of its tables.
package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mediumart/echo.io/pkg/wire"
)

var presenceGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "echoio_presences",
	Help: "Distinct (channel, user) presences currently registered.",
})

// Key identifies one presence: one user on one channel. Using a struct key
// rules out the collisions and substring false-positives a concatenated
// string key would allow.
type Key struct {
	Channel string
	UserID  string
}

// Presence is one user's membership of one presence channel, possibly held
// open by several physical connections at once. It exists iff Connections > 0.
type Presence struct {
	Key         Key
	Status      wire.PresenceStatus
	Connections int
}

// Transport is the room capability the registry consumes.
type Transport interface {
	// Join adds the connection to the room and must have completed before
	// the registry indexes the presence, so the new member can receive
	// channel traffic before peers are told about it.
	Join(ctx context.Context, connID, room string) error
	Leave(connID, room string)
}

// Notifier delivers the three presence notifications.
type Notifier interface {
	Joining(channel, connID string, status any)
	Subscribed(channel, connID string, statuses []wire.PresenceStatus)
	Leaving(channel string, status any)
}

// Stats is a point-in-time snapshot of the registry tables.
type Stats struct {
	Presences int `json:"presences"`
	Bindings  int `json:"bindings"`
}

// Registry implements the presence join/leave/disconnect state machine.
// All mutations are serialized behind one mutex; the read-modify-write
// sequences below must not interleave for the same key.
type Registry struct {
	mu        sync.Mutex
	presences map[Key]*Presence
	bindings  map[string]map[Key]struct{} // connection id -> presence keys held

	transport Transport
	notifier  Notifier
	logger    zerolog.Logger
}

func NewRegistry(transport Transport, notifier Notifier, logger zerolog.Logger) *Registry {
	return &Registry{
		presences: make(map[Key]*Presence),
		bindings:  make(map[string]map[Key]struct{}),
		transport: transport,
		notifier:  notifier,
		logger:    logger.With().Str("component", "presence").Logger(),
	}
}

// Subscribe registers a connection as a presence member of channel. The first
// connection for a (channel, user) pair creates the presence and announces it
// to current members; every connection, first or not, gets a subscribed reply
// listing the other users' statuses.
func (r *Registry) Subscribe(ctx context.Context, userID, channel, connID string, status wire.PresenceStatus) error {
	if err := r.transport.Join(ctx, connID, channel); err != nil {
		return fmt.Errorf("presence subscribe: join %q: %w", channel, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key{Channel: channel, UserID: userID}
	p, exists := r.presences[key]
	if !exists {
		p = &Presence{Key: key, Status: status}
		r.presences[key] = p
		presenceGauge.Inc()
		r.notifier.Joining(channel, connID, p.Status)
		r.logger.Debug().Str("channel", channel).Str("user", userID).Msg("New presence")
	}

	set := r.bindings[connID]
	if set == nil {
		set = make(map[Key]struct{})
		r.bindings[connID] = set
	}
	set[key] = struct{}{}
	p.Connections++

	r.notifier.Subscribed(channel, connID, r.channelStatuses(channel, userID))
	return nil
}

// Unsubscribe removes the presence this connection holds for channel,
// including every other connection of the same user, then announces the
// departure. Safe to call on already-cleaned state.
func (r *Registry) Unsubscribe(ctx context.Context, connID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(ctx, connID, channel)
}

func (r *Registry) unsubscribeLocked(_ context.Context, connID, channel string) {
	key, ok := r.keyFor(connID, channel)
	if !ok {
		return
	}

	// Every sibling connection must be unbound and out of the room before
	// peers see the leaving notification.
	for id, set := range r.bindings {
		if _, bound := set[key]; !bound {
			continue
		}
		delete(set, key)
		if len(set) == 0 {
			delete(r.bindings, id)
		}
		r.transport.Leave(id, channel)
	}

	if p, exists := r.presences[key]; exists {
		r.notifier.Leaving(channel, p.Status)
		delete(r.presences, key)
		presenceGauge.Dec()
		r.logger.Debug().Str("channel", channel).Str("user", key.UserID).Msg("Presence removed")
	}
}

// OnDisconnecting releases every presence membership the connection holds.
// A membership whose user has other live connections just loses one count;
// the last connection triggers the full unsubscribe path. Idempotent.
func (r *Registry) OnDisconnecting(ctx context.Context, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.bindings[connID]
	if !ok {
		return
	}

	keys := make([]Key, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	for _, key := range keys {
		p, exists := r.presences[key]
		if !exists {
			continue
		}
		p.Connections--
		if p.Connections <= 0 {
			r.unsubscribeLocked(ctx, connID, key.Channel)
		}
	}

	delete(r.bindings, connID)
}

// Stats reports current table sizes.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Presences: len(r.presences), Bindings: len(r.bindings)}
}

// channelStatuses collects the status of every user present on channel other
// than userID. Callers hold the mutex.
func (r *Registry) channelStatuses(channel, userID string) []wire.PresenceStatus {
	statuses := make([]wire.PresenceStatus, 0)
	for key, p := range r.presences {
		if key.Channel == channel && key.UserID != userID {
			statuses = append(statuses, p.Status)
		}
	}
	return statuses
}

// keyFor finds the presence key the connection holds for channel. Callers
// hold the mutex.
func (r *Registry) keyFor(connID, channel string) (Key, bool) {
	for key := range r.bindings[connID] {
		if key.Channel == channel {
			return key, true
		}
	}
	return Key{}, false
}
