// Package realtime is the transport layer: it accepts websocket connections,
// groups them into rooms, and emits framed events to one or many connections.
// The broadcasting core consumes it through small per-package interfaces.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediumart/echo.io/pkg/wire"
)

// ErrUnknownConnection is returned by Join when the connection id does not
// identify a live connection.
var ErrUnknownConnection = errors.New("realtime: unknown connection")

// HubStats is a point-in-time snapshot of the hub tables.
type HubStats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Hub owns room membership for all live connections. Every connection is
// implicitly joined to a room named by its own id; that self-room is the
// unicast path and cannot be left.
type Hub struct {
	mu          sync.RWMutex
	conns       map[string]*Conn
	rooms       map[string]map[string]*Conn
	memberships map[string]map[string]struct{} // conn id -> rooms joined

	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		conns:       make(map[string]*Conn),
		rooms:       make(map[string]map[string]*Conn),
		memberships: make(map[string]map[string]struct{}),
		logger:      logger.With().Str("component", "hub").Logger(),
	}
}

// Register indexes a new connection and creates its self-room.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
	h.rooms[c.id] = map[string]*Conn{c.id: c}
	h.memberships[c.id] = make(map[string]struct{})
}

// Unregister removes a connection from every room it joined, then drops it
// from the index. Idempotent.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.memberships[c.id] {
		h.removeFromRoomLocked(c.id, room)
	}
	delete(h.memberships, c.id)
	delete(h.rooms, c.id)
	delete(h.conns, c.id)
}

// Join adds the connection to room. The membership is visible to Emit as soon
// as Join returns, which is what lets callers sequence "join before announce".
func (h *Hub) Join(_ context.Context, connID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}

	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Conn)
		h.rooms[room] = members
	}
	members[connID] = c
	h.memberships[connID][room] = struct{}{}
	return nil
}

// Leave removes the connection from room. Leaving an unknown room, or the
// connection's own self-room, is a no-op.
func (h *Hub) Leave(connID, room string) {
	if connID == room {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(connID, room)
	if set, ok := h.memberships[connID]; ok {
		delete(set, room)
	}
}

// InRoom reports whether the connection currently belongs to room.
func (h *Hub) InRoom(connID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connID]
	return ok
}

// Resolve reports whether id identifies a live connection.
func (h *Hub) Resolve(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[id]
	return ok
}

// Emit encodes the frame once and queues it for every member of room except
// the excluded connection.
func (h *Hub) Emit(room, exclude string, frame wire.Frame) {
	encoded, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error().Err(err).Str("event", frame.Event).Msg("Failed to encode frame")
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.rooms[room]))
	for id, c := range h.rooms[room] {
		if id == exclude {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(encoded)
	}
}

// Stats reports current connection and room counts. Self-rooms are not
// counted as rooms.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := 0
	for room := range h.rooms {
		if _, selfRoom := h.conns[room]; !selfRoom {
			rooms++
		}
	}
	return HubStats{Connections: len(h.conns), Rooms: rooms}
}

func (h *Hub) removeFromRoomLocked(connID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}
