// Package wire defines the shared wire contract between the server, its
// clients, and the pub/sub broker: event names, inbound request payloads,
// outbound frames, and the channel scope taxonomy.
package wire

import (
	"encoding/json"
	"strings"
)

// Inbound event names. These are part of the client wire contract.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventClient      = "client event"
)

// Outbound presence notification event names.
const (
	EventJoining    = "presence:joining"
	EventSubscribed = "presence:subscribed"
	EventLeaving    = "presence:leaving"
)

// Envelope is the raw inbound frame read off a client socket. Data is decoded
// per-event into one of the request types below.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SubscribeRequest asks to join a channel. Key carries the signed ticket for
// private and presence channels; some clients send it under "status" instead,
// either field is accepted.
type SubscribeRequest struct {
	Channel string `json:"channel"`
	Key     string `json:"key,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Ticket returns the ticket string supplied with the request, preferring Key.
func (r SubscribeRequest) Ticket() string {
	if r.Key != "" {
		return r.Key
	}
	return r.Status
}

// UnsubscribeRequest asks to leave a channel.
type UnsubscribeRequest struct {
	Channel string `json:"channel"`
}

// ClientEvent is a client-originated message relayed verbatim to every other
// member of the channel.
type ClientEvent struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Frame is the outbound delivery unit: an event name with the (channel,
// payload) tuple it carries.
type Frame struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Data    any    `json:"data,omitempty"`
}

// EventPayload is the payload shape of a relayed client event.
type EventPayload struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// BrokerMessage is the JSON payload published on the broker topic space.
// Origin identifies the publishing server instance so the bridge can skip
// messages it already delivered locally; publishers outside the cluster
// (application backends) leave it empty.
type BrokerMessage struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	Origin string          `json:"origin,omitempty"`
}

// Claims is the decoded claims segment of a verified ticket.
type Claims struct {
	ChannelName string          `json:"channel_name"`
	UserID      string          `json:"user_id"`
	UserInfo    json.RawMessage `json:"user_info,omitempty"`
	ChannelData json.RawMessage `json:"channel_data,omitempty"`
}

// PresenceStatus is the opaque status payload attached to a presence member,
// built from the ticket's user_info claim.
type PresenceStatus struct {
	UserInfo json.RawMessage `json:"user_info,omitempty"`
}

// ChannelScope classifies a channel name by its authorization requirements.
type ChannelScope int

const (
	// ScopePublic channels require no authorization.
	ScopePublic ChannelScope = iota
	// ScopePrivate channels require a verified ticket but carry no
	// membership visibility.
	ScopePrivate
	// ScopePresence channels require a verified ticket and track member
	// presence.
	ScopePresence
)

const (
	privatePrefix  = "private-"
	presencePrefix = "presence-"
)

// ScopeOf classifies a channel name by prefix. The prefix must be followed by
// at least one character; a bare "private-" is public.
func ScopeOf(channel string) ChannelScope {
	switch {
	case strings.HasPrefix(channel, presencePrefix) && len(channel) > len(presencePrefix):
		return ScopePresence
	case strings.HasPrefix(channel, privatePrefix) && len(channel) > len(privatePrefix):
		return ScopePrivate
	default:
		return ScopePublic
	}
}

func (s ChannelScope) String() string {
	switch s {
	case ScopePrivate:
		return "private"
	case ScopePresence:
		return "presence"
	default:
		return "public"
	}
}
