package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeOf(t *testing.T) {
	cases := []struct {
		channel string
		want    ChannelScope
	}{
		{"presence-room", ScopePresence},
		{"private-orders", ScopePrivate},
		{"news", ScopePublic},
		{"presence-", ScopePublic},
		{"private-", ScopePublic},
		{"", ScopePublic},
		{"presence-private-x", ScopePresence},
		{"Private-x", ScopePublic},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ScopeOf(tc.channel), "channel %q", tc.channel)
	}
}

func TestSubscribeRequest_Ticket(t *testing.T) {
	assert.Equal(t, "k", SubscribeRequest{Key: "k", Status: "s"}.Ticket())
	assert.Equal(t, "s", SubscribeRequest{Status: "s"}.Ticket())
	assert.Equal(t, "", SubscribeRequest{}.Ticket())
}

func TestEnvelopeDecoding(t *testing.T) {
	raw := []byte(`{"event":"subscribe","data":{"channel":"presence-room","key":"abc"}}`)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventSubscribe, env.Event)

	var req SubscribeRequest
	require.NoError(t, json.Unmarshal(env.Data, &req))
	assert.Equal(t, "presence-room", req.Channel)
	assert.Equal(t, "abc", req.Ticket())
}
