package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediumart/echo.io/pkg/wire"
)

type fakePublishClient struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublishClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	}
	return cmd
}

func TestPublisher_StampsOrigin(t *testing.T) {
	client := &fakePublishClient{}
	p := NewPublisher(client, "instance-1", zerolog.Nop())

	err := p.Publish(context.Background(), "presence-room", wire.BrokerMessage{
		Event: "chat:message",
		Data:  []byte(`{"text":"hi"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "presence-room", client.channel)

	var msg wire.BrokerMessage
	require.NoError(t, json.Unmarshal(client.payload, &msg))
	assert.Equal(t, "chat:message", msg.Event)
	assert.Equal(t, "instance-1", msg.Origin)
	assert.JSONEq(t, `{"text":"hi"}`, string(msg.Data))
}

func TestPublisher_KeepsExplicitOrigin(t *testing.T) {
	client := &fakePublishClient{}
	p := NewPublisher(client, "instance-1", zerolog.Nop())

	err := p.Publish(context.Background(), "news", wire.BrokerMessage{Event: "e", Origin: "backend"})
	require.NoError(t, err)

	var msg wire.BrokerMessage
	require.NoError(t, json.Unmarshal(client.payload, &msg))
	assert.Equal(t, "backend", msg.Origin)
}

func TestPublisher_WrapsClientError(t *testing.T) {
	client := &fakePublishClient{err: errors.New("broken pipe")}
	p := NewPublisher(client, "instance-1", zerolog.Nop())

	err := p.Publish(context.Background(), "news", wire.BrokerMessage{Event: "e"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}
