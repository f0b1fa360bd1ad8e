package dispatch

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/mediumart/echo.io/pkg/wire"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Emit(room, exclude string, frame wire.Frame) {
	m.Called(room, exclude, frame)
}

func (m *mockTransport) Resolve(id string) bool {
	return m.Called(id).Bool(0)
}

func TestDispatch_WholeRoom(t *testing.T) {
	transport := new(mockTransport)
	r := NewRouter(transport, zerolog.Nop())

	transport.On("Emit", "news", "", wire.Frame{Event: "update", Channel: "news", Data: "hello"}).Once()

	r.Dispatch("news", Instruction{Event: "update", Data: "hello"})

	transport.AssertExpectations(t)
}

func TestDispatch_ExcludesActor(t *testing.T) {
	transport := new(mockTransport)
	r := NewRouter(transport, zerolog.Nop())

	transport.On("Resolve", "c1").Return(true).Once()
	transport.On("Emit", "news", "c1", mock.AnythingOfType("wire.Frame")).Once()

	r.Dispatch("news", Instruction{Event: "update", ConnID: "c1"})

	transport.AssertExpectations(t)
}

func TestDispatch_UnresolvableActorDropsMessage(t *testing.T) {
	transport := new(mockTransport)
	r := NewRouter(transport, zerolog.Nop())

	transport.On("Resolve", "gone").Return(false).Once()

	r.Dispatch("news", Instruction{Event: "update", ConnID: "gone"})

	transport.AssertExpectations(t)
	transport.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscribed_UnicastsToSelfRoom(t *testing.T) {
	transport := new(mockTransport)
	r := NewRouter(transport, zerolog.Nop())

	statuses := []wire.PresenceStatus{{UserInfo: []byte(`{"name":"Ada"}`)}}
	transport.On("Emit", "c1", "",
		wire.Frame{Event: wire.EventSubscribed, Channel: "presence-room", Data: statuses}).Once()

	r.Subscribed("presence-room", "c1", statuses)

	transport.AssertExpectations(t)
}

func TestJoiningAndLeaving(t *testing.T) {
	transport := new(mockTransport)
	r := NewRouter(transport, zerolog.Nop())

	transport.On("Resolve", "c1").Return(true).Once()
	transport.On("Emit", "presence-room", "c1",
		wire.Frame{Event: wire.EventJoining, Channel: "presence-room", Data: "status"}).Once()
	transport.On("Emit", "presence-room", "",
		wire.Frame{Event: wire.EventLeaving, Channel: "presence-room", Data: "status"}).Once()

	r.Joining("presence-room", "c1", "status")
	r.Leaving("presence-room", "status")

	transport.AssertExpectations(t)
	assert.True(t, transport.AssertNumberOfCalls(t, "Emit", 2))
}
