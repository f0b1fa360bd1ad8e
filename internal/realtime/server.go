package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mediumart/echo.io/pkg/wire"
)

// EventRouter is the control-plane surface inbound client events are handed
// to. Payload decoding happens here; interpretation happens in the router.
type EventRouter interface {
	Subscribe(ctx context.Context, connID string, req wire.SubscribeRequest)
	Unsubscribe(ctx context.Context, connID string, req wire.UnsubscribeRequest)
	ClientEvent(ctx context.Context, connID string, ev wire.ClientEvent)
	OnDisconnecting(ctx context.Context, connID string)
}

// Server upgrades HTTP requests to websocket connections and runs their
// read side, forwarding decoded events to the router.
type Server struct {
	hub      *Hub
	router   EventRouter
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewServer builds the websocket endpoint. An empty allowedOrigins list
// accepts handshakes from any origin; otherwise the Origin header must match
// one of the entries exactly (requests without an Origin header, such as
// non-browser clients, are always accepted).
func NewServer(hub *Hub, router EventRouter, allowedOrigins []string, logger zerolog.Logger) *Server {
	return &Server{
		hub:    hub,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.With().Str("component", "ws_server").Logger(),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP upgrades the request and manages the connection lifecycle.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	conn := newConn(uuid.NewString(), ws, s.logger)
	s.hub.Register(conn)
	go conn.writePump()

	logger := s.logger.With().Str("conn", conn.ID()).Logger()
	logger.Info().Msg("Client connected")

	s.readLoop(r.Context(), conn, ws, logger)

	// Disconnect: presence cleanup first, while the connection is still
	// resolvable, then drop it from the hub.
	s.router.OnDisconnecting(r.Context(), conn.ID())
	s.hub.Unregister(conn)
	conn.closeSend()
	_ = ws.Close()
	logger.Info().Msg("Client disconnected")
}

func (s *Server) readLoop(ctx context.Context, conn *Conn, ws *websocket.Conn, logger zerolog.Logger) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Debug().Err(err).Msg("Discarding undecodable frame")
			continue
		}

		switch env.Event {
		case wire.EventSubscribe:
			var req wire.SubscribeRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				logger.Debug().Err(err).Msg("Discarding malformed subscribe request")
				continue
			}
			s.router.Subscribe(ctx, conn.ID(), req)

		case wire.EventUnsubscribe:
			var req wire.UnsubscribeRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				logger.Debug().Err(err).Msg("Discarding malformed unsubscribe request")
				continue
			}
			s.router.Unsubscribe(ctx, conn.ID(), req)

		case wire.EventClient:
			var ev wire.ClientEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				logger.Debug().Err(err).Msg("Discarding malformed client event")
				continue
			}
			s.router.ClientEvent(ctx, conn.ID(), ev)

		default:
			logger.Debug().Str("event", env.Event).Msg("Ignoring unknown event")
		}
	}
}
