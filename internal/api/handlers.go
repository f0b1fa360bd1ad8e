// Package api defines the HTTP handlers for the service's operational
// surface: health reporting and runtime statistics.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mediumart/echo.io/internal/broker"
	"github.com/mediumart/echo.io/internal/presence"
	"github.com/mediumart/echo.io/internal/realtime"
)

// PresenceStats reports the registry's current occupancy.
type PresenceStats interface {
	Stats() presence.Stats
}

// TransportStats reports the hub's current occupancy.
type TransportStats interface {
	Stats() realtime.HubStats
}

// BrokerHealth reports the broker bridge's subscription state.
type BrokerHealth interface {
	Health() broker.Health
}

// API holds the dependencies for the stateless HTTP handlers.
type API struct {
	presence  PresenceStats
	transport TransportStats
	broker    BrokerHealth
	logger    zerolog.Logger
}

// NewAPI creates a new, stateless API handler. The broker may be nil when the
// service runs without a bridge, and presence may be nil when the registry
// implementation does not report stats.
func NewAPI(presence PresenceStats, transport TransportStats, broker BrokerHealth, logger zerolog.Logger) *API {
	return &API{
		presence:  presence,
		transport: transport,
		broker:    broker,
		logger:    logger,
	}
}

type healthResponse struct {
	Status string         `json:"status"`
	Broker *broker.Health `json:"broker,omitempty"`
}

type statsResponse struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
	Presences   int `json:"presences"`
	Bindings    int `json:"bindings"`
}

// HealthHandler reports process liveness plus, when a broker bridge is wired,
// its subscription state. The endpoint always returns 200: a reconnecting
// bridge degrades the service but does not make it unhealthy.
func (a *API) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if a.broker != nil {
		h := a.broker.Health()
		resp.Broker = &h
	}
	a.writeJSON(w, http.StatusOK, resp)
}

// StatsHandler reports the hub and registry occupancy counters.
func (a *API) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	hub := a.transport.Stats()
	var reg presence.Stats
	if a.presence != nil {
		reg = a.presence.Stats()
	}
	a.writeJSON(w, http.StatusOK, statsResponse{
		Connections: hub.Connections,
		Rooms:       hub.Rooms,
		Presences:   reg.Presences,
		Bindings:    reg.Bindings,
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error().Err(err).Msg("Failed to write JSON response")
	}
}
