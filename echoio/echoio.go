// Package echoio wires the broadcasting core into a runnable service: the
// websocket hub, the presence registry, the subscription control plane, the
// broker bridge, and the operational HTTP surface.
package echoio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mediumart/echo.io/echoio/config"
	"github.com/mediumart/echo.io/internal/api"
	"github.com/mediumart/echo.io/internal/broker"
	"github.com/mediumart/echo.io/internal/dispatch"
	"github.com/mediumart/echo.io/internal/presence"
	"github.com/mediumart/echo.io/internal/realtime"
	"github.com/mediumart/echo.io/internal/subscription"
)

// Dependencies carries the externally-constructed collaborators. Subscriber
// and Publisher are nil when the service runs without a broker, as tests and
// single-instance deployments do.
type Dependencies struct {
	// InstanceID stamps outgoing broker messages and filters them on receipt.
	// It must match the origin the Publisher was built with.
	InstanceID string
	Subscriber broker.Subscriber
	Publisher  subscription.Publisher
	// Registry replaces the built-in presence registry. Nil selects the
	// built-in one.
	Registry subscription.Registry
}

// Service is the assembled broadcasting node.
type Service struct {
	cfg        *config.AppConfig
	hub        *realtime.Hub
	registry   subscription.Registry
	bridge     *broker.Bridge
	httpServer *http.Server
	logger     zerolog.Logger
}

// New creates and wires up the entire service.
func New(cfg *config.AppConfig, deps *Dependencies, logger zerolog.Logger) (*Service, error) {
	if deps == nil {
		deps = &Dependencies{}
	}

	hub := realtime.NewHub(logger)
	dispatcher := dispatch.NewRouter(hub, logger)

	registry := deps.Registry
	if registry == nil {
		registry = presence.NewRegistry(hub, dispatcher, logger)
	}

	eventRouter := subscription.NewRouter(hub, registry, dispatcher, deps.Publisher, cfg.AuthKey, logger)
	wsServer := realtime.NewServer(hub, eventRouter, cfg.AllowedOrigins, logger)

	var bridge *broker.Bridge
	if deps.Subscriber != nil {
		bridge = broker.NewBridge(deps.Subscriber, dispatcher, cfg.Broker.Pattern, deps.InstanceID, logger)
	}

	var health api.BrokerHealth
	if bridge != nil {
		health = bridge
	}
	// A plugged-in registry only feeds the stats surface when it reports them.
	var presenceStats api.PresenceStats
	if s, ok := registry.(api.PresenceStats); ok {
		presenceStats = s
	}
	apiHandler := api.NewAPI(presenceStats, hub, health, logger.With().Str("component", "api").Logger())

	router := mux.NewRouter()
	router.Handle("/ws", wsServer)
	router.HandleFunc("/healthz", apiHandler.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/stats", apiHandler.StatsHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())

	return &Service{
		cfg:      cfg,
		hub:      hub,
		registry: registry,
		bridge:   bridge,
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}, nil
}

// Handler exposes the service's HTTP surface, for tests that mount it on
// their own listener.
func (s *Service) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the broker bridge, then serves HTTP until ctx is cancelled or
// the server fails. It blocks for the lifetime of the server.
func (s *Service) Start(ctx context.Context) error {
	if s.bridge != nil {
		if err := s.bridge.Start(ctx); err != nil {
			return fmt.Errorf("failed to start broker bridge: %w", err)
		}
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server failed to listen: %w", err)
	}
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("HTTP listener is active.")

	serverErrChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
			serverErrChan <- err
		}
		close(serverErrChan)
	}()

	select {
	case err := <-serverErrChan:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully stops all service components in the correct order: new
// work is refused first, then the bridge's delivery stream is drained.
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down service components...")
	var finalErr error

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("HTTP server shutdown failed.")
		finalErr = err
	}

	if s.bridge != nil {
		if err := s.bridge.Stop(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Broker bridge shutdown failed.")
			finalErr = err
		}
	}

	s.logger.Info().Msg("All components shut down.")
	return finalErr
}
