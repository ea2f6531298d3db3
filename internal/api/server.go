// Package api provides the HTTP REST API and WebSocket server for Miras Core.
//
// It exposes system state reads, project management, and the command
// dispatch surface to client user interfaces, and pushes device and
// system events to WebSocket subscribers in real time.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/miras-broadcast/miras-core/internal/command"
	"github.com/miras-broadcast/miras-core/internal/device"
	"github.com/miras-broadcast/miras-core/internal/infrastructure/config"
	"github.com/miras-broadcast/miras-core/internal/infrastructure/logging"
	"github.com/miras-broadcast/miras-core/internal/project"
	"github.com/miras-broadcast/miras-core/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Registry   *device.Registry
	Dispatcher *command.Dispatcher
	Projects   *project.Manager
	Aggregator *state.Aggregator
	Version    string
}

// Server is the HTTP API server for Miras Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	registry   *device.Registry
	dispatcher *command.Dispatcher
	projects   *project.Manager
	aggregator *state.Aggregator
	version    string

	server      *http.Server
	hub         *Hub
	cancel      context.CancelFunc
	unsubscribe []func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("command dispatcher is required")
	}
	if deps.Aggregator == nil {
		return nil, fmt.Errorf("state aggregator is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		projects:   deps.Projects,
		aggregator: deps.Aggregator,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, bridges core events into WebSocket
// broadcasts, and launches the HTTP listener in a background goroutine.
// The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger, s.aggregator, s.dispatcher)
	go s.hub.Run(srvCtx)

	s.bridgeEvents()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// bridgeEvents fans core events out to WebSocket subscribers. Device
// events broadcast on their event-kind channel; every aggregator change
// broadcasts the fresh system state.
func (s *Server) bridgeEvents() {
	s.unsubscribe = append(s.unsubscribe, s.registry.Subscribe(func(ev device.Event) {
		s.hub.Broadcast(string(ev.Kind), deviceEventPayload(ev))
	}))
	s.unsubscribe = append(s.unsubscribe, s.aggregator.Subscribe(func(st state.SystemState) {
		s.hub.Broadcast(channelSystemState, st)
	}))
}

// deviceEventPayload flattens a device event into plain broadcast data.
func deviceEventPayload(ev device.Event) map[string]any {
	payload := map[string]any{
		"deviceId":  ev.DeviceID,
		"snapshot":  ev.Snapshot,
		"timestamp": ev.Timestamp.UTC().Format(time.RFC3339),
	}
	if ev.Err != nil {
		payload["error"] = map[string]string{
			"code":    string(ev.Err.Code),
			"message": ev.Err.Message,
		}
	}
	if ev.State != nil {
		payload["state"] = ev.State
	}
	return payload
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	for _, unsub := range s.unsubscribe {
		unsub()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
