package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/propctl/internal/device"
	"github.com/nerrad567/propctl/internal/infrastructure/config"
	"github.com/nerrad567/propctl/internal/infrastructure/logging"
	"github.com/nerrad567/propctl/internal/session"
	"github.com/nerrad567/propctl/internal/zone"
)

const gracefulShutdownTimeout = 10 * time.Second

// StateSource exposes the live device state array.
type StateSource interface {
	States() []int
}

// Zones is the zone machine as seen by the API.
type Zones interface {
	Statuses() []zone.Status
	Status(id int) (zone.Status, error)
	Trigger(id int, source string) (string, error)
}

// RunStore reads the zone run journal.
type RunStore interface {
	ListRuns(ctx context.Context, zone int, limit int) ([]zone.Run, error)
	GetRun(ctx context.Context, id string) (zone.Run, error)
}

// HistoryStore reads the device state history.
type HistoryStore interface {
	GetHistory(ctx context.Context, limit int) ([]device.StateHistoryEntry, error)
}

// ClientCounter reports connected display clients.
type ClientCounter interface {
	Count() int
}

// ConnAcceptor takes a newly upgraded display client.
type ConnAcceptor interface {
	Offer(c session.Conn) error
}

// HealthChecker is implemented by optional infrastructure (database,
// MQTT, InfluxDB) reported under /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds what the server needs. States, Zones and Logger are
// required; the journals, Clients and Backlog may be nil, in which case
// their routes answer 503 or are not mounted.
type Deps struct {
	Config    config.APIConfig
	WebSocket config.WebSocketConfig
	Logger    *logging.Logger
	States    StateSource
	Zones     Zones
	Runs      RunStore
	History   HistoryStore
	Clients   ClientCounter
	Backlog   ConnAcceptor
	Health    map[string]HealthChecker
	Version   string
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	states  StateSource
	zones   Zones
	runs    RunStore
	history HistoryStore
	clients ClientCounter
	backlog ConnAcceptor
	health  map[string]HealthChecker
	version string
	started time.Time

	server   *http.Server
	listener net.Listener
}

// New validates deps. The server does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.States == nil {
		return nil, fmt.Errorf("state source is required")
	}
	if deps.Zones == nil {
		return nil, fmt.Errorf("zones are required")
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WebSocket,
		logger:  deps.Logger,
		states:  deps.States,
		zones:   deps.Zones,
		runs:    deps.Runs,
		history: deps.History,
		clients: deps.Clients,
		backlog: deps.Backlog,
		health:  deps.Health,
		version: deps.Version,
		started: time.Now(),
	}, nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in the background. A bind
// failure (port in use) is returned here rather than logged later.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close waits up to 10s for in-flight requests. Hijacked WebSocket
// connections are not tracked here; the session registry closes them.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
