package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/sinecast/internal/adapter/metrics"
	"github.com/pscheid92/sinecast/internal/domain"
	"github.com/pscheid92/sinecast/internal/platform/config"
	"github.com/pscheid92/sinecast/internal/stream"
)

type seriesService interface {
	RegisterSeries(ctx context.Context, name string) (float64, error)
	Snapshot() domain.Snapshot
}

// streamHub is the single-scheduler fan-out used in broadcast mode.
type streamHub interface {
	Register(conn stream.Conn) (uuid.UUID, error)
	Unregister(id uuid.UUID)
	ClientCount() int
	Done() <-chan struct{}
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app         seriesService
	store       domain.SeriesStore
	broadcaster streamHub
	clock       clockwork.Clock
	metrics     *metrics.Set

	upgrader     websocket.Upgrader
	limits       *ConnectionLimits
	healthChecks []HealthCheck
	startTime    time.Time

	// Hijacked stream connections outlive http.Server.Shutdown, so they are
	// tracked and cancelled separately.
	streamCtx   context.Context
	stopStreams context.CancelCauseFunc
	streamsMu   sync.Mutex
	closing     bool
	streams     sync.WaitGroup
}

// NewServer wires the HTTP surface. broadcaster must be non-nil when the
// configured advance mode is broadcast and is ignored otherwise.
func NewServer(cfg *config.Config, app seriesService, store domain.SeriesStore, broadcaster streamHub, clock clockwork.Clock, metricsSet *metrics.Set, healthChecks []HealthCheck) (*Server, error) {
	if cfg.Mode() == domain.AdvanceModeBroadcast && broadcaster == nil {
		return nil, errors.New("broadcast mode requires a broadcaster")
	}
	if cfg.Mode() == domain.AdvanceModeSession {
		broadcaster = nil
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	streamCtx, stopStreams := context.WithCancelCause(context.Background())

	srv := &Server{
		echo:        e,
		config:      cfg,
		app:         app,
		store:       store,
		broadcaster: broadcaster,
		clock:       clock,
		metrics:     metricsSet,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, !cfg.IsProduction()),
		},
		limits: NewConnectionLimits(
			clock,
			int64(cfg.MaxStreamConnections),
			cfg.MaxStreamConnectionsPerIP,
			cfg.StreamConnectRate,
			cfg.StreamConnectBurst,
		),
		startTime:   time.Now(),
		streamCtx:   streamCtx,
		stopStreams: stopStreams,
	}
	srv.healthChecks = append(srv.defaultHealthChecks(), healthChecks...)

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the router, e.g. for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port, "advance_mode", s.config.Mode())
	if err := s.echo.Start(net.JoinHostPort("", s.config.Port)); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, then ends every live stream and waits
// for their handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownErr := s.echo.Shutdown(ctx)

	s.streamsMu.Lock()
	s.closing = true
	s.streamsMu.Unlock()
	s.stopStreams(stream.ErrShutdown)

	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Timed out waiting for streams to close", "error", ctx.Err())
	}

	if shutdownErr != nil && !errors.Is(shutdownErr, http.ErrServerClosed) {
		return fmt.Errorf("failed to shutdown server: %w", shutdownErr)
	}
	return nil
}

// trackStream registers a live stream handler. It fails once shutdown began.
func (s *Server) trackStream() bool {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	if s.closing {
		return false
	}
	s.streams.Add(1)
	return true
}
