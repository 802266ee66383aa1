package httpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/sinecast/internal/platform/errors"
	"github.com/pscheid92/sinecast/internal/stream"
)

// Peers are not expected to send anything; whatever they do send is discarded.
const maxPeerMessageSize = 4096

func (s *Server) handleStream(c echo.Context) error {
	ctx := c.Request().Context()
	ip := c.RealIP()

	if ok, reason := s.limits.Acquire(ip); !ok {
		s.streamMetrics().ConnectionRejected(string(reason))
		if reason == LimitReasonGlobal {
			return apperrors.UnavailableError("stream capacity reached")
		}
		return apperrors.RateLimitedError("too many stream connections").WithField("reason", string(reason))
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.streamMetrics().ConnectionRejected(string(LimitReasonHandshake))
		slog.DebugContext(ctx, "WebSocket upgrade failed", "error", err, "remote_ip", ip)
		return nil
	}
	conn.SetReadLimit(maxPeerMessageSize)

	if !s.trackStream() {
		closeGoingAway(conn)
		return nil
	}
	defer s.streams.Done()

	if s.broadcaster != nil {
		s.serveBroadcast(ctx, conn)
		return nil
	}
	s.serveSession(conn)
	return nil
}

// serveSession runs a stream that owns its own tick and advances the store.
func (s *Server) serveSession(conn *websocket.Conn) {
	sessionCtx, cancel := context.WithCancelCause(s.streamCtx)
	defer cancel(nil)

	go func() {
		err := stream.Drain(conn)
		cancel(fmt.Errorf("%w: %w", stream.ErrPeerClosed, err))
	}()

	sess := stream.NewSession(conn, s.store, s.clock, stream.Options{
		Interval: s.config.StreamInterval,
		Step:     s.config.AdvanceStep,
	}, s.streamMetrics())
	_ = sess.Run(sessionCtx)
}

// serveBroadcast attaches the connection to the shared broadcaster and reads
// until the peer leaves. On shutdown the broadcaster closes the connection.
func (s *Server) serveBroadcast(ctx context.Context, conn *websocket.Conn) {
	id, err := s.broadcaster.Register(conn)
	if err != nil {
		slog.WarnContext(ctx, "Failed to register listener", "error", err)
		closeGoingAway(conn)
		return
	}

	drained := make(chan error, 1)
	go func() { drained <- stream.Drain(conn) }()

	select {
	case <-drained:
		s.broadcaster.Unregister(id)
	case <-s.streamCtx.Done():
	case <-s.broadcaster.Done():
	}
}

func closeGoingAway(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, stream.ErrShutdown.Error())
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}
