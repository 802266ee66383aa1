package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/sinecast/internal/adapter/metrics"
	"github.com/pscheid92/sinecast/internal/domain"
	"github.com/pscheid92/sinecast/internal/platform/correlation"
)

const (
	DefaultInterval = 10 * time.Millisecond
	DefaultStep     = 0.005

	defaultWriteTimeout = 5 * time.Second
	closeFrameTimeout   = time.Second
)

var (
	// ErrSerialization means the snapshot could not be encoded.
	ErrSerialization = errors.New("serialize snapshot")
	// ErrTransmit means the frame could not be written to the peer.
	ErrTransmit = errors.New("transmit frame")
	// ErrPeerClosed is the cancellation cause used when the peer goes away.
	ErrPeerClosed = errors.New("peer closed connection")
	// ErrShutdown is the cancellation cause used when the server stops.
	ErrShutdown = errors.New("server shutting down")
)

// Conn is the write side of a streaming connection.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Options configures a Session. A zero Interval or WriteTimeout selects the
// default; Step is applied as given, so zero freezes every series.
type Options struct {
	Interval     time.Duration
	Step         float64
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	return o
}

// Session streams snapshots of the store to one peer and advances the store
// after every frame the peer accepted.
type Session struct {
	id      uuid.UUID
	conn    Conn
	store   domain.SeriesStore
	clock   clockwork.Clock
	opts    Options
	metrics *metrics.StreamMetrics

	state  atomic.Int32
	frames atomic.Int64
}

// NewSession creates a session in the Connected state. streamMetrics may be nil.
func NewSession(conn Conn, store domain.SeriesStore, clock clockwork.Clock, opts Options, streamMetrics *metrics.StreamMetrics) *Session {
	return &Session{
		id:      uuid.New(),
		conn:    conn,
		store:   store,
		clock:   clock,
		opts:    opts.withDefaults(),
		metrics: streamMetrics,
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

// Frames returns how many frames the peer has accepted so far.
func (s *Session) Frames() int64 { return s.frames.Load() }

// Run streams until a transmit or serialization failure, or until ctx is
// cancelled. The connection is closed when Run returns. Cancellation (peer
// gone or shutdown) returns nil; failures return an error wrapping
// ErrTransmit or ErrSerialization.
func (s *Session) Run(ctx context.Context) error {
	ctx = correlation.WithID(ctx, correlation.ForSession(s.id))

	s.state.Store(int32(StateStreaming))
	s.metrics.SessionOpened()
	slog.InfoContext(ctx, "Stream session started", "session_id", s.id.String())

	err := s.loop(ctx)
	s.close(ctx, err)

	if errors.Is(err, ErrTransmit) || errors.Is(err, ErrSerialization) {
		return err
	}
	return nil
}

func (s *Session) loop(ctx context.Context) error {
	for {
		cycleStart := s.clock.Now()

		if err := s.tick(); err != nil {
			return err
		}

		if err := s.sleep(ctx, cycleStart); err != nil {
			return err
		}
	}
}

// tick performs one snapshot, encode, send, advance step.
func (s *Session) tick() error {
	data, err := Encode(s.store.Snapshot())
	if err != nil {
		return err
	}

	sendStart := s.clock.Now()
	// I/O deadlines are wall-clock: the transport does not know about s.clock.
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %w", ErrTransmit, err)
	}
	s.metrics.FrameSent(s.clock.Since(sendStart))
	s.frames.Add(1)

	s.store.Advance(s.opts.Step)
	s.metrics.Advanced()
	return nil
}

// sleep waits until the interval has elapsed since cycleStart.
func (s *Session) sleep(ctx context.Context, cycleStart time.Time) error {
	remaining := s.opts.Interval - s.clock.Since(cycleStart)
	if remaining <= 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return nil
	}

	timer := s.clock.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.Chan():
		return nil
	}
}

func (s *Session) close(ctx context.Context, cause error) {
	reason := closeReason(cause)

	if reason == reasonShutdown {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = s.conn.SetWriteDeadline(time.Now().Add(closeFrameTimeout))
		_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
	}
	_ = s.conn.Close()

	s.state.Store(int32(StateClosed))
	s.metrics.SessionClosed(reason)

	attrs := []any{"session_id", s.id.String(), "reason", reason, "frames", s.frames.Load()}
	switch reason {
	case reasonSerialization:
		slog.ErrorContext(ctx, "Stream session failed", append(attrs, "error", cause)...)
	case reasonTransmit:
		slog.InfoContext(ctx, "Stream session closed", append(attrs, "error", cause)...)
	default:
		slog.InfoContext(ctx, "Stream session closed", attrs...)
	}
}

const (
	reasonTransmit      = "transmit"
	reasonSerialization = "serialization"
	reasonPeer          = "peer"
	reasonShutdown      = "shutdown"
)

func closeReason(err error) string {
	switch {
	case errors.Is(err, ErrTransmit):
		return reasonTransmit
	case errors.Is(err, ErrSerialization):
		return reasonSerialization
	case errors.Is(err, ErrPeerClosed):
		return reasonPeer
	default:
		return reasonShutdown
	}
}

// Encode renders a snapshot as one JSON object of name to derived value.
// Non-finite values cannot be represented and yield ErrSerialization.
func Encode(snap domain.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return data, nil
}
