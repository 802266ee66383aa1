package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/sinecast/internal/adapter/metrics"
	"github.com/pscheid92/sinecast/internal/domain"
	"github.com/pscheid92/sinecast/internal/stream"
)

const (
	commandTimeout    = 5 * time.Second
	stopTimeout       = 10 * time.Second
	commandBufferSize = 256
)

var ErrStopped = errors.New("broadcaster stopped")

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	id           uuid.UUID
	connection   stream.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	id uuid.UUID
}

type clientCountCmd struct {
	baseBroadcasterCmd
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// tickSource is the part of the series store a tick needs.
type tickSource interface {
	domain.SnapshotSource
	domain.Advancer
}

// Broadcaster advances the series store on a fixed tick and pushes every
// snapshot to all registered listeners.
type Broadcaster struct {
	cmdCh       chan broadcasterCmd
	clock       clockwork.Clock
	store       tickSource
	clients     map[uuid.UUID]*clientWriter
	interval    time.Duration
	step        float64
	metrics     *metrics.StreamMetrics
	done        chan struct{}
	stopTimeout time.Duration
}

// NewBroadcaster creates and starts a broadcaster. streamMetrics may be nil.
func NewBroadcaster(store tickSource, clock clockwork.Clock, interval time.Duration, step float64, streamMetrics *metrics.StreamMetrics) *Broadcaster {
	b := &Broadcaster{
		cmdCh:       make(chan broadcasterCmd, commandBufferSize),
		clock:       clock,
		store:       store,
		clients:     make(map[uuid.UUID]*clientWriter),
		interval:    interval,
		step:        step,
		metrics:     streamMetrics,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go b.run()
	return b
}

// Register adds a listener and returns its ID.
func (b *Broadcaster) Register(conn stream.Conn) (uuid.UUID, error) {
	id := uuid.New()
	errCh := make(chan error, 1)
	if err := b.send(registerCmd{id: id, connection: conn, errorChannel: errCh}); err != nil {
		return uuid.Nil, err
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return id, err
	case <-b.done:
		return uuid.Nil, ErrStopped
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a listener and closes its connection. Unknown IDs are ignored.
func (b *Broadcaster) Unregister(id uuid.UUID) {
	_ = b.send(unregisterCmd{id: id})
}

// ClientCount returns the number of registered listeners, or -1 on timeout.
func (b *Broadcaster) ClientCount() int {
	replyCh := make(chan int, 1)
	if err := b.send(clientCountCmd{replyChannel: replyCh}); err != nil {
		return 0
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-b.done:
		return 0
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every listener with a close frame and stops the tick loop.
// Blocks until the loop has exited or the stop timeout is reached.
func (b *Broadcaster) Stop() {
	if err := b.send(stopCmd{}); err != nil {
		return
	}

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.stopTimeout)
	}
}

// Done is closed once the tick loop has exited.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

func (b *Broadcaster) send(cmd broadcasterCmd) error {
	select {
	case <-b.done:
		return ErrStopped
	default:
	}

	select {
	case b.cmdCh <- cmd:
		return nil
	case <-b.done:
		return ErrStopped
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			b.closeAllClients("broadcaster failure")
		}
	}()

	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-b.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				b.handleRegister(c)
			case unregisterCmd:
				b.handleUnregister(c.id)
			case clientCountCmd:
				c.replyChannel <- len(b.clients)
			case stopCmd:
				b.handleStop()
				return
			default:
				slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-ticker.Chan():
			b.handleTick()
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	b.clients[c.id] = newClientWriter(c.connection, b.metrics)
	b.metrics.SessionOpened()

	slog.Debug("Listener registered", "listener_id", c.id.String(), "total_listeners", len(b.clients))
	c.errorChannel <- nil
}

func (b *Broadcaster) handleUnregister(id uuid.UUID) {
	b.removeClient(id, "peer")
}

func (b *Broadcaster) removeClient(id uuid.UUID, reason string) {
	cw, exists := b.clients[id]
	if !exists {
		return
	}

	cw.stop()
	delete(b.clients, id)
	b.metrics.SessionClosed(reason)

	slog.Debug("Listener unregistered", "listener_id", id.String(), "reason", reason, "remaining_listeners", len(b.clients))
}

// handleTick snapshots, fans out, then advances. The store advances on every
// tick whether or not anyone is listening.
func (b *Broadcaster) handleTick() {
	tickStart := b.clock.Now()
	defer func() { b.metrics.Tick(b.clock.Since(tickStart)) }()

	if len(b.clients) > 0 {
		b.fanOut()
	}

	b.store.Advance(b.step)
	b.metrics.Advanced()
}

func (b *Broadcaster) fanOut() {
	data, err := stream.Encode(b.store.Snapshot())
	if err != nil {
		// Every listener would receive the same unencodable frame.
		slog.Error("Failed to encode snapshot, disconnecting listeners", "error", err, "listeners", len(b.clients))
		for id := range b.clients {
			b.removeClient(id, "serialization")
		}
		return
	}

	var slow []uuid.UUID
	for id, writer := range b.clients {
		if writer.failed() {
			slow = append(slow, id)
			continue
		}
		select {
		case writer.sendChannel <- data:
		default:
			slog.Warn("Disconnecting slow listener", "listener_id", id.String())
			b.metrics.SlowClientEvicted()
			slow = append(slow, id)
		}
	}

	for _, id := range slow {
		b.removeClient(id, "transmit")
	}
}

func (b *Broadcaster) handleStop() {
	total := len(b.clients)
	slog.Info("Broadcaster shutting down", "listeners", total)
	b.closeAllClients(stream.ErrShutdown.Error())
	slog.Info("Broadcaster shutdown complete", "disconnected_listeners", total)
}

// closeAllClients sends a close frame with reason to every listener and drops them.
func (b *Broadcaster) closeAllClients(reason string) {
	for id, cw := range b.clients {
		cw.stopGraceful(reason)
		delete(b.clients, id)
		b.metrics.SessionClosed("shutdown")
	}
}
