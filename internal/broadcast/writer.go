package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/sinecast/internal/adapter/metrics"
	"github.com/pscheid92/sinecast/internal/stream"
)

const (
	writeDeadline     = 5 * time.Second
	closeDeadline     = time.Second
	messageBufferSize = 16
)

// clientWriter owns all writes to one listener connection.
type clientWriter struct {
	connection  stream.Conn
	metrics     *metrics.StreamMetrics
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	writeFailed atomic.Bool
}

func newClientWriter(connection stream.Conn, streamMetrics *metrics.StreamMetrics) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		metrics:     streamMetrics,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			// Deadlines are wall-clock: they are enforced by the network stack.
			start := time.Now()
			_ = cw.connection.SetWriteDeadline(start.Add(writeDeadline))
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.writeFailed.Store(true)
				return
			}
			cw.metrics.FrameSent(time.Since(start))
		case <-cw.doneChannel:
			return
		}
	}
}

// failed reports whether the last write to the peer failed.
func (cw *clientWriter) failed() bool {
	return cw.writeFailed.Load()
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a WebSocket close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)

		// run must have exited before the close frame is written.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
		_ = cw.connection.SetWriteDeadline(time.Now().Add(closeDeadline))
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
}
