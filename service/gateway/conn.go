package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"AmoraGateway/tools/ids"
)

// ConnState tracks a connection through its lifecycle. Transitions only
// move forward.
type ConnState int32

const (
	StateHandshaking ConnState = iota
	StateAdmitted
	StateActive
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateAdmitted:
		return "admitted"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	sendQueueSize = 256
	writeDeadline = 5 * time.Second
)

var errSlowClient = errors.New("send queue full, frame dropped")

// Conn wraps one live socket. The gateway core owns it exclusively for
// its lifetime: one reader (the serve loop) and one writer (writePump).
type Conn struct {
	id          string
	ws          *websocket.Conn
	connectedAt time.Time

	// Identity pair; set once at successful handshake.
	externalID string
	internalID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32

	// Close frame parameters; written before done is closed, read by
	// the writer after it observes done.
	closeCode   int
	closeReason string
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		id:          ids.ConnID(),
		ws:          ws,
		connectedAt: time.Now(),
		send:        make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
	}
	c.state.Store(int32(StateHandshaking))
	return c
}

func (c *Conn) ID() string             { return c.id }
func (c *Conn) ExternalID() string     { return c.externalID }
func (c *Conn) InternalID() string     { return c.internalID }
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

func (c *Conn) State() ConnState { return ConnState(c.state.Load()) }

func (c *Conn) setState(s ConnState) { c.state.Store(int32(s)) }

func (c *Conn) setIdentity(externalID, internalID string) {
	c.externalID = externalID
	c.internalID = internalID
}

// enqueue hands a frame to the writer goroutine without blocking the
// caller. A full queue means the client cannot keep up; the frame is
// dropped rather than stalling event processing for other connections.
func (c *Conn) enqueue(payload []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errSlowClient
	}
}

// writePump drains the send queue. Runs as the connection's only data
// writer, which gives per-socket FIFO delivery by construction. On
// shutdown it flushes frames already queued, then sends the close frame
// and tears down the socket.
func (c *Conn) writePump(log *zap.Logger) {
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			c.flushAndClose(log)
			return
		case payload := <-c.send:
			if err := c.writeFrame(payload); err != nil {
				log.Debug("write failed", zap.String("conn", c.id), zap.Error(err))
				return
			}
		}
	}
}

func (c *Conn) flushAndClose(log *zap.Logger) {
	for {
		select {
		case payload := <-c.send:
			if err := c.writeFrame(payload); err != nil {
				log.Debug("write failed", zap.String("conn", c.id), zap.Error(err))
				return
			}
		default:
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
			return
		}
	}
}

func (c *Conn) writeFrame(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// close stops the connection. Frames enqueued before the call are still
// delivered, followed by a close frame carrying the machine-readable
// reason. Safe to call more than once.
func (c *Conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}
