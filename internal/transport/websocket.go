// ABOUTME: WebSocket transport over gorilla/websocket with read and write pumps.
// ABOUTME: Serializes writes through one goroutine as the library requires.

package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"

	"github.com/contextd/agentgate/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	maxMessageSize = 1 << 20
)

// WebSocket adapts a *websocket.Conn to the Transport interface.
type WebSocket struct {
	conn *websocket.Conn

	out  chan *protocol.Message
	in   chan *protocol.Message
	errs chan error

	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocket wraps an established WebSocket connection and starts its
// read and write pumps.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	ws := &WebSocket{
		conn: conn,
		out:  make(chan *protocol.Message, 16),
		in:   make(chan *protocol.Message, 16),
		errs: make(chan error, 4),
		done: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	go ws.readPump()
	go ws.writePump()
	return ws
}

// Dial connects to a gateway WebSocket endpoint as an agent client.
func Dial(ctx context.Context, url string, header http.Header) (*WebSocket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dialing %s (status %d)", url, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dialing %s", url)
	}
	return NewWebSocket(conn), nil
}

// Send queues a message for the write pump.
func (ws *WebSocket) Send(ctx context.Context, msg *protocol.Message) error {
	select {
	case ws.out <- msg:
		return nil
	case <-ws.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the inbound message channel.
func (ws *WebSocket) Receive() <-chan *protocol.Message {
	return ws.in
}

// Errors returns the channel carrying transport-level failures.
func (ws *WebSocket) Errors() <-chan error {
	return ws.errs
}

// Close shuts the connection down. Safe to call multiple times.
func (ws *WebSocket) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.done)
		deadline := time.Now().Add(writeWait)
		_ = ws.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = ws.conn.Close()
	})
	return nil
}

func (ws *WebSocket) readPump() {
	defer close(ws.in)
	_ = ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg protocol.Message
		if err := ws.conn.ReadJSON(&msg); err != nil {
			select {
			case <-ws.done:
				// Expected close, not a failure.
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					ws.reportError(errors.Wrap(err, "reading from websocket"))
				}
				_ = ws.Close()
			}
			return
		}
		// Any inbound traffic counts as liveness.
		_ = ws.conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case ws.in <- &msg:
		case <-ws.done:
			return
		}
	}
}

func (ws *WebSocket) writePump() {
	for {
		select {
		case msg := <-ws.out:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.conn.WriteJSON(msg); err != nil {
				ws.reportError(errors.Wrap(err, "writing to websocket"))
				_ = ws.Close()
				return
			}
		case <-ws.done:
			return
		}
	}
}

func (ws *WebSocket) reportError(err error) {
	select {
	case ws.errs <- err:
	default:
	}
}
