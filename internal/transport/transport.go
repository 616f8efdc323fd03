// ABOUTME: Bidirectional message channel abstraction for agent connections.
// ABOUTME: Real wire is WebSocket; the pipe variant backs tests and local tooling.

package transport

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/contextd/agentgate/internal/protocol"
)

// ErrClosed indicates the transport has been closed.
var ErrClosed = errors.New("transport closed")

// Transport is one duplex message channel to an agent. Receive's channel is
// closed when the peer goes away or Close is called; channel-level failures
// are delivered on Errors before the close.
type Transport interface {
	Send(ctx context.Context, msg *protocol.Message) error
	Receive() <-chan *protocol.Message
	Errors() <-chan error
	Close() error
}
