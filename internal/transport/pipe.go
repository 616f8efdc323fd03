// ABOUTME: In-process transport pair connecting two endpoints over channels.
// ABOUTME: Used by tests and loopback tooling; same semantics as the wire.

package transport

import (
	"context"
	"sync"

	"github.com/contextd/agentgate/internal/protocol"
)

// Pipe returns two connected transports: what one side sends, the other
// receives. Closing either end closes both directions.
func Pipe() (Transport, Transport) {
	aToB := make(chan *protocol.Message, 16)
	bToA := make(chan *protocol.Message, 16)
	shared := &pipeShared{done: make(chan struct{})}

	a := &pipeEnd{out: aToB, in: bToA, shared: shared, errs: make(chan error, 1)}
	b := &pipeEnd{out: bToA, in: aToB, shared: shared, errs: make(chan error, 1)}
	shared.ends = [2]*pipeEnd{a, b}
	return a, b
}

type pipeShared struct {
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	ends   [2]*pipeEnd
}

func (s *pipeShared) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	for _, end := range s.ends {
		close(end.out)
	}
}

type pipeEnd struct {
	out    chan *protocol.Message
	in     chan *protocol.Message
	errs   chan error
	shared *pipeShared
}

// Send delivers the message to the peer. The send happens while holding the
// shared lock so the pipe cannot close mid-send.
func (p *pipeEnd) Send(ctx context.Context, msg *protocol.Message) error {
	p.shared.mu.RLock()
	defer p.shared.mu.RUnlock()
	if p.shared.closed {
		return ErrClosed
	}
	select {
	case p.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive() <-chan *protocol.Message {
	return p.in
}

func (p *pipeEnd) Errors() <-chan error {
	return p.errs
}

func (p *pipeEnd) Close() error {
	p.shared.close()
	return nil
}
