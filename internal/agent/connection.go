// ABOUTME: One agent session: handshake, heartbeat, dispatch, and teardown.
// ABOUTME: Lifecycle is driven by an explicit state machine with cancellable timers.

package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/contextd/agentgate/internal/adapter"
	"github.com/contextd/agentgate/internal/auth"
	"github.com/contextd/agentgate/internal/events"
	"github.com/contextd/agentgate/internal/protocol"
	"github.com/contextd/agentgate/internal/rules"
	"github.com/contextd/agentgate/internal/transport"
)

// Connection states.
const (
	StateDisconnected   = "disconnected"
	StateConnecting     = "connecting"
	StateAuthenticating = "authenticating"
	StateAuthenticated  = "authenticated"
	StateConnected      = "connected"
	StateError          = "error"
	StateTimeout        = "timeout"
)

// State machine events.
const (
	eventConnect      = "connect"
	eventAuthenticate = "authenticate"
	eventAuthOK       = "auth_ok"
	eventHandshake    = "handshake"
	eventInitializeOK = "initialize_ok"
	eventFail         = "fail"
	eventTimeout      = "timeout"
	eventDisconnect   = "disconnect"
)

// ErrHandshakeTimeout indicates initialize was not acknowledged in time.
var ErrHandshakeTimeout = errors.New("handshake timeout")

// ErrNotConnected indicates an operation that requires an established session.
var ErrNotConnected = errors.New("connection not established")

// Config carries the per-connection timing knobs.
type Config struct {
	HandshakeTimeout  time.Duration
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the stock timing values.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// ConnectionParams bundles the dependencies for NewConnection.
type ConnectionParams struct {
	AgentID      string
	AgentType    string
	Transport    transport.Transport
	Engine       *rules.Engine
	Adapter      adapter.Adapter
	Bus          *events.Bus
	Verifier     auth.TokenVerifier // required only for credentialed agent types
	Credentialed bool
	Config       Config
	Logger       *slog.Logger

	// Registry reconciliation callbacks, invoked synchronously.
	OnClosed func(*Connection)
	OnError  func(*Connection, error)
}

// Connection is one agent session. It owns its protocol handler, handshake
// and heartbeat timers, and per-session metrics; every exit path cancels
// both timers.
type Connection struct {
	ID        string
	AgentID   string
	AgentType string
	CreatedAt time.Time

	machine   *fsm.FSM
	transport transport.Transport
	engine    *rules.Engine
	adapter   adapter.Adapter
	handler   *protocol.Handler
	bus       *events.Bus
	verifier  auth.TokenVerifier
	logger    *slog.Logger
	cfg       Config
	metrics   *Metrics

	credentialed bool
	onClosed     func(*Connection)
	onError      func(*Connection, error)

	mu            sync.Mutex
	caps          protocol.Capabilities
	remote        protocol.Implementation
	lastActivity  time.Time
	pending       map[string]chan *protocol.Message
	subscriptions map[string]bool
	handshakeTmr  *time.Timer
	heartbeatStop chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection creates a connection in the disconnected state. Connect
// must be called to start the handshake.
func NewConnection(params ConnectionParams) *Connection {
	c := &Connection{
		ID:            uuid.New().String(),
		AgentID:       params.AgentID,
		AgentType:     params.AgentType,
		CreatedAt:     time.Now(),
		transport:     params.Transport,
		engine:        params.Engine,
		adapter:       params.Adapter,
		bus:           params.Bus,
		verifier:      params.Verifier,
		credentialed:  params.Credentialed,
		cfg:           params.Config,
		metrics:       &Metrics{},
		onClosed:      params.OnClosed,
		onError:       params.OnError,
		pending:       make(map[string]chan *protocol.Message),
		subscriptions: make(map[string]bool),
		closed:        make(chan struct{}),
	}
	c.logger = params.Logger.With("connection_id", c.ID, "agent_type", c.AgentType)

	if c.cfg.HandshakeTimeout <= 0 {
		c.cfg.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}
	if c.cfg.HeartbeatInterval <= 0 {
		c.cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}

	c.machine = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventConnect, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: eventAuthenticate, Src: []string{StateDisconnected}, Dst: StateAuthenticating},
			{Name: eventAuthOK, Src: []string{StateAuthenticating}, Dst: StateAuthenticated},
			{Name: eventHandshake, Src: []string{StateAuthenticated}, Dst: StateConnecting},
			{Name: eventInitializeOK, Src: []string{StateConnecting}, Dst: StateConnected},
			{Name: eventFail, Src: []string{StateAuthenticating, StateAuthenticated, StateConnecting, StateConnected}, Dst: StateError},
			{Name: eventTimeout, Src: []string{StateConnecting}, Dst: StateTimeout},
			{Name: eventDisconnect, Src: []string{
				StateConnecting, StateAuthenticating, StateAuthenticated,
				StateConnected, StateError, StateTimeout,
			}, Dst: StateDisconnected},
		},
		fsm.Callbacks{},
	)

	c.handler = protocol.NewHandler(c.logger)
	c.handler.Register(protocol.MethodInitialize, c.handleInitialize)
	c.handler.Register(protocol.MethodResourcesList, c.handleListResources)
	c.handler.Register(protocol.MethodResourcesRead, c.handleReadResource)
	c.handler.Register(protocol.MethodResourcesSubscribe, c.handleSubscribe)
	c.handler.Register(protocol.MethodToolsList, c.handleListTools)
	c.handler.Register(protocol.MethodToolsCall, c.handleCallTool)

	return c
}

// State returns the current lifecycle state.
func (c *Connection) State() string {
	return c.machine.Current()
}

// transition fires a state machine event. All transitions go through here:
// the fsm is not safe for concurrent Event calls, and timer/channel
// bookkeeping must stay consistent with the state it was created in.
func (c *Connection) transition(event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Event(context.Background(), event)
}

// Metrics returns the per-connection counters.
func (c *Connection) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// Capabilities returns the capabilities negotiated during the handshake.
func (c *Connection) Capabilities() protocol.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// LastActivity returns the time of the most recent message in either direction.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Connect drives the connection through authentication (when the agent type
// is credentialed) and starts the initialize handshake. It returns once the
// initialize request is on the wire; the transition to connected happens
// when the response arrives, or the handshake timer fires first.
func (c *Connection) Connect(ctx context.Context, token string) error {
	if c.credentialed {
		if err := c.transition(eventAuthenticate); err != nil {
			return errors.Wrap(err, "starting authentication")
		}
		if c.verifier == nil {
			err := errors.New("credentialed agent type without a token verifier")
			c.fail(err)
			return err
		}
		if _, err := c.verifier.Verify(token); err != nil {
			c.fail(err)
			return errors.Wrap(err, "verifying agent token")
		}
		_ = c.transition(eventAuthOK)
		_ = c.transition(eventHandshake)
	} else {
		if err := c.transition(eventConnect); err != nil {
			return errors.Wrap(err, "starting connection")
		}
	}

	c.mu.Lock()
	c.lastActivity = time.Now()
	c.handshakeTmr = time.AfterFunc(c.cfg.HandshakeTimeout, c.handshakeTimedOut)
	c.mu.Unlock()

	go c.readLoop()

	params := protocol.InitializeParams{
		ProtocolVersion: protocol.Version,
		Capabilities:    protocol.DefaultCapabilities(),
		ClientInfo:      protocol.Implementation{Name: "agentgate", Version: protocol.Version},
	}
	respCh, err := c.sendRequest(ctx, protocol.MethodInitialize, params)
	if err != nil {
		c.fail(err)
		c.Disconnect()
		return errors.Wrap(err, "sending initialize")
	}
	go c.awaitHandshake(respCh)

	c.logger.Info("handshake started", "agent_id", c.AgentID)
	return nil
}

// sendRequest sends a request and registers a pending response channel.
func (c *Connection) sendRequest(ctx context.Context, method string, params any) (<-chan *protocol.Message, error) {
	id := uuid.New().String()
	msg, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	ch := make(chan *protocol.Message, 1)
	c.mu.Lock()
	c.pending[msg.IDString()] = ch
	c.mu.Unlock()

	if err := c.transport.Send(ctx, msg); err != nil {
		c.mu.Lock()
		delete(c.pending, msg.IDString())
		c.mu.Unlock()
		return nil, err
	}
	c.metrics.MessagesOut.Add(1)
	return ch, nil
}

func (c *Connection) awaitHandshake(respCh <-chan *protocol.Message) {
	resp, ok := <-respCh
	if !ok {
		return // torn down before the response arrived
	}
	if resp.Error != nil {
		c.fail(resp.Error)
		c.Disconnect()
		return
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		c.fail(errors.Wrap(err, "decoding initialize result"))
		c.Disconnect()
		return
	}

	c.mu.Lock()
	if c.handshakeTmr != nil {
		c.handshakeTmr.Stop()
		c.handshakeTmr = nil
	}
	c.caps = result.Capabilities
	c.remote = result.ServerInfo
	c.lastActivity = time.Now()
	if err := c.machine.Event(context.Background(), eventInitializeOK); err != nil {
		// Torn down or timed out while the response was in flight. The
		// heartbeat channel is created only after the transition sticks,
		// so Disconnect alone owns closing it.
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	go c.heartbeatLoop(stop)

	c.logger.Info("connection established",
		"agent_id", c.AgentID,
		"remote", result.ServerInfo.Name,
		"protocol_version", result.ProtocolVersion,
	)
	c.publish(events.Event{Kind: events.KindConnectionEstablished})
}

func (c *Connection) handshakeTimedOut() {
	if err := c.transition(eventTimeout); err != nil {
		return // already past connecting
	}
	c.logger.Warn("handshake timed out", "agent_id", c.AgentID, "timeout", c.cfg.HandshakeTimeout)
	c.metrics.Errors.Add(1)
	c.publish(events.Event{Kind: events.KindConnectionError, Err: ErrHandshakeTimeout})
	if c.onError != nil {
		c.onError(c, ErrHandshakeTimeout)
	}
	c.Disconnect()
}

// heartbeatLoop sends a recurring liveness notification. No acknowledgment
// is expected.
func (c *Connection) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			msg, err := protocol.NewNotification(protocol.MethodHeartbeat, protocol.HeartbeatParams{
				ConnectionID: c.ID,
				Timestamp:    time.Now().Unix(),
			})
			if err != nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = c.transport.Send(ctx, msg)
			cancel()
			if err != nil {
				c.logger.Warn("heartbeat send failed", "error", err)
				return
			}
			c.metrics.MessagesOut.Add(1)
		case <-stop:
			return
		}
	}
}

func (c *Connection) readLoop() {
	for {
		select {
		case msg, ok := <-c.transport.Receive():
			if !ok {
				c.Disconnect()
				return
			}
			c.handleMessage(msg)
		case err := <-c.transport.Errors():
			c.transportFailed(err)
			return
		case <-c.closed:
			return
		}
	}
}

func (c *Connection) handleMessage(msg *protocol.Message) {
	c.metrics.MessagesIn.Add(1)
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	if msg.IsResponse() {
		c.routeResponse(msg)
		return
	}

	c.publish(events.Event{Kind: events.KindConnectionMessage, Method: msg.Method})

	resp := c.handler.Dispatch(context.Background(), msg)
	if resp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.transport.Send(ctx, resp); err != nil {
		c.logger.Warn("sending response failed", "method", msg.Method, "error", err)
		return
	}
	c.metrics.MessagesOut.Add(1)
}

// routeResponse delivers a response to the matching pending request.
// Responses for unknown requests are logged and discarded.
func (c *Connection) routeResponse(msg *protocol.Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.IDString()]
	if ok {
		delete(c.pending, msg.IDString())
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("received response for unknown request", "request_id", msg.IDString())
		return
	}
	ch <- msg
	close(ch)
}

func (c *Connection) transportFailed(err error) {
	c.metrics.Errors.Add(1)
	if fsmErr := c.transition(eventFail); fsmErr != nil {
		c.Disconnect()
		return
	}
	c.logger.Error("transport error", "agent_id", c.AgentID, "error", err)
	c.publish(events.Event{Kind: events.KindConnectionError, Err: err})
	if c.onError != nil {
		c.onError(c, err)
	}
	c.Disconnect()
}

func (c *Connection) fail(err error) {
	c.metrics.Errors.Add(1)
	if fsmErr := c.transition(eventFail); fsmErr != nil {
		return
	}
	c.logger.Error("connection failed", "agent_id", c.AgentID, "error", err)
	c.publish(events.Event{Kind: events.KindConnectionError, Err: err})
	if c.onError != nil {
		c.onError(c, err)
	}
}

// Disconnect tears the connection down: cancels both timers, closes the
// transport, fails any pending requests, and emits exactly one close event.
// Safe to call from any state and any number of times.
func (c *Connection) Disconnect() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.handshakeTmr != nil {
			c.handshakeTmr.Stop()
			c.handshakeTmr = nil
		}
		if c.heartbeatStop != nil {
			close(c.heartbeatStop)
			c.heartbeatStop = nil
		}
		pending := c.pending
		c.pending = make(map[string]chan *protocol.Message)
		_ = c.machine.Event(context.Background(), eventDisconnect)
		c.mu.Unlock()

		for _, ch := range pending {
			close(ch)
		}

		close(c.closed)
		_ = c.transport.Close()

		c.logger.Info("connection closed", "agent_id", c.AgentID)
		c.publish(events.Event{Kind: events.KindConnectionClosed})
		if c.onClosed != nil {
			c.onClosed(c)
		}
	})
}

func (c *Connection) publish(ev events.Event) {
	ev.ConnectionID = c.ID
	ev.AgentID = c.AgentID
	ev.AgentType = c.AgentType
	c.bus.Publish(ev)
}
