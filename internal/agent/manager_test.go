// ABOUTME: Tests for the connection manager: admission, handshake, teardown.
// ABOUTME: Uses in-process pipe transports with a scripted agent on the far end.

package agent

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextd/agentgate/internal/adapter"
	"github.com/contextd/agentgate/internal/auth"
	"github.com/contextd/agentgate/internal/events"
	"github.com/contextd/agentgate/internal/protocol"
	"github.com/contextd/agentgate/internal/rules"
	"github.com/contextd/agentgate/internal/transport"
)

type fixture struct {
	manager *Manager
	bus     *events.Bus
}

func newFixture(t *testing.T, opts ...func(*ManagerParams)) *fixture {
	t.Helper()
	engine, err := rules.NewEngine(rules.Default(), slog.Default())
	require.NoError(t, err)
	bus := events.NewBus(slog.Default())

	params := ManagerParams{
		Engine:  engine,
		Factory: adapter.NewFactory(slog.Default()),
		Bus:     bus,
		ConnConfig: Config{
			HandshakeTimeout:  2 * time.Second,
			HeartbeatInterval: time.Hour,
		},
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&params)
	}
	return &fixture{manager: NewManager(params), bus: bus}
}

// scriptedAgent answers the initialize handshake on the far end of a pipe,
// then stops reading so tests can consume subsequent traffic themselves.
func scriptedAgent(t *testing.T, tr transport.Transport) {
	t.Helper()
	go func() {
		for msg := range tr.Receive() {
			if msg.IsRequest() && msg.Method == protocol.MethodInitialize {
				resp, err := protocol.NewResponse(msg.ID, protocol.InitializeResult{
					ProtocolVersion: protocol.Version,
					Capabilities:    protocol.DefaultCapabilities(),
					ServerInfo:      protocol.Implementation{Name: "scripted-agent", Version: "test"},
				})
				if err != nil {
					return
				}
				_ = tr.Send(context.Background(), resp)
				return
			}
		}
	}()
}

func waitEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestCreateConnection_Handshake(t *testing.T) {
	f := newFixture(t)
	established, cancel := f.bus.Subscribe(events.KindConnectionEstablished)
	defer cancel()

	gwEnd, agentEnd := transport.Pipe()
	scriptedAgent(t, agentEnd)

	conn, err := f.manager.CreateConnection(context.Background(), "agent-1", "cline", "", gwEnd)
	require.NoError(t, err)

	ev := waitEvent(t, established)
	assert.Equal(t, conn.ID, ev.ConnectionID)
	assert.Equal(t, StateConnected, conn.State())
	assert.Equal(t, 1, f.manager.ActiveCount())

	caps := conn.Capabilities()
	require.NotNil(t, caps.Resources)
	assert.True(t, caps.Resources.Subscribe)

	conn.Disconnect()
}

func TestCreateConnection_CapDenied(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		gwEnd, agentEnd := transport.Pipe()
		scriptedAgent(t, agentEnd)
		_, err := f.manager.CreateConnection(context.Background(), "agent", "cline", "", gwEnd)
		require.NoError(t, err, "connection %d should be admitted", i+1)
	}

	gwEnd, _ := transport.Pipe()
	_, err := f.manager.CreateConnection(context.Background(), "agent", "cline", "", gwEnd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rules.ErrConnectionDenied))
	assert.Equal(t, 3, f.manager.ActiveCount())

	f.manager.DisconnectAll()
}

func TestCreateConnection_SlotFreedAfterDisconnect(t *testing.T) {
	f := newFixture(t)

	conns := make([]*Connection, 0, 3)
	for i := 0; i < 3; i++ {
		gwEnd, agentEnd := transport.Pipe()
		scriptedAgent(t, agentEnd)
		conn, err := f.manager.CreateConnection(context.Background(), "agent", "cline", "", gwEnd)
		require.NoError(t, err)
		conns = append(conns, conn)
	}

	conns[0].Disconnect()

	gwEnd, agentEnd := transport.Pipe()
	scriptedAgent(t, agentEnd)
	_, err := f.manager.CreateConnection(context.Background(), "agent", "cline", "", gwEnd)
	assert.NoError(t, err, "freed slot should be reusable")

	f.manager.DisconnectAll()
}

func TestConnection_HandshakeTimeout(t *testing.T) {
	f := newFixture(t, func(p *ManagerParams) {
		p.ConnConfig.HandshakeTimeout = 50 * time.Millisecond
	})
	errCh, cancel := f.bus.Subscribe(events.KindConnectionError)
	defer cancel()
	closedCh, cancelClosed := f.bus.Subscribe(events.KindConnectionClosed)
	defer cancelClosed()

	gwEnd, _ := transport.Pipe()
	// No scripted agent: initialize is never answered.
	conn, err := f.manager.CreateConnection(context.Background(), "agent-1", "cline", "", gwEnd)
	require.NoError(t, err)

	ev := waitEvent(t, errCh)
	assert.True(t, errors.Is(ev.Err, ErrHandshakeTimeout))

	waitEvent(t, closedCh)
	_, found := f.manager.GetConnection(conn.ID)
	assert.False(t, found, "timed-out connection must leave the registry")
	assert.Equal(t, 0, f.manager.ActiveCount())
}

func TestConnection_DisconnectIdempotent(t *testing.T) {
	f := newFixture(t)
	closedCh, cancel := f.bus.Subscribe(events.KindConnectionClosed)
	defer cancel()

	gwEnd, agentEnd := transport.Pipe()
	scriptedAgent(t, agentEnd)
	conn, err := f.manager.CreateConnection(context.Background(), "agent-1", "cline", "", gwEnd)
	require.NoError(t, err)

	conn.Disconnect()
	conn.Disconnect()
	conn.Disconnect()

	waitEvent(t, closedCh)
	select {
	case <-closedCh:
		t.Fatal("disconnect published more than one close event")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestCreateConnection_CredentialedTypes(t *testing.T) {
	verifier := auth.NewJWTVerifier([]byte("test-signing-secret"))
	f := newFixture(t, func(p *ManagerParams) {
		p.Verifier = verifier
		p.CredentialedTypes = []string{"github-copilot"}
	})

	t.Run("rejects a bad token", func(t *testing.T) {
		gwEnd, _ := transport.Pipe()
		_, err := f.manager.CreateConnection(context.Background(), "agent-1", "github-copilot", "not-a-jwt", gwEnd)
		require.Error(t, err)
		assert.Equal(t, 0, f.manager.ActiveCount())
	})

	t.Run("accepts a valid token", func(t *testing.T) {
		token, err := verifier.Generate("agent-1", time.Hour)
		require.NoError(t, err)

		gwEnd, agentEnd := transport.Pipe()
		scriptedAgent(t, agentEnd)
		conn, err := f.manager.CreateConnection(context.Background(), "agent-1", "github-copilot", token, gwEnd)
		require.NoError(t, err)
		defer conn.Disconnect()
		assert.Equal(t, 1, f.manager.ActiveCount())
	})

	t.Run("uncredentialed type ignores the token", func(t *testing.T) {
		gwEnd, agentEnd := transport.Pipe()
		scriptedAgent(t, agentEnd)
		conn, err := f.manager.CreateConnection(context.Background(), "agent-2", "cline", "", gwEnd)
		require.NoError(t, err)
		defer conn.Disconnect()
	})
}

func TestGetByAgentType(t *testing.T) {
	f := newFixture(t)

	gwEnd, agentEnd := transport.Pipe()
	scriptedAgent(t, agentEnd)
	conn, err := f.manager.CreateConnection(context.Background(), "agent-1", "cline", "", gwEnd)
	require.NoError(t, err)
	defer conn.Disconnect()

	assert.Len(t, f.manager.GetByAgentType("cline"), 1)
	assert.Empty(t, f.manager.GetByAgentType("amazon-q"))
	assert.Len(t, f.manager.GetAllConnections(), 1)
}

func TestGetHealthStatus(t *testing.T) {
	f := newFixture(t)
	established, cancel := f.bus.Subscribe(events.KindConnectionEstablished)
	defer cancel()

	gwEnd, agentEnd := transport.Pipe()
	scriptedAgent(t, agentEnd)
	conn, err := f.manager.CreateConnection(context.Background(), "agent-1", "cline", "", gwEnd)
	require.NoError(t, err)
	defer conn.Disconnect()
	waitEvent(t, established)

	status := f.manager.GetHealthStatus()
	assert.Equal(t, 1, status.TotalConnections)
	assert.Equal(t, 1, status.HealthyConnections)
	assert.Equal(t, 0, status.UnhealthyConns)
	assert.Equal(t, 1, status.ByAgentType["cline"])
	assert.Equal(t, int64(1), status.TotalCreated)
}
