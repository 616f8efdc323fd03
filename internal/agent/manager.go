// ABOUTME: Registry of all agent connections, keyed by id and by agent type.
// ABOUTME: Runs admission control before creating a connection and reconciles on close.

package agent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/contextd/agentgate/internal/adapter"
	"github.com/contextd/agentgate/internal/auth"
	"github.com/contextd/agentgate/internal/events"
	"github.com/contextd/agentgate/internal/rules"
	"github.com/contextd/agentgate/internal/transport"
)

// ManagerParams bundles the dependencies for NewManager.
type ManagerParams struct {
	Engine            *rules.Engine
	Factory           *adapter.Factory
	Bus               *events.Bus
	Verifier          auth.TokenVerifier
	CredentialedTypes []string
	ConnConfig        Config
	Logger            *slog.Logger
}

// Manager coordinates all agent connections. Both indexes are mutated
// together under one mutex: a connection in the id index is always in
// exactly one agent-type bucket and vice versa.
type Manager struct {
	mu     sync.RWMutex
	byID   map[string]*Connection
	byType map[string]map[string]*Connection

	engine       *rules.Engine
	factory      *adapter.Factory
	bus          *events.Bus
	verifier     auth.TokenVerifier
	credentialed map[string]bool
	connCfg      Config
	logger       *slog.Logger

	totalCreated atomic.Int64
	totalErrors  atomic.Int64
}

// NewManager creates an empty connection registry.
func NewManager(params ManagerParams) *Manager {
	credentialed := make(map[string]bool, len(params.CredentialedTypes))
	for _, t := range params.CredentialedTypes {
		credentialed[t] = true
	}
	return &Manager{
		byID:         make(map[string]*Connection),
		byType:       make(map[string]map[string]*Connection),
		engine:       params.Engine,
		factory:      params.Factory,
		bus:          params.Bus,
		verifier:     params.Verifier,
		credentialed: credentialed,
		connCfg:      params.ConnConfig,
		logger:       params.Logger,
	}
}

// CreateConnection admits, registers, and starts a new agent session.
// Admission runs before any connection object exists: when the per-type
// cap is reached the call fails with ErrConnectionDenied and nothing is
// created or registered.
func (m *Manager) CreateConnection(ctx context.Context, agentID, agentType, token string, tr transport.Transport) (*Connection, error) {
	m.mu.Lock()

	count := len(m.byType[agentType])
	decision := m.engine.Apply(rules.Action{
		Type:            rules.ActionConnect,
		AgentType:       agentType,
		ConnectionCount: count,
	}, rules.EvalContext{})
	if !decision.Allowed {
		m.mu.Unlock()
		metricConnectionsDenied.WithLabelValues(agentType).Inc()
		m.logger.Warn("connection denied",
			"agent_id", agentID,
			"agent_type", agentType,
			"live_connections", count,
			"reason", decision.Message,
		)
		return nil, decision.Err()
	}

	ad, err := m.factory.ForAgentType(agentType)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	conn := NewConnection(ConnectionParams{
		AgentID:      agentID,
		AgentType:    agentType,
		Transport:    tr,
		Engine:       m.engine,
		Adapter:      ad,
		Bus:          m.bus,
		Verifier:     m.verifier,
		Credentialed: m.credentialed[agentType],
		Config:       m.connCfg,
		Logger:       m.logger,
		OnClosed:     m.handleClosed,
		OnError:      m.handleError,
	})

	m.byID[conn.ID] = conn
	bucket, ok := m.byType[agentType]
	if !ok {
		bucket = make(map[string]*Connection)
		m.byType[agentType] = bucket
	}
	bucket[conn.ID] = conn
	m.mu.Unlock()

	m.totalCreated.Add(1)
	metricConnectionsTotal.WithLabelValues(agentType).Inc()
	metricConnectionsActive.Inc()
	m.bus.Publish(events.Event{
		Kind:         events.KindConnectionCreated,
		ConnectionID: conn.ID,
		AgentID:      agentID,
		AgentType:    agentType,
	})

	if err := conn.Connect(ctx, token); err != nil {
		conn.Disconnect()
		return nil, err
	}

	m.logger.Info("=== AGENT CONNECTING ===",
		"connection_id", conn.ID,
		"agent_id", agentID,
		"agent_type", agentType,
		"total_connections", m.ActiveCount(),
	)
	return conn, nil
}

// handleClosed removes the connection from both indexes, deleting the
// agent-type bucket when it empties.
func (m *Manager) handleClosed(c *Connection) {
	m.mu.Lock()
	_, present := m.byID[c.ID]
	if present {
		delete(m.byID, c.ID)
		if bucket, ok := m.byType[c.AgentType]; ok {
			delete(bucket, c.ID)
			if len(bucket) == 0 {
				delete(m.byType, c.AgentType)
			}
		}
	}
	m.mu.Unlock()

	if present {
		metricConnectionsActive.Dec()
		m.logger.Info("=== AGENT DISCONNECTED ===",
			"connection_id", c.ID,
			"agent_id", c.AgentID,
			"total_connections", m.ActiveCount(),
		)
	}
}

// handleError records the error without removing the connection. Removal
// happens on the subsequent close event; errors and closes are distinct.
func (m *Manager) handleError(c *Connection, err error) {
	m.totalErrors.Add(1)
	metricConnectionErrors.WithLabelValues(c.AgentType).Inc()
}

// GetConnection retrieves a connection by id.
func (m *Manager) GetConnection(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.byID[id]
	return conn, ok
}

// GetAllConnections returns every registered connection.
func (m *Manager) GetAllConnections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := make([]*Connection, 0, len(m.byID))
	for _, conn := range m.byID {
		conns = append(conns, conn)
	}
	return conns
}

// GetByAgentType returns the live connections for one agent type.
func (m *Manager) GetByAgentType(agentType string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket := m.byType[agentType]
	conns := make([]*Connection, 0, len(bucket))
	for _, conn := range bucket {
		conns = append(conns, conn)
	}
	return conns
}

// ActiveCount returns the number of registered connections.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// HealthStatus aggregates connection health counts.
type HealthStatus struct {
	TotalConnections   int            `json:"total_connections"`
	HealthyConnections int            `json:"healthy_connections"`
	UnhealthyConns     int            `json:"unhealthy_connections"`
	ByAgentType        map[string]int `json:"by_agent_type"`
	TotalCreated       int64          `json:"total_created"`
	TotalErrors        int64          `json:"total_errors"`
}

// GetHealthStatus reports aggregate counts. Pure read; no side effects.
func (m *Manager) GetHealthStatus() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := HealthStatus{
		TotalConnections: len(m.byID),
		ByAgentType:      make(map[string]int, len(m.byType)),
		TotalCreated:     m.totalCreated.Load(),
		TotalErrors:      m.totalErrors.Load(),
	}
	for agentType, bucket := range m.byType {
		status.ByAgentType[agentType] = len(bucket)
	}
	for _, conn := range m.byID {
		switch conn.State() {
		case StateConnected, StateConnecting, StateAuthenticating, StateAuthenticated:
			status.HealthyConnections++
		default:
			status.UnhealthyConns++
		}
	}
	return status
}

// DisconnectAll tears down every connection, used on graceful shutdown.
func (m *Manager) DisconnectAll() {
	for _, conn := range m.GetAllConnections() {
		conn.Disconnect()
	}
}
