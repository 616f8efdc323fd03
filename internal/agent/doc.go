// Package agent manages connections from coding-assistant agents.
//
// # Overview
//
// The agent package handles the lifecycle of connected agents: admission
// against the rule engine, the protocol handshake, heartbeat monitoring,
// per-request policy checks, and disconnection.
//
// # Manager
//
// The Manager owns the connection registry:
//
//	mgr := agent.NewManager(agent.ManagerParams{...})
//
// Key operations:
//
//   - CreateConnection(ctx, agentID, agentType, token, transport): Admit and start a session
//   - GetConnection(id) / GetAllConnections(): Registry lookups
//   - GetByAgentType(agentType): Connections for one agent type
//   - DisconnectAll(): Tear down every session
//
// Admission happens before any session state exists: the rule engine checks
// the per-type connection cap and the request rate window, and credentialed
// agent types must present a verifiable token. A refused connection never
// occupies a slot.
//
// # Connection
//
// Connection represents a single agent's session over a message transport.
// Its lifecycle runs through an explicit state machine:
//
//	disconnected -> connecting -> [authenticating ->] connected -> disconnected
//
// with error and timeout states for handshake failures. The handshake must
// complete within the configured timeout or the connection is torn down and
// its slot released.
//
// # Request Handling
//
// Incoming requests are dispatched by method. Tool calls and resource reads
// pass through the rule engine before reaching the adapter; denials map to
// protocol error codes (access denied, rate limited) without consuming rate
// budget.
//
// # Heartbeat Monitoring
//
// The gateway pings each connected agent on the heartbeat interval
// (default 30s). A failed send tears the connection down.
//
// # Thread Safety
//
// Both Manager and Connection are safe for concurrent use. The registry is
// guarded by a mutex and per-connection counters are atomic.
package agent
