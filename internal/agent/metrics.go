// ABOUTME: Per-connection counters and gateway-wide Prometheus gauges.

package agent

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks one connection's traffic counters.
type Metrics struct {
	MessagesIn    atomic.Int64
	MessagesOut   atomic.Int64
	Errors        atomic.Int64
	ToolCalls     atomic.Int64
	ResourceReads atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	MessagesIn    int64 `json:"messages_in"`
	MessagesOut   int64 `json:"messages_out"`
	Errors        int64 `json:"errors"`
	ToolCalls     int64 `json:"tool_calls"`
	ResourceReads int64 `json:"resource_reads"`
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		MessagesIn:    m.MessagesIn.Load(),
		MessagesOut:   m.MessagesOut.Load(),
		Errors:        m.Errors.Load(),
		ToolCalls:     m.ToolCalls.Load(),
		ResourceReads: m.ResourceReads.Load(),
	}
}

var (
	metricConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgate",
		Name:      "connections_total",
		Help:      "Connections created since startup, by agent type.",
	}, []string{"agent_type"})

	metricConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentgate",
		Name:      "connections_active",
		Help:      "Currently registered connections.",
	})

	metricConnectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgate",
		Name:      "connection_errors_total",
		Help:      "Connection-level errors, by agent type.",
	}, []string{"agent_type"})

	metricConnectionsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgate",
		Name:      "connections_denied_total",
		Help:      "Connection attempts denied by admission control, by agent type.",
	}, []string{"agent_type"})
)
