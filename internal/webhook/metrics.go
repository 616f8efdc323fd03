// ABOUTME: Prometheus counters for webhook delivery outcomes.
// ABOUTME: Labeled by agent type to separate the builtin families.

package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricWebhooks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentgate",
	Name:      "webhooks_total",
	Help:      "Webhook deliveries by agent type and outcome.",
}, []string{"agent_type", "outcome"})
