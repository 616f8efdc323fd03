// ABOUTME: Prometheus instrumentation for rule decisions and rate limiting.

package rules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgate",
		Name:      "rule_decisions_total",
		Help:      "Rule engine decisions by action type and outcome.",
	}, []string{"action", "outcome"})

	metricViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgate",
		Name:      "rule_violations_total",
		Help:      "Individual rule violations by rule name.",
	}, []string{"rule"})

	metricRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgate",
		Name:      "rate_limit_denials_total",
		Help:      "Requests denied by the rate limiter, by agent type.",
	}, []string{"agent_type"})

	metricConfigUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentgate",
		Name:      "rule_config_updates_total",
		Help:      "Number of rule configuration snapshot replacements.",
	})
)
