// ABOUTME: Combines validator checks and rate-limiter bookkeeping into one decision.
// ABOUTME: Holds the current config snapshot and swaps it wholesale on update.

package rules

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// EvalContext supplies per-evaluation inputs that are not part of the action.
type EvalContext struct {
	TimeWindow Window
	Now        time.Time
}

// Decision is the aggregate outcome of one rule evaluation.
type Decision struct {
	Allowed    bool
	Violations []Violation
	Message    string

	// Evaluated key and its rate-limit bookkeeping.
	AgentType  string
	ActionType ActionType
	Remaining  int
	Limit      int
	ResetAt    time.Time
}

// Err translates a denial into the matching sentinel error. Allowed
// decisions return nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	for _, v := range d.Violations {
		if v.Rule == "rate_limit" {
			return &RateLimitError{
				AgentType:   d.AgentType,
				RequestType: string(d.ActionType),
				Limit:       d.Limit,
				ResetAt:     d.ResetAt,
			}
		}
		if v.Rule == "max_connections" {
			return errors.Wrap(ErrConnectionDenied, d.Message)
		}
	}
	return errors.Wrap(ErrValidation, d.Message)
}

// Engine orchestrates rule validation and rate limiting. Safe for
// concurrent use; every evaluation reads one consistent config snapshot.
type Engine struct {
	mu     sync.RWMutex
	cfg    *Config
	lim    *limiter
	logger *slog.Logger
}

// NewEngine compiles the snapshot and creates the engine.
func NewEngine(cfg *Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = Default()
	}
	if err := cfg.Compile(); err != nil {
		return nil, errors.Wrap(err, "compiling rule config")
	}
	return &Engine{
		cfg:    cfg,
		lim:    newLimiter(),
		logger: logger,
	}, nil
}

// Config returns the current snapshot. Snapshots are immutable; callers may
// hold the pointer across suspension points.
func (e *Engine) Config() *Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// UpdateConfig replaces the snapshot wholesale. The version must advance;
// a zero version is assigned the successor of the current one. Existing
// rate-limiter buckets survive the swap.
func (e *Engine) UpdateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil rule config")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cfg.Version == 0 {
		cfg.Version = e.cfg.Version + 1
	} else if cfg.Version <= e.cfg.Version {
		return errors.Newf("config version %d does not advance current version %d", cfg.Version, e.cfg.Version)
	}
	if err := cfg.Compile(); err != nil {
		return errors.Wrap(err, "compiling rule config")
	}

	e.cfg = cfg
	metricConfigUpdates.Inc()
	e.logger.Info("rule configuration replaced", "version", cfg.Version)
	return nil
}

// Apply evaluates the action against the current snapshot. The matching
// validator check runs first, then the rate-limit check for the
// (agentType, actionType, window) key always runs in addition. Budget is
// consumed only when the whole decision is an allow.
func (e *Engine) Apply(action Action, evalCtx EvalContext) Decision {
	cfg := e.Config()
	now := evalCtx.Now
	if now.IsZero() {
		now = time.Now()
	}
	window := evalCtx.TimeWindow
	if window == "" {
		window = WindowMinute
	}

	v := validator{cfg: cfg}
	var violations []Violation

	switch action.Type {
	case ActionConnect:
		if viol := v.validateConnection(action.AgentType, action.ConnectionCount); viol != nil {
			violations = append(violations, *viol)
		}
	case ActionResourceAccess:
		if viol := v.validateResourceAccess(action.AgentType, action.ResourceType, action.SizeBytes, action.FileType); viol != nil {
			violations = append(violations, *viol)
		}
	case ActionToolExecution:
		if viol := v.validateToolExecution(action.ToolName, action.AgentType, action.ArgBytes); viol != nil {
			violations = append(violations, *viol)
		}
	case ActionWebhook:
		if viol := v.validateWebhook(action.PayloadBytes, action.SignaturePresent); viol != nil {
			violations = append(violations, *viol)
		}
	case ActionInput:
		if viol := v.validateInput(action.Content); viol != nil {
			violations = append(violations, *viol)
		}
	default:
		violations = append(violations, Violation{
			Rule:   "action_type",
			Reason: fmt.Sprintf("unknown action type '%s'", action.Type),
		})
	}

	key := bucketKey{agentType: action.AgentType, requestType: action.Type, window: window}
	limit := cfg.limit(action.Type, window)

	decision := Decision{
		AgentType:  action.AgentType,
		ActionType: action.Type,
		Limit:      limit,
	}

	// The rate check always runs in addition to the validator check, so a
	// denial reports every violated dimension. A decision that is already
	// a deny reads the bucket without consuming budget.
	var remaining int
	var resetAt time.Time
	var withinLimit bool
	if len(violations) > 0 {
		remaining, resetAt, withinLimit = e.lim.peek(key, limit, now)
	} else {
		remaining, resetAt, withinLimit = e.lim.check(key, limit, now)
	}
	decision.Remaining = remaining
	decision.ResetAt = resetAt
	if !withinLimit {
		metricRateLimited.WithLabelValues(action.AgentType).Inc()
		violations = append(violations, Violation{
			Rule: "rate_limit",
			Reason: fmt.Sprintf("rate limit exceeded for %s/%s: %d per %s",
				action.AgentType, action.Type, limit, window),
		})
	}

	decision.Allowed = len(violations) == 0
	decision.Violations = violations
	if !decision.Allowed {
		reasons := make([]string, len(violations))
		for i, viol := range violations {
			reasons[i] = viol.Reason
			metricViolations.WithLabelValues(viol.Rule).Inc()
		}
		decision.Message = strings.Join(reasons, "; ")
		metricDecisions.WithLabelValues(string(action.Type), "deny").Inc()
		e.logger.Debug("action denied",
			"action", string(action.Type),
			"agent_type", action.AgentType,
			"reason", decision.Message,
		)
	} else {
		metricDecisions.WithLabelValues(string(action.Type), "allow").Inc()
	}

	return decision
}
