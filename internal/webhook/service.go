// ABOUTME: Per-agent-type webhook registry with HMAC verification and routing.
// ABOUTME: Signature checks run before the body is interpreted as trusted input.

package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/contextd/agentgate/internal/events"
	"github.com/contextd/agentgate/internal/rules"
)

// ErrUnknownAgentType indicates no webhook handler is registered for the type.
var ErrUnknownAgentType = errors.New("unknown agent type")

// ErrSignatureInvalid indicates HMAC verification failed.
var ErrSignatureInvalid = errors.New("invalid webhook signature")

// ErrPayloadRejected indicates the payload failed rule validation.
var ErrPayloadRejected = errors.New("webhook payload rejected")

// Result is the structured acknowledgment returned to the sender.
type Result struct {
	Status string `json:"status"`
	Type   string `json:"type"`
}

// subHandler processes one recognized event type and returns the event kind
// to emit alongside the generic webhookReceived event.
type subHandler func(ctx context.Context, body map[string]any) (events.Kind, error)

// Registration binds an agent type to its signature settings and the table
// of recognized event types. Registered at startup; read-only afterwards.
type Registration struct {
	AgentType string

	// Secret enables HMAC verification when non-empty.
	Secret []byte

	// SignatureHeader names the HTTP header carrying the signature.
	SignatureHeader string

	// EventTypeHeader names the header carrying the event type. When the
	// header is absent the EventTypeField of the JSON body is consulted.
	EventTypeHeader string
	EventTypeField  string

	handlers map[string]subHandler
}

// Service verifies and routes inbound webhooks. Processing is stateless per
// request; the registration table is the only shared state.
type Service struct {
	mu     sync.RWMutex
	regs   map[string]*Registration
	engine *rules.Engine
	bus    *events.Bus
	logger *slog.Logger
}

// Secrets carries the per-agent-type shared secrets from configuration.
type Secrets struct {
	Cline         string
	GitHubCopilot string
	AmazonQ       string
}

// NewService creates the service with the builtin agent families registered.
func NewService(engine *rules.Engine, bus *events.Bus, secrets Secrets, logger *slog.Logger) *Service {
	s := &Service{
		regs:   make(map[string]*Registration),
		engine: engine,
		bus:    bus,
		logger: logger,
	}
	s.Register(copilotRegistration(secrets.GitHubCopilot))
	s.Register(amazonQRegistration(secrets.AmazonQ))
	s.Register(clineRegistration(secrets.Cline))
	return s
}

// Register installs a registration, replacing any previous one for the type.
func (s *Service) Register(reg *Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[reg.AgentType] = reg
}

// registration looks up the handler table for an agent type.
func (s *Service) registration(agentType string) (*Registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.regs[agentType]
	return reg, ok
}

// Process verifies and dispatches one inbound webhook. rawBody must be the
// exact bytes received on the wire: HMAC verification happens over them
// before anything is parsed.
func (s *Service) Process(ctx context.Context, agentType string, headers http.Header, rawBody []byte) (*Result, error) {
	reg, ok := s.registration(agentType)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAgentType, "no webhook handler for '%s'", agentType)
	}

	signature := headers.Get(reg.SignatureHeader)
	decision := s.engine.Apply(rules.Action{
		Type:             rules.ActionWebhook,
		AgentType:        agentType,
		PayloadBytes:     int64(len(rawBody)),
		SignaturePresent: signature != "" || len(reg.Secret) == 0,
	}, rules.EvalContext{})
	if !decision.Allowed {
		if err := decision.Err(); errors.Is(err, rules.ErrRateLimited) {
			metricWebhooks.WithLabelValues(agentType, "rate_limited").Inc()
			return nil, err
		}
		metricWebhooks.WithLabelValues(agentType, "rejected").Inc()
		return nil, errors.Wrap(ErrPayloadRejected, decision.Message)
	}

	if len(reg.Secret) > 0 {
		if err := verifySignature(reg.Secret, rawBody, signature); err != nil {
			s.logger.Warn("webhook signature verification failed",
				"agent_type", agentType,
				"error", err,
			)
			metricWebhooks.WithLabelValues(agentType, "bad_signature").Inc()
			return nil, err
		}
	}

	var body map[string]any
	if len(rawBody) > 0 {
		if err := json.Unmarshal(rawBody, &body); err != nil {
			return nil, errors.Wrap(ErrPayloadRejected, "body is not valid JSON")
		}
	}

	eventType := headers.Get(reg.EventTypeHeader)
	if eventType == "" && reg.EventTypeField != "" {
		if v, ok := body[reg.EventTypeField].(string); ok {
			eventType = v
		}
	}
	if eventType == "" {
		return nil, errors.Wrap(ErrPayloadRejected, "missing event type")
	}

	deliveryID := uuid.New().String()
	handler, recognized := reg.handlers[eventType]
	if !recognized {
		// Unrecognized event types are non-fatal.
		s.logger.Info("unrecognized webhook event type, ignoring",
			"agent_type", agentType,
			"event_type", eventType,
			"delivery_id", deliveryID,
		)
		return &Result{Status: "ignored", Type: eventType}, nil
	}

	kind, err := handler(ctx, body)
	if err != nil {
		return nil, err
	}

	metricWebhooks.WithLabelValues(agentType, "processed").Inc()
	s.bus.Publish(events.Event{
		Kind:         events.KindWebhookReceived,
		AgentType:    agentType,
		WebhookEvent: eventType,
		Payload:      map[string]any{"delivery_id": deliveryID},
	})
	s.bus.Publish(events.Event{
		Kind:         kind,
		AgentType:    agentType,
		WebhookEvent: eventType,
		Payload:      body,
	})

	s.logger.Debug("webhook processed",
		"agent_type", agentType,
		"event_type", eventType,
		"delivery_id", deliveryID,
	)
	return &Result{Status: "processed", Type: eventType}, nil
}
