// ABOUTME: Typed lifecycle and webhook events with a synchronous fan-out bus.
// ABOUTME: Tagged-union Event value replaces stringly-typed emitter names.

package events

import (
	"log/slog"
	"sync"
	"time"
)

// Kind identifies the event variant.
type Kind int

const (
	KindConnectionCreated Kind = iota
	KindConnectionEstablished
	KindConnectionClosed
	KindConnectionError
	KindConnectionMessage
	KindWebhookReceived
	KindUsageReported
	KindSuggestionShown
	KindChatInteraction
	KindPushReceived
	KindAnalysisCompleted
	KindSecurityScan
	KindRecommendation
	KindCommandExecuted
	KindFileOperation
	KindTaskCompleted
	KindErrorReported
)

var kindNames = map[Kind]string{
	KindConnectionCreated:     "connectionCreated",
	KindConnectionEstablished: "connectionEstablished",
	KindConnectionClosed:      "connectionClosed",
	KindConnectionError:       "connectionError",
	KindConnectionMessage:     "connectionMessage",
	KindWebhookReceived:       "webhookReceived",
	KindUsageReported:         "usageReported",
	KindSuggestionShown:       "suggestionShown",
	KindChatInteraction:       "chatInteraction",
	KindPushReceived:          "pushReceived",
	KindAnalysisCompleted:     "analysisCompleted",
	KindSecurityScan:          "securityScan",
	KindRecommendation:        "recommendation",
	KindCommandExecuted:       "commandExecuted",
	KindFileOperation:         "fileOperation",
	KindTaskCompleted:         "taskCompleted",
	KindErrorReported:         "errorReported",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is one emitted occurrence. Fields beyond Kind and Time are populated
// per variant; Payload carries variant-specific details for consumers that
// forward events to usage tracking or billing.
type Event struct {
	Kind         Kind
	Time         time.Time
	ConnectionID string
	AgentID      string
	AgentType    string
	Method       string
	WebhookEvent string
	Err          error
	Payload      map[string]any
}

type subscription struct {
	kinds map[Kind]bool
	ch    chan Event
}

func (s *subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Bus fans events out to subscribers. Publish is synchronous with respect to
// the state transition that produced the event: it runs inline at the call
// site and never blocks, dropping to a warning log when a subscriber's
// buffer is full.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	logger *slog.Logger
}

// NewBus creates an empty event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[*subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers interest in the given kinds (all kinds when empty).
// The returned cancel func removes the subscription and closes the channel.
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Event, func()) {
	sub := &subscription{
		kinds: make(map[Kind]bool, len(kinds)),
		ch:    make(chan Event, 64),
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every matching subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !sub.wants(ev.Kind) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("event subscriber buffer full, dropping event",
				"kind", ev.Kind.String(),
				"connection_id", ev.ConnectionID,
			)
		}
	}
}
