// ABOUTME: Builtin webhook registrations for the supported agent families.
// ABOUTME: Each maps recognized event types to the event kind they emit.

package webhook

import (
	"context"

	"github.com/contextd/agentgate/internal/events"
)

func copilotRegistration(secret string) *Registration {
	return &Registration{
		AgentType:       "github-copilot",
		Secret:          secretBytes(secret),
		SignatureHeader: "X-Hub-Signature-256",
		EventTypeHeader: "X-GitHub-Event",
		EventTypeField:  "event_type",
		handlers: map[string]subHandler{
			"copilot_usage": func(_ context.Context, _ map[string]any) (events.Kind, error) {
				return events.KindUsageReported, nil
			},
			"copilot_suggestion": func(_ context.Context, _ map[string]any) (events.Kind, error) {
				return events.KindSuggestionShown, nil
			},
			"copilot_chat": func(_ context.Context, _ map[string]any) (events.Kind, error) {
				return events.KindChatInteraction, nil
			},
			"push": func(_ context.Context, _ map[string]any) (events.Kind, error) {
				return events.KindPushReceived, nil
			},
		},
	}
}

func amazonQRegistration(secret string) *Registration {
	return &Registration{
		AgentType:       "amazon-q",
		Secret:          secretBytes(secret),
		SignatureHeader: "X-Amz-Signature",
		EventTypeHeader: "X-Amz-Event-Type",
		EventTypeField:  "event_type",
		handlers: map[string]subHandler{
			"q_analysis_complete": func(_ context.Context, _ map[string]any) (events.Kind, error) {
				return events.KindAnalysisCompleted, nil
			},
			"q_security_scan": func(_ context.Context, _ map[string]any) (events.Kind, error) {
				return events.KindSecurityScan, nil
			},
			"q_recommendation": func(_ context.Context, _ map[string]any) (events.Kind, error) {
				return events.KindRecommendation, nil
			},
		},
	}
}

func clineRegistration(secret string) *Registration {
	return &Registration{
		AgentType:       "cline",
		Secret:          secretBytes(secret),
		SignatureHeader: "X-Cline-Signature",
		EventTypeHeader: "X-Cline-Event",
		EventTypeField:  "event_type",
		handlers: map[string]subHandler{
			"cline_command_executed": func(_ context.Context, _ map[string]any) (events.Kind, error) {
				return events.KindCommandExecuted, nil
			},
			"cline_file_operation": func(_ context.Context, _ map[string]any) (events.Kind, error) {
				return events.KindFileOperation, nil
			},
			"cline_task_complete": func(_ context.Context, _ map[string]any) (events.Kind, error) {
				return events.KindTaskCompleted, nil
			},
			"cline_error_report": func(_ context.Context, _ map[string]any) (events.Kind, error) {
				return events.KindErrorReported, nil
			},
		},
	}
}

func secretBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
