// ABOUTME: GitHub Copilot variant: snippet/usage resources and suggestion tools.

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

func newCopilotAdapter(logger *slog.Logger) (Adapter, error) {
	resources := []Resource{
		{
			URI:         "usage://github-copilot/current-period",
			Name:        "Usage This Period",
			Description: "Copilot completion and chat counters for the current billing period",
			MimeType:    "application/json",
			SizeBytes:   256,
			Content:     `{"completions":0,"chat_turns":0}`,
		},
		{
			URI:         "snippet://github-copilot/recent",
			Name:        "Recent Suggestions",
			Description: "Most recent accepted suggestions",
			MimeType:    "application/json",
			SizeBytes:   1024,
			Content:     `{"suggestions":[]}`,
		},
	}

	tools := []Tool{
		{
			Name:        "record_acceptance",
			Description: "Record that a suggestion was accepted in the editor",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"suggestion_id": {"type": "string", "minLength": 1},
					"language": {"type": "string"}
				},
				"required": ["suggestion_id"]
			}`),
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				return fmt.Sprintf("acceptance recorded for %s", stringArg(args, "suggestion_id")), nil
			},
		},
		{
			Name:        "usage_summary",
			Description: "Summarize usage counters supplied by the editor plugin",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"completions": {"type": "integer", "minimum": 0},
					"chat_turns": {"type": "integer", "minimum": 0}
				}
			}`),
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				completions, _ := args["completions"].(float64)
				chatTurns, _ := args["chat_turns"].(float64)
				return fmt.Sprintf("usage: %d completions, %d chat turns", int(completions), int(chatTurns)), nil
			},
		},
	}

	return newCatalog("github-copilot", resources, tools)
}
