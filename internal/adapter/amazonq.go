// ABOUTME: Amazon Q variant: scan/recommendation resources and analysis tools.

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

func newAmazonQAdapter(logger *slog.Logger) (Adapter, error) {
	resources := []Resource{
		{
			URI:         "scan://amazon-q/latest",
			Name:        "Latest Security Scan",
			Description: "Findings from the most recent code scan",
			MimeType:    "application/json",
			SizeBytes:   4096,
			Content:     `{"findings":[]}`,
		},
		{
			URI:         "recommendation://amazon-q/open",
			Name:        "Open Recommendations",
			Description: "Recommendations not yet applied",
			MimeType:    "application/json",
			SizeBytes:   2048,
			Content:     `{"recommendations":[]}`,
		},
	}

	tools := []Tool{
		{
			Name:        "queue_analysis",
			Description: "Queue a code analysis for a repository path",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "minLength": 1},
					"analysis_type": {"type": "string", "enum": ["security", "quality", "performance"]}
				},
				"required": ["path"]
			}`),
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				kind := stringArg(args, "analysis_type")
				if kind == "" {
					kind = "quality"
				}
				return fmt.Sprintf("%s analysis queued for %s", kind, stringArg(args, "path")), nil
			},
		},
		{
			Name:        "dismiss_recommendation",
			Description: "Dismiss a recommendation by id",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"recommendation_id": {"type": "string", "minLength": 1}
				},
				"required": ["recommendation_id"]
			}`),
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				return fmt.Sprintf("recommendation %s dismissed", stringArg(args, "recommendation_id")), nil
			},
		},
	}

	return newCatalog("amazon-q", resources, tools)
}
