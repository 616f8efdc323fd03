// ABOUTME: Cline variant: task-oriented resources and command/file tools.

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

func newClineAdapter(logger *slog.Logger) (Adapter, error) {
	resources := []Resource{
		{
			URI:         "task://cline/active",
			Name:        "Active Tasks",
			Description: "Tasks currently tracked by the Cline session",
			MimeType:    "application/json",
			SizeBytes:   512,
			Content:     `{"tasks":[]}`,
		},
		{
			URI:         "file://cline/workspace-summary.md",
			Name:        "Workspace Summary",
			Description: "Summary of the workspace Cline is operating on",
			MimeType:    "text/markdown",
			SizeBytes:   2048,
			FileType:    ".md",
			Content:     "# Workspace\n\nNo summary recorded yet.\n",
		},
	}

	tools := []Tool{
		{
			Name:        "create_task",
			Description: "Record a new task for the session",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"description": {"type": "string"}
				},
				"required": ["title"]
			}`),
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				return fmt.Sprintf("task created: %s", stringArg(args, "title")), nil
			},
		},
		{
			Name:        "summarize_files",
			Description: "Summarize a list of workspace file paths",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"paths": {"type": "array", "items": {"type": "string"}, "minItems": 1}
				},
				"required": ["paths"]
			}`),
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				raw, _ := args["paths"].([]any)
				paths := make([]string, 0, len(raw))
				for _, p := range raw {
					if s, ok := p.(string); ok {
						paths = append(paths, s)
					}
				}
				return fmt.Sprintf("%d files: %s", len(paths), strings.Join(paths, ", ")), nil
			},
		},
	}

	return newCatalog("cline", resources, tools)
}
