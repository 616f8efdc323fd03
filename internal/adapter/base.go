// ABOUTME: Shared catalog plumbing for adapter variants.
// ABOUTME: Schema compilation, resource lookup, and schema-checked tool dispatch.

package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/contextd/agentgate/internal/protocol"
)

// catalog implements the Adapter interface over static resource and tool
// tables. Variants embed it and supply their own entries.
type catalog struct {
	agentType string
	resources []Resource
	tools     []Tool
}

func newCatalog(agentType string, resources []Resource, tools []Tool) (*catalog, error) {
	for i := range tools {
		if len(tools[i].InputSchema) == 0 {
			continue
		}
		schema, err := jsonschema.CompileString(
			fmt.Sprintf("%s/%s.json", agentType, tools[i].Name),
			string(tools[i].InputSchema),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling input schema for tool %s", tools[i].Name)
		}
		tools[i].compiled = schema
	}
	return &catalog{agentType: agentType, resources: resources, tools: tools}, nil
}

func (c *catalog) AgentType() string { return c.agentType }

func (c *catalog) Resources() []Resource { return c.resources }

func (c *catalog) Tools() []Tool { return c.tools }

func (c *catalog) ReadResource(ctx context.Context, uri string) (*protocol.ResourceContents, error) {
	for _, res := range c.resources {
		if res.URI == uri {
			return &protocol.ResourceContents{
				URI:      res.URI,
				MimeType: res.MimeType,
				Text:     res.Content,
			}, nil
		}
	}
	return nil, errors.Wrapf(ErrResourceNotFound, "uri %s", uri)
}

func (c *catalog) CallTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error) {
	var tool *Tool
	for i := range c.tools {
		if c.tools[i].Name == name {
			tool = &c.tools[i]
			break
		}
	}
	if tool == nil {
		return nil, errors.Wrapf(ErrToolNotFound, "tool %s", name)
	}

	decoded := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return nil, errors.Wrap(ErrInvalidArguments, err.Error())
		}
	}
	if tool.compiled != nil {
		if err := tool.compiled.Validate(map[string]any(decoded)); err != nil {
			return nil, errors.Wrap(ErrInvalidArguments, err.Error())
		}
	}

	text, err := tool.Run(ctx, decoded)
	if err != nil {
		return &protocol.CallToolResult{
			Content: []protocol.Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{{Type: "text", Text: text}},
	}, nil
}

// DescribeResource exposes rule-relevant metadata for a URI. Unknown URIs
// report a zero Resource whose type still derives from the URI scheme so
// the rule engine can evaluate the access.
func DescribeResource(a Adapter, uri string) Resource {
	for _, res := range a.Resources() {
		if res.URI == uri {
			return res
		}
	}
	return Resource{URI: uri}
}

func newGenericAdapter(agentType string) (Adapter, error) {
	return newCatalog(agentType, nil, nil)
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
