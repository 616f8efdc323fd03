// ABOUTME: Protocol method implementations for one connection.
// ABOUTME: Every resource/tool access passes the rule engine before execution.

package agent

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/contextd/agentgate/internal/adapter"
	"github.com/contextd/agentgate/internal/protocol"
	"github.com/contextd/agentgate/internal/rules"
)

// deniedError translates a rule denial into a protocol error response.
func deniedError(d rules.Decision) *protocol.Error {
	code := protocol.CodeAccessDenied
	if err := d.Err(); errors.Is(err, rules.ErrRateLimited) {
		code = protocol.CodeRateLimited
	}
	return &protocol.Error{Code: code, Message: d.Message}
}

// checkGeneric runs the input-validation and generic rate-limit gate shared
// by the catalog listing methods.
func (c *Connection) checkGeneric(content string) *protocol.Error {
	decision := c.engine.Apply(rules.Action{
		Type:      rules.ActionInput,
		AgentType: c.AgentType,
		Content:   content,
	}, rules.EvalContext{})
	if !decision.Allowed {
		return deniedError(decision)
	}
	return nil
}

func (c *Connection) handleInitialize(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.InitializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: "malformed initialize params"}
		}
	}
	return protocol.InitializeResult{
		ProtocolVersion: protocol.Version,
		Capabilities:    protocol.DefaultCapabilities(),
		ServerInfo:      protocol.Implementation{Name: "agentgate", Version: protocol.Version},
	}, nil
}

func (c *Connection) handleListResources(ctx context.Context, raw json.RawMessage) (any, error) {
	if protoErr := c.checkGeneric(string(raw)); protoErr != nil {
		return nil, protoErr
	}

	resources := c.adapter.Resources()
	infos := make([]protocol.ResourceInfo, 0, len(resources))
	for _, res := range resources {
		infos = append(infos, res.Info())
	}
	return protocol.ListResourcesResult{Resources: infos}, nil
}

func (c *Connection) handleReadResource(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.ReadResourceParams
	if err := json.Unmarshal(raw, &params); err != nil || params.URI == "" {
		return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: "resources/read requires a uri"}
	}

	res := adapter.DescribeResource(c.adapter, params.URI)
	decision := c.engine.Apply(rules.Action{
		Type:         rules.ActionResourceAccess,
		AgentType:    c.AgentType,
		ResourceType: res.ResourceType(),
		SizeBytes:    res.SizeBytes,
		FileType:     res.FileType,
	}, rules.EvalContext{})
	if !decision.Allowed {
		return nil, deniedError(decision)
	}

	contents, err := c.adapter.ReadResource(ctx, params.URI)
	if err != nil {
		if errors.Is(err, adapter.ErrResourceNotFound) {
			return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: err.Error()}
		}
		return nil, err
	}
	c.metrics.ResourceReads.Add(1)
	return protocol.ReadResourceResult{Contents: []protocol.ResourceContents{*contents}}, nil
}

func (c *Connection) handleSubscribe(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.SubscribeParams
	if err := json.Unmarshal(raw, &params); err != nil || params.URI == "" {
		return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: "resources/subscribe requires a uri"}
	}
	if protoErr := c.checkGeneric(string(raw)); protoErr != nil {
		return nil, protoErr
	}

	c.mu.Lock()
	c.subscriptions[params.URI] = true
	c.mu.Unlock()

	c.logger.Debug("resource subscription added", "uri", params.URI)
	return map[string]any{}, nil
}

func (c *Connection) handleListTools(ctx context.Context, raw json.RawMessage) (any, error) {
	if protoErr := c.checkGeneric(string(raw)); protoErr != nil {
		return nil, protoErr
	}

	tools := c.adapter.Tools()
	infos := make([]protocol.ToolInfo, 0, len(tools))
	for _, tool := range tools {
		infos = append(infos, tool.Info())
	}
	return protocol.ListToolsResult{Tools: infos}, nil
}

func (c *Connection) handleCallTool(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.CallToolParams
	if err := json.Unmarshal(raw, &params); err != nil || params.Name == "" {
		return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: "tools/call requires a tool name"}
	}

	decision := c.engine.Apply(rules.Action{
		Type:      rules.ActionToolExecution,
		AgentType: c.AgentType,
		ToolName:  params.Name,
		ArgBytes:  len(params.Arguments),
	}, rules.EvalContext{})
	if !decision.Allowed {
		return nil, deniedError(decision)
	}

	timeout := c.engine.Config().Tools.Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := c.adapter.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		switch {
		case errors.Is(err, adapter.ErrToolNotFound):
			return nil, &protocol.Error{Code: protocol.CodeMethodNotFound, Message: err.Error()}
		case errors.Is(err, adapter.ErrInvalidArguments):
			return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: err.Error()}
		default:
			return nil, err
		}
	}
	c.metrics.ToolCalls.Add(1)
	return result, nil
}
