// ABOUTME: Pure, stateless policy checks over one configuration snapshot.
// ABOUTME: Each check returns nil (pass) or a Violation describing the denial.

package rules

import (
	"fmt"
	"slices"
	"strings"
)

// ActionType discriminates what kind of action is being evaluated.
type ActionType string

const (
	ActionConnect        ActionType = "connect"
	ActionResourceAccess ActionType = "resource_access"
	ActionToolExecution  ActionType = "tool_execution"
	ActionWebhook        ActionType = "webhook"
	ActionInput          ActionType = "input"
)

// Action describes one admission request. Only the fields relevant to the
// action type need to be populated.
type Action struct {
	Type      ActionType
	AgentType string

	// connect
	ConnectionCount int

	// resource_access
	ResourceType string
	SizeBytes    int64
	FileType     string

	// input
	Content string

	// tool_execution
	ToolName string
	ArgBytes int

	// webhook
	PayloadBytes     int64
	SignaturePresent bool
}

// Violation names the rule that failed and the human-readable reason.
type Violation struct {
	Rule   string
	Reason string
}

// validator holds the snapshot its checks evaluate against. It keeps no
// other state; all methods are pure.
type validator struct {
	cfg *Config
}

func (v validator) validateConnection(agentType string, connectionCount int) *Violation {
	cap := v.cfg.ConnectionCap(agentType)
	if connectionCount >= cap {
		return &Violation{
			Rule:   "max_connections",
			Reason: fmt.Sprintf("connection limit reached for agent type '%s': %d", agentType, cap),
		}
	}
	return nil
}

func (v validator) validateResourceAccess(agentType, resourceType string, size int64, fileType string) *Violation {
	policy, ok := v.cfg.Resources[agentType]
	if !ok {
		return &Violation{
			Rule:   "resource_access",
			Reason: fmt.Sprintf("unknown agent type '%s'", agentType),
		}
	}

	// Deny-list wins even when the type also appears in the allow-list.
	if slices.Contains(policy.DeniedTypes, resourceType) {
		return &Violation{
			Rule:   "resource_denied",
			Reason: fmt.Sprintf("resource type '%s' is denied for agent type '%s'", resourceType, agentType),
		}
	}
	if !slices.Contains(policy.AllowedTypes, resourceType) {
		return &Violation{
			Rule:   "resource_not_allowed",
			Reason: fmt.Sprintf("resource type '%s' is not allowed for agent type '%s'", resourceType, agentType),
		}
	}
	if policy.MaxSizeBytes > 0 && size > policy.MaxSizeBytes {
		return &Violation{
			Rule:   "resource_size",
			Reason: fmt.Sprintf("resource size %d exceeds maximum %d", size, policy.MaxSizeBytes),
		}
	}
	if fileType != "" && len(policy.AllowedExtensions) > 0 {
		ext := strings.ToLower(fileType)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !slices.Contains(policy.AllowedExtensions, ext) {
			return &Violation{
				Rule:   "file_extension",
				Reason: fmt.Sprintf("file type '%s' is not allowed for agent type '%s'", fileType, agentType),
			}
		}
	}
	return nil
}

func (v validator) validateInput(content string) *Violation {
	if len(content) > v.cfg.Input.MaxLength {
		return &Violation{
			Rule:   "input_length",
			Reason: fmt.Sprintf("input length %d exceeds maximum %d", len(content), v.cfg.Input.MaxLength),
		}
	}
	for _, re := range v.cfg.blockedRe {
		if re.MatchString(content) {
			return &Violation{
				Rule:   "input_content",
				Reason: "input contains blocked content",
			}
		}
	}
	return nil
}

func (v validator) validateToolExecution(toolName, agentType string, argBytes int) *Violation {
	if _, ok := v.cfg.Resources[agentType]; !ok {
		return &Violation{
			Rule:   "tool_execution",
			Reason: fmt.Sprintf("unknown agent type '%s'", agentType),
		}
	}
	if slices.Contains(v.cfg.Tools.BlockedCommands, toolName) {
		return &Violation{
			Rule:   "tool_blocked",
			Reason: fmt.Sprintf("Tool '%s' is blocked", toolName),
		}
	}
	if v.cfg.Tools.MaxArgBytes > 0 && argBytes > v.cfg.Tools.MaxArgBytes {
		return &Violation{
			Rule:   "tool_args_size",
			Reason: fmt.Sprintf("tool arguments size %d exceeds maximum %d", argBytes, v.cfg.Tools.MaxArgBytes),
		}
	}
	return nil
}

func (v validator) validateWebhook(payloadBytes int64, signaturePresent bool) *Violation {
	if payloadBytes > v.cfg.Webhook.MaxPayloadBytes {
		return &Violation{
			Rule:   "webhook_size",
			Reason: fmt.Sprintf("webhook payload size %d exceeds maximum %d", payloadBytes, v.cfg.Webhook.MaxPayloadBytes),
		}
	}
	if v.cfg.Webhook.RequireSignature && !signaturePresent {
		return &Violation{
			Rule:   "webhook_signature",
			Reason: "webhook signature is required but absent",
		}
	}
	return nil
}
