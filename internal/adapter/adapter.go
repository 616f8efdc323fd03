// ABOUTME: Agent-type capability registry: resource/tool catalogs behind one interface.
// ABOUTME: A factory selects the variant per agent type at connection-creation time.

package adapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/contextd/agentgate/internal/protocol"
)

// ErrResourceNotFound indicates the URI is not in the adapter's catalog.
var ErrResourceNotFound = errors.New("resource not found")

// ErrToolNotFound indicates the tool name is not in the adapter's catalog.
var ErrToolNotFound = errors.New("tool not found")

// ErrInvalidArguments indicates tool arguments failed schema validation.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Resource is one catalog entry with the size/extension metadata the rule
// engine evaluates on access.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	SizeBytes   int64
	FileType    string
	Content     string
}

// Info converts the catalog entry to its wire representation.
func (r Resource) Info() protocol.ResourceInfo {
	return protocol.ResourceInfo{
		URI:         r.URI,
		Name:        r.Name,
		Description: r.Description,
		MimeType:    r.MimeType,
	}
}

// ResourceType derives the rule-engine resource type from the URI scheme
// (e.g. "file://..." -> "file").
func (r Resource) ResourceType() string {
	if i := strings.Index(r.URI, "://"); i > 0 {
		return r.URI[:i]
	}
	return "file"
}

// Tool is one invocable catalog entry. The input schema is compiled at
// registration; Call validates arguments before running.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Run         func(ctx context.Context, args map[string]any) (string, error)

	compiled *jsonschema.Schema
}

// Info converts the catalog entry to its wire representation.
func (t Tool) Info() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}

// Adapter is the per-agent-type variant interface.
type Adapter interface {
	AgentType() string
	Resources() []Resource
	Tools() []Tool
	ReadResource(ctx context.Context, uri string) (*protocol.ResourceContents, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error)
}

// Factory creates adapters by agent type. Unknown types get a minimal
// generic adapter rather than an error; the rule engine still constrains
// what they can do.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]func(logger *slog.Logger) (Adapter, error)
	logger   *slog.Logger
}

// NewFactory creates a factory with the builtin variants registered.
func NewFactory(logger *slog.Logger) *Factory {
	f := &Factory{
		builders: make(map[string]func(*slog.Logger) (Adapter, error)),
		logger:   logger,
	}
	f.Register("cline", newClineAdapter)
	f.Register("github-copilot", newCopilotAdapter)
	f.Register("amazon-q", newAmazonQAdapter)
	return f
}

// Register binds an agent type to an adapter constructor.
func (f *Factory) Register(agentType string, build func(*slog.Logger) (Adapter, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[agentType] = build
}

// AgentTypes returns the registered agent types.
func (f *Factory) AgentTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	return types
}

// ForAgentType returns the adapter variant for the agent type.
func (f *Factory) ForAgentType(agentType string) (Adapter, error) {
	f.mu.RLock()
	build, ok := f.builders[agentType]
	f.mu.RUnlock()

	if !ok {
		f.logger.Debug("no adapter variant registered, using generic", "agent_type", agentType)
		return newGenericAdapter(agentType)
	}
	return build(f.logger)
}
