// ABOUTME: Tests for the adapter factory and catalog behavior.
// ABOUTME: Covers builtin variants, the generic fallback, and schema-checked tool calls.

package adapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFactory() *Factory {
	return NewFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFactory_BuiltinTypes(t *testing.T) {
	f := newTestFactory()

	for _, agentType := range []string{"cline", "github-copilot", "amazon-q"} {
		a, err := f.ForAgentType(agentType)
		require.NoError(t, err, agentType)
		assert.Equal(t, agentType, a.AgentType())
		assert.NotEmpty(t, a.Resources(), agentType)
		assert.NotEmpty(t, a.Tools(), agentType)
	}

	assert.ElementsMatch(t, []string{"cline", "github-copilot", "amazon-q"}, f.AgentTypes())
}

func TestFactory_GenericFallback(t *testing.T) {
	f := newTestFactory()

	a, err := f.ForAgentType("jetbrains-ai")
	require.NoError(t, err)
	assert.Equal(t, "jetbrains-ai", a.AgentType())
	assert.Empty(t, a.Resources())
	assert.Empty(t, a.Tools())

	_, err = a.CallTool(context.Background(), "create_task", nil)
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestFactory_Register(t *testing.T) {
	f := newTestFactory()
	f.Register("custom", func(logger *slog.Logger) (Adapter, error) {
		return newCatalog("custom", []Resource{{URI: "mem://custom/state", Content: "{}"}}, nil)
	})

	a, err := f.ForAgentType("custom")
	require.NoError(t, err)
	assert.Len(t, a.Resources(), 1)
}

func TestCatalog_ReadResource(t *testing.T) {
	f := newTestFactory()
	a, err := f.ForAgentType("cline")
	require.NoError(t, err)

	contents, err := a.ReadResource(context.Background(), "task://cline/active")
	require.NoError(t, err)
	assert.Equal(t, "task://cline/active", contents.URI)
	assert.Equal(t, "application/json", contents.MimeType)
	assert.JSONEq(t, `{"tasks":[]}`, contents.Text)

	_, err = a.ReadResource(context.Background(), "task://cline/nope")
	assert.True(t, errors.Is(err, ErrResourceNotFound))
}

func TestCatalog_CallTool(t *testing.T) {
	f := newTestFactory()
	a, err := f.ForAgentType("cline")
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("valid arguments", func(t *testing.T) {
		result, err := a.CallTool(ctx, "create_task", json.RawMessage(`{"title":"write docs"}`))
		require.NoError(t, err)
		assert.False(t, result.IsError)
		require.Len(t, result.Content, 1)
		assert.Contains(t, result.Content[0].Text, "write docs")
	})

	t.Run("schema rejection", func(t *testing.T) {
		_, err := a.CallTool(ctx, "create_task", json.RawMessage(`{"title":12}`))
		assert.True(t, errors.Is(err, ErrInvalidArguments))

		_, err = a.CallTool(ctx, "create_task", json.RawMessage(`{}`))
		assert.True(t, errors.Is(err, ErrInvalidArguments))
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := a.CallTool(ctx, "create_task", json.RawMessage(`{"title"`))
		assert.True(t, errors.Is(err, ErrInvalidArguments))
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := a.CallTool(ctx, "launch_missiles", nil)
		assert.True(t, errors.Is(err, ErrToolNotFound))
	})
}

func TestCatalog_ToolRunErrorBecomesResult(t *testing.T) {
	cat, err := newCatalog("custom", nil, []Tool{{
		Name: "flaky",
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("upstream unavailable")
		},
	}})
	require.NoError(t, err)

	result, err := cat.CallTool(context.Background(), "flaky", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "upstream unavailable", result.Content[0].Text)
}

func TestNewCatalog_BadSchema(t *testing.T) {
	_, err := newCatalog("custom", nil, []Tool{{
		Name:        "broken",
		InputSchema: json.RawMessage(`{"type": ]`),
	}})
	assert.Error(t, err)
}

func TestResource_ResourceType(t *testing.T) {
	assert.Equal(t, "task", Resource{URI: "task://cline/active"}.ResourceType())
	assert.Equal(t, "credential", Resource{URI: "credential://cline/api-keys"}.ResourceType())
	assert.Equal(t, "file", Resource{URI: "workspace-summary.md"}.ResourceType())
}

func TestDescribeResource_UnknownURIKeepsScheme(t *testing.T) {
	f := newTestFactory()
	a, err := f.ForAgentType("cline")
	require.NoError(t, err)

	res := DescribeResource(a, "file://cline/workspace-summary.md")
	assert.Equal(t, ".md", res.FileType)
	assert.Equal(t, int64(2048), res.SizeBytes)

	res = DescribeResource(a, "credential://cline/api-keys")
	assert.Equal(t, "credential", res.ResourceType())
	assert.Zero(t, res.SizeBytes)
}
