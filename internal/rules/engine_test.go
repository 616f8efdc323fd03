// ABOUTME: Tests for the rule engine: admission decisions, rate budgets, config swaps.
// ABOUTME: Uses fixed clocks through EvalContext so window behavior is deterministic.

package rules

import (
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(Default(), slog.Default())
	require.NoError(t, err)
	return engine
}

func TestApply_ConnectionCap(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("allows below the cap", func(t *testing.T) {
		for count := 0; count < 3; count++ {
			d := engine.Apply(Action{Type: ActionConnect, AgentType: "cline", ConnectionCount: count}, EvalContext{})
			assert.True(t, d.Allowed, "count %d should be admitted", count)
		}
	})

	t.Run("denies at the cap", func(t *testing.T) {
		d := engine.Apply(Action{Type: ActionConnect, AgentType: "cline", ConnectionCount: 3}, EvalContext{})
		require.False(t, d.Allowed)
		assert.Contains(t, d.Message, "connection limit reached for agent type 'cline': 3")
		assert.True(t, errors.Is(d.Err(), ErrConnectionDenied))
	})

	t.Run("unknown agent type uses the default cap", func(t *testing.T) {
		d := engine.Apply(Action{Type: ActionConnect, AgentType: "mystery", ConnectionCount: 2}, EvalContext{})
		assert.False(t, d.Allowed)
	})
}

func TestApply_RateLimitWindow(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// The default generic limit is 60 per minute.
	for i := 0; i < 60; i++ {
		d := engine.Apply(Action{Type: ActionInput, AgentType: "cline", Content: "hello"},
			EvalContext{Now: now})
		require.True(t, d.Allowed, "request %d should pass", i+1)
	}

	d := engine.Apply(Action{Type: ActionInput, AgentType: "cline", Content: "hello"},
		EvalContext{Now: now})
	require.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 60, d.Limit)

	var rle *RateLimitError
	require.True(t, errors.As(d.Err(), &rle))
	assert.True(t, errors.Is(d.Err(), ErrRateLimited))

	t.Run("budget resets after the window", func(t *testing.T) {
		later := now.Add(61 * time.Second)
		d := engine.Apply(Action{Type: ActionInput, AgentType: "cline", Content: "hello"},
			EvalContext{Now: later})
		assert.True(t, d.Allowed)
		assert.Equal(t, 59, d.Remaining)
	})
}

func TestApply_DeniedDoesNotConsumeBudget(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Failed validation must not reduce the remaining budget.
	for i := 0; i < 5; i++ {
		d := engine.Apply(Action{Type: ActionToolExecution, AgentType: "cline", ToolName: "sudo"},
			EvalContext{Now: now})
		require.False(t, d.Allowed)
		assert.Equal(t, "Tool 'sudo' is blocked", d.Message)
	}

	d := engine.Apply(Action{Type: ActionToolExecution, AgentType: "cline", ToolName: "create_task"},
		EvalContext{Now: now})
	require.True(t, d.Allowed)
	assert.Equal(t, 19, d.Remaining, "denied attempts must not have consumed tool-call budget")
}

func TestApply_RateCheckRunsAlongsideValidation(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Exhaust the tool-call budget with clean requests.
	for i := 0; i < 20; i++ {
		require.True(t, engine.Apply(Action{Type: ActionToolExecution, AgentType: "cline", ToolName: "create_task"},
			EvalContext{Now: now}).Allowed)
	}

	// A blocked tool with no budget left reports both dimensions.
	d := engine.Apply(Action{Type: ActionToolExecution, AgentType: "cline", ToolName: "sudo"},
		EvalContext{Now: now})
	require.False(t, d.Allowed)
	got := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		got[i] = v.Rule
	}
	assert.Contains(t, got, "tool_blocked")
	assert.Contains(t, got, "rate_limit")
	assert.Contains(t, d.Message, "Tool 'sudo' is blocked")
	assert.Contains(t, d.Message, "rate limit exceeded")
}

func TestRateLimitError_CarriesActionKey(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 60; i++ {
		require.True(t, engine.Apply(Action{Type: ActionInput, AgentType: "amazon-q", Content: "x"},
			EvalContext{Now: now}).Allowed)
	}

	d := engine.Apply(Action{Type: ActionInput, AgentType: "amazon-q", Content: "x"}, EvalContext{Now: now})
	require.False(t, d.Allowed)

	var rle *RateLimitError
	require.True(t, errors.As(d.Err(), &rle))
	assert.Equal(t, "amazon-q", rle.AgentType)
	assert.Equal(t, "input", rle.RequestType)
	assert.Contains(t, rle.Error(), "amazon-q/input")
}

func TestApply_PerAgentTypeBuckets(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 60; i++ {
		d := engine.Apply(Action{Type: ActionInput, AgentType: "cline", Content: "x"}, EvalContext{Now: now})
		require.True(t, d.Allowed)
	}
	require.False(t, engine.Apply(Action{Type: ActionInput, AgentType: "cline", Content: "x"}, EvalContext{Now: now}).Allowed)

	// A different agent type has its own budget.
	d := engine.Apply(Action{Type: ActionInput, AgentType: "amazon-q", Content: "x"}, EvalContext{Now: now})
	assert.True(t, d.Allowed)
}

func TestApply_HourWindow(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d := engine.Apply(Action{Type: ActionInput, AgentType: "cline", Content: "x"},
		EvalContext{Now: now, TimeWindow: WindowHour})
	require.True(t, d.Allowed)
	assert.Equal(t, 1000, d.Limit)
	assert.Equal(t, 999, d.Remaining)
}

func TestApply_ResourceAccess(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name    string
		action  Action
		allowed bool
	}{
		{
			name:    "allowed type passes",
			action:  Action{Type: ActionResourceAccess, AgentType: "cline", ResourceType: "file", SizeBytes: 100, FileType: ".go"},
			allowed: true,
		},
		{
			name:    "denied type is rejected",
			action:  Action{Type: ActionResourceAccess, AgentType: "cline", ResourceType: "credential"},
			allowed: false,
		},
		{
			name:    "unlisted type is rejected",
			action:  Action{Type: ActionResourceAccess, AgentType: "cline", ResourceType: "socket"},
			allowed: false,
		},
		{
			name:    "oversized resource is rejected",
			action:  Action{Type: ActionResourceAccess, AgentType: "cline", ResourceType: "file", SizeBytes: 3 << 20, FileType: ".go"},
			allowed: false,
		},
		{
			name:    "disallowed extension is rejected",
			action:  Action{Type: ActionResourceAccess, AgentType: "cline", ResourceType: "file", FileType: ".exe"},
			allowed: false,
		},
		{
			name:    "extension check is case-insensitive",
			action:  Action{Type: ActionResourceAccess, AgentType: "cline", ResourceType: "file", FileType: ".GO"},
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Apply(tt.action, EvalContext{})
			assert.Equal(t, tt.allowed, d.Allowed, d.Message)
		})
	}
}

func TestApply_DenyListWinsOverAllowList(t *testing.T) {
	cfg := Default()
	cfg.Resources["cline"] = ResourcePolicy{
		AllowedTypes: []string{"file"},
		DeniedTypes:  []string{"file"},
	}
	engine, err := NewEngine(cfg, slog.Default())
	require.NoError(t, err)

	d := engine.Apply(Action{Type: ActionResourceAccess, AgentType: "cline", ResourceType: "file"}, EvalContext{})
	require.False(t, d.Allowed)
	assert.Contains(t, d.Message, "denied")
}

func TestApply_InputValidation(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("length limit", func(t *testing.T) {
		long := make([]byte, 10001)
		for i := range long {
			long[i] = 'a'
		}
		d := engine.Apply(Action{Type: ActionInput, AgentType: "cline", Content: string(long)}, EvalContext{})
		require.False(t, d.Allowed)
		assert.Contains(t, d.Message, "exceeds maximum 10000")
	})

	t.Run("credential patterns", func(t *testing.T) {
		for _, content := range []string{
			"password: hunter2",
			"API_KEY=abc123",
			"Secret = sssh",
		} {
			d := engine.Apply(Action{Type: ActionInput, AgentType: "cline", Content: content}, EvalContext{})
			assert.False(t, d.Allowed, "content %q should be blocked", content)
		}
	})

	t.Run("plain content passes", func(t *testing.T) {
		d := engine.Apply(Action{Type: ActionInput, AgentType: "cline", Content: "please list files"}, EvalContext{})
		assert.True(t, d.Allowed)
	})
}

func TestApply_Webhook(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("signature required", func(t *testing.T) {
		d := engine.Apply(Action{Type: ActionWebhook, AgentType: "github-copilot", PayloadBytes: 10, SignaturePresent: false}, EvalContext{})
		require.False(t, d.Allowed)
		assert.Contains(t, d.Message, "signature")
	})

	t.Run("oversized payload", func(t *testing.T) {
		d := engine.Apply(Action{Type: ActionWebhook, AgentType: "github-copilot", PayloadBytes: 2 << 20, SignaturePresent: true}, EvalContext{})
		assert.False(t, d.Allowed)
	})

	t.Run("valid webhook passes", func(t *testing.T) {
		d := engine.Apply(Action{Type: ActionWebhook, AgentType: "github-copilot", PayloadBytes: 512, SignaturePresent: true}, EvalContext{})
		assert.True(t, d.Allowed)
		assert.Equal(t, 30, d.Limit)
	})
}

func TestUpdateConfig(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("version must advance", func(t *testing.T) {
		stale := Default() // version 1, same as current
		err := engine.UpdateConfig(stale)
		require.Error(t, err)
	})

	t.Run("zero version auto-advances", func(t *testing.T) {
		next := Default()
		next.Version = 0
		require.NoError(t, engine.UpdateConfig(next))
		assert.Equal(t, 2, engine.Config().Version)
	})

	t.Run("new snapshot takes effect", func(t *testing.T) {
		next := Default()
		next.Version = 10
		next.MaxConnections["cline"] = 1
		require.NoError(t, engine.UpdateConfig(next))

		d := engine.Apply(Action{Type: ActionConnect, AgentType: "cline", ConnectionCount: 1}, EvalContext{})
		assert.False(t, d.Allowed)
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		bad := Default()
		bad.Version = 99
		bad.Input.BlockedPatterns = []string{"("}
		require.Error(t, engine.UpdateConfig(bad))
		// Engine keeps serving the previous snapshot.
		assert.Equal(t, 10, engine.Config().Version)
	})

	t.Run("nil config is rejected", func(t *testing.T) {
		require.Error(t, engine.UpdateConfig(nil))
	})
}

func TestApply_RateLimitStateSurvivesConfigSwap(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 30; i++ {
		require.True(t, engine.Apply(Action{Type: ActionInput, AgentType: "cline", Content: "x"}, EvalContext{Now: now}).Allowed)
	}

	next := Default()
	next.Version = 2
	require.NoError(t, engine.UpdateConfig(next))

	d := engine.Apply(Action{Type: ActionInput, AgentType: "cline", Content: "x"}, EvalContext{Now: now})
	require.True(t, d.Allowed)
	assert.Equal(t, 29, d.Remaining, "existing window counts must survive the swap")
}
