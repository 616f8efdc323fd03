// ABOUTME: Immutable policy snapshot consumed by the rule engine.
// ABOUTME: Connection caps, permission tables, content filters, and rate thresholds.

package rules

import (
	"regexp"
	"time"

	"github.com/cockroachdb/errors"
)

// Window is the rate-limit window granularity.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
)

// Duration returns the wall-clock span of the window.
func (w Window) Duration() time.Duration {
	if w == WindowHour {
		return time.Hour
	}
	return time.Minute
}

// ResourcePolicy scopes resource access for one agent type.
type ResourcePolicy struct {
	AllowedTypes      []string `yaml:"allowed_types" json:"allowed_types"`
	DeniedTypes       []string `yaml:"denied_types" json:"denied_types"`
	MaxSizeBytes      int64    `yaml:"max_size_bytes" json:"max_size_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions" json:"allowed_extensions"`
}

// InputPolicy constrains inbound message content.
type InputPolicy struct {
	MaxLength       int      `yaml:"max_length" json:"max_length"`
	BlockedPatterns []string `yaml:"blocked_patterns" json:"blocked_patterns"`
}

// ToolPolicy constrains tool execution.
type ToolPolicy struct {
	Timeout         time.Duration `yaml:"-" json:"-"`
	BlockedCommands []string      `yaml:"blocked_commands" json:"blocked_commands"`
	MaxArgBytes     int           `yaml:"max_arg_bytes" json:"max_arg_bytes"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout" json:"timeout"`
}

// WebhookPolicy constrains inbound webhooks.
type WebhookPolicy struct {
	RequireSignature bool  `yaml:"require_signature" json:"require_signature"`
	MaxPayloadBytes  int64 `yaml:"max_payload_bytes" json:"max_payload_bytes"`
}

// RateLimitPolicy holds per-request-type thresholds. Generic requests are
// limited per minute and per hour; webhooks and tool calls use fixed
// per-minute thresholds.
type RateLimitPolicy struct {
	RequestsPerMinute  int `yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour    int `yaml:"requests_per_hour" json:"requests_per_hour"`
	WebhooksPerMinute  int `yaml:"webhooks_per_minute" json:"webhooks_per_minute"`
	ToolCallsPerMinute int `yaml:"tool_calls_per_minute" json:"tool_calls_per_minute"`
}

// Config is one immutable policy snapshot. The engine replaces it wholesale
// through UpdateConfig; nothing mutates a snapshot after Compile.
type Config struct {
	Version               int                       `yaml:"version" json:"version"`
	MaxConnections        map[string]int            `yaml:"max_connections" json:"max_connections"`
	DefaultMaxConnections int                       `yaml:"default_max_connections" json:"default_max_connections"`
	Resources             map[string]ResourcePolicy `yaml:"resources" json:"resources"`
	Input                 InputPolicy               `yaml:"input" json:"input"`
	Tools                 ToolPolicy                `yaml:"tools" json:"tools"`
	Webhook               WebhookPolicy             `yaml:"webhook" json:"webhook"`
	RateLimits            RateLimitPolicy           `yaml:"rate_limits" json:"rate_limits"`

	blockedRe []*regexp.Regexp
}

// Default returns the stock policy tables.
func Default() *Config {
	return &Config{
		Version: 1,
		MaxConnections: map[string]int{
			"cline":          3,
			"github-copilot": 5,
			"amazon-q":       5,
		},
		DefaultMaxConnections: 2,
		Resources: map[string]ResourcePolicy{
			"cline": {
				AllowedTypes:      []string{"file", "directory", "task"},
				DeniedTypes:       []string{"credential"},
				MaxSizeBytes:      2 << 20,
				AllowedExtensions: []string{".go", ".ts", ".js", ".py", ".rs", ".md", ".json", ".yaml", ".yml"},
			},
			"github-copilot": {
				AllowedTypes:      []string{"file", "snippet", "usage"},
				DeniedTypes:       []string{"credential", "billing"},
				MaxSizeBytes:      1 << 20,
				AllowedExtensions: []string{".go", ".ts", ".js", ".py", ".rs", ".java", ".md"},
			},
			"amazon-q": {
				AllowedTypes:      []string{"file", "scan", "recommendation"},
				DeniedTypes:       []string{"credential"},
				MaxSizeBytes:      1 << 20,
				AllowedExtensions: []string{".go", ".ts", ".js", ".py", ".java", ".md"},
			},
		},
		Input: InputPolicy{
			MaxLength: 10000,
			BlockedPatterns: []string{
				`(?i)password\s*[:=]`,
				`(?i)secret\s*[:=]`,
				`(?i)api[_-]?key\s*[:=]`,
				`(?i)bearer\s+[a-z0-9._-]{20,}`,
				`(?i)token\s*[:=]\s*\S{16,}`,
			},
		},
		Tools: ToolPolicy{
			Timeout:         30 * time.Second,
			BlockedCommands: []string{"sudo", "rm", "chmod", "chown", "curl", "wget", "eval"},
			MaxArgBytes:     10240,
		},
		Webhook: WebhookPolicy{
			RequireSignature: true,
			MaxPayloadBytes:  1 << 20,
		},
		RateLimits: RateLimitPolicy{
			RequestsPerMinute:  60,
			RequestsPerHour:    1000,
			WebhooksPerMinute:  30,
			ToolCallsPerMinute: 20,
		},
	}
}

// Compile validates the snapshot and precompiles the blocked-content
// patterns. Must be called before the snapshot is handed to the engine.
func (c *Config) Compile() error {
	if c.DefaultMaxConnections <= 0 {
		return errors.New("default_max_connections must be positive")
	}
	if c.Input.MaxLength <= 0 {
		return errors.New("input.max_length must be positive")
	}
	if c.Webhook.MaxPayloadBytes <= 0 {
		return errors.New("webhook.max_payload_bytes must be positive")
	}

	if c.Tools.TimeoutRaw != "" {
		timeout, err := time.ParseDuration(c.Tools.TimeoutRaw)
		if err != nil {
			return errors.Wrapf(err, "parsing tools.timeout %q", c.Tools.TimeoutRaw)
		}
		c.Tools.Timeout = timeout
	}

	c.blockedRe = make([]*regexp.Regexp, 0, len(c.Input.BlockedPatterns))
	for _, pattern := range c.Input.BlockedPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return errors.Wrapf(err, "compiling blocked pattern %q", pattern)
		}
		c.blockedRe = append(c.blockedRe, re)
	}
	return nil
}

// ConnectionCap returns the connection cap for an agent type, falling back
// to the generic default for unconfigured types.
func (c *Config) ConnectionCap(agentType string) int {
	if cap, ok := c.MaxConnections[agentType]; ok {
		return cap
	}
	return c.DefaultMaxConnections
}

// limit returns the threshold for a request type in a given window, or 0
// when the combination is unlimited.
func (c *Config) limit(requestType ActionType, window Window) int {
	switch requestType {
	case ActionWebhook:
		if window == WindowMinute {
			return c.RateLimits.WebhooksPerMinute
		}
		return 0
	case ActionToolExecution:
		if window == WindowMinute {
			return c.RateLimits.ToolCallsPerMinute
		}
		return 0
	default:
		if window == WindowHour {
			return c.RateLimits.RequestsPerHour
		}
		return c.RateLimits.RequestsPerMinute
	}
}
