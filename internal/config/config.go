// ABOUTME: Configuration loading and parsing for agentgate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/contextd/agentgate/internal/rules"
)

// Config represents the complete agentgate configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Agents   AgentsConfig   `yaml:"agents"`
	Rules    *rules.Config  `yaml:"rules"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// AgentsConfig holds agent connection timing configuration
type AgentsConfig struct {
	HandshakeTimeout  time.Duration `yaml:"-"`
	HeartbeatInterval time.Duration `yaml:"-"`

	// CredentialedTypes lists agent types that must present a token
	// before the protocol handshake runs. Empty by default; setting it
	// requires auth.jwt_secret.
	CredentialedTypes []string `yaml:"credentialed_types"`

	// Raw string values for YAML unmarshaling
	HandshakeTimeoutRaw  string `yaml:"handshake_timeout"`
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
}

// Credentialed reports whether the agent type requires token authentication.
func (a AgentsConfig) Credentialed(agentType string) bool {
	for _, t := range a.CredentialedTypes {
		if t == agentType {
			return true
		}
	}
	return false
}

// WebhooksConfig holds the per-agent-type shared secrets. An empty secret
// disables signature verification for that type.
type WebhooksConfig struct {
	ClineSecret         string `yaml:"cline_secret"`
	GitHubCopilotSecret string `yaml:"github_copilot_secret"`
	AmazonQSecret       string `yaml:"amazon_q_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with the builtin policy and local defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: "localhost:8080"},
		Agents: AgentsConfig{
			HandshakeTimeout:  30 * time.Second,
			HeartbeatInterval: 30 * time.Second,
		},
		Rules:   rules.Default(),
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if len(c.Agents.CredentialedTypes) > 0 && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when agents.credentialed_types is set")
	}

	if c.Agents.HandshakeTimeout < 0 {
		return fmt.Errorf("agents.handshake_timeout must not be negative")
	}
	if c.Agents.HeartbeatInterval < 0 {
		return fmt.Errorf("agents.heartbeat_interval must not be negative")
	}

	if c.Rules == nil {
		c.Rules = rules.Default()
	}
	if err := c.Rules.Compile(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agents.HandshakeTimeoutRaw != "" {
		cfg.Agents.HandshakeTimeout, err = time.ParseDuration(cfg.Agents.HandshakeTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing handshake_timeout %q: %w", cfg.Agents.HandshakeTimeoutRaw, err)
		}
	}

	if cfg.Agents.HeartbeatIntervalRaw != "" {
		cfg.Agents.HeartbeatInterval, err = time.ParseDuration(cfg.Agents.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Agents.HeartbeatIntervalRaw, err)
		}
	}

	return nil
}
