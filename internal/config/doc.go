// Package config handles configuration loading for agentgate.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${AGENTGATE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agents:
//	  handshake_timeout: "30s"
//	  heartbeat_interval: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # WebSocket, webhook and API endpoints
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${AGENTGATE_JWT_SECRET}"
//
// Agent timing and credential requirements:
//
//	agents:
//	  handshake_timeout: "30s"
//	  heartbeat_interval: "30s"
//	  credentialed_types: ["github-copilot", "amazon-q"]
//
// Admission rules (connection caps, rate limits, content policy):
//
//	rules:
//	  max_connections:
//	    cline: 3
//	  default_max_connections: 2
//	  rate_limits:
//	    requests_per_minute: 60
//
// Webhook secrets:
//
//	webhooks:
//	  github_copilot_secret: "${COPILOT_WEBHOOK_SECRET}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/agentgate/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Omitted sections keep the defaults from Default().
package config
