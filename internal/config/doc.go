// Package config handles configuration loading for agent-relay.
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
//	reply:
//	  completion:
//	    api_key: "${ANTHROPIC_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	routing:
//	  forward_timeout: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Agent identity:
//
//	agent:
//	  id: "agent_a"
//	  public_url: "http://localhost:6000"  # defaults to http://<server.http_addr>
//
// Server settings:
//
//	server:
//	  http_addr: "localhost:6000"
//
// Registry backend (chosen once at startup, never swapped at runtime):
//
//	registry:
//	  backend: "file"           # file or redis
//	  file:
//	    path: "registry.json"
//	  redis:
//	    addr: "localhost:6379"
//	    key_prefix: "agent-relay:agents"
//
// Routing:
//
//	routing:
//	  max_depth: 1
//	  forward_timeout: "30s"
//
// Conversation logs:
//
//	conversation:
//	  log_dir: "logs"
//	  ledger_path: ""           # set to enable the SQLite ledger
//
// Reply generator:
//
//	reply:
//	  provider: "echo"          # echo or completion
//	  completion:
//	    base_url: "https://api.anthropic.com"
//	    api_key: "${ANTHROPIC_API_KEY}"
//	    model: "claude-3-5-sonnet-20241022"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
