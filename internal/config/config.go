// ABOUTME: Configuration loading and parsing for agent-relay
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete agent-relay configuration
type Config struct {
	Agent        AgentConfig        `yaml:"agent"`
	Server       ServerConfig       `yaml:"server"`
	Registry     RegistryConfig     `yaml:"registry"`
	Routing      RoutingConfig      `yaml:"routing"`
	Conversation ConversationConfig `yaml:"conversation"`
	Reply        ReplyConfig        `yaml:"reply"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// AgentConfig identifies this agent to its peers
type AgentConfig struct {
	ID string `yaml:"id"`

	// PublicURL is the endpoint peers should deliver to. Defaults to
	// http://<server.http_addr> when unset.
	PublicURL string `yaml:"public_url"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// RegistryConfig selects and configures the discovery backend
type RegistryConfig struct {
	// Backend is "file" or "redis". The choice is made once at startup;
	// there is no runtime fallback between backends.
	Backend string `yaml:"backend"`
	File    FileRegistryConfig  `yaml:"file"`
	Redis   RedisRegistryConfig `yaml:"redis"`
}

// FileRegistryConfig holds the file-backed registry configuration
type FileRegistryConfig struct {
	Path string `yaml:"path"`
}

// RedisRegistryConfig holds the Redis-backed registry configuration
type RedisRegistryConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RoutingConfig holds depth bounds and forwarding timeouts
type RoutingConfig struct {
	MaxDepth int `yaml:"max_depth"`

	ForwardTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ForwardTimeoutRaw string `yaml:"forward_timeout"`
}

// ConversationConfig holds conversation log locations
type ConversationConfig struct {
	LogDir string `yaml:"log_dir"`

	// LedgerPath enables the SQLite conversation ledger when set.
	LedgerPath string `yaml:"ledger_path"`
}

// ReplyConfig selects the reply generator
type ReplyConfig struct {
	// Provider is "echo" or "completion".
	Provider   string           `yaml:"provider"`
	Completion CompletionConfig `yaml:"completion"`

	// Improve enables the outbound message improver when using the
	// completion provider.
	Improve bool `yaml:"improve"`
}

// CompletionConfig holds the chat-completion client configuration
type CompletionConfig struct {
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	MaxTokens    int    `yaml:"max_tokens"`
	SystemPrompt string `yaml:"system_prompt"`

	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
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

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
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

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "localhost:6000"
	}
	if c.Agent.PublicURL == "" {
		c.Agent.PublicURL = "http://" + c.Server.HTTPAddr
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = "file"
	}
	if c.Registry.File.Path == "" {
		c.Registry.File.Path = "registry.json"
	}
	if c.Registry.Redis.KeyPrefix == "" {
		c.Registry.Redis.KeyPrefix = "agent-relay:agents"
	}
	if c.Routing.MaxDepth == 0 {
		c.Routing.MaxDepth = 1
	}
	if c.Conversation.LogDir == "" {
		c.Conversation.LogDir = "logs"
	}
	if c.Reply.Provider == "" {
		c.Reply.Provider = "echo"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Agent.ID == "" {
		return fmt.Errorf("agent.id is required")
	}

	switch c.Registry.Backend {
	case "file":
		if c.Registry.File.Path == "" {
			return fmt.Errorf("registry.file.path is required for the file backend")
		}
	case "redis":
		if c.Registry.Redis.Addr == "" {
			return fmt.Errorf("registry.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("registry.backend must be \"file\" or \"redis\", got %q", c.Registry.Backend)
	}

	if c.Routing.MaxDepth < 1 {
		return fmt.Errorf("routing.max_depth must be at least 1")
	}

	switch c.Reply.Provider {
	case "echo":
	case "completion":
		if c.Reply.Completion.BaseURL == "" {
			return fmt.Errorf("reply.completion.base_url is required for the completion provider")
		}
		if c.Reply.Completion.APIKey == "" {
			return fmt.Errorf("reply.completion.api_key is required for the completion provider")
		}
	default:
		return fmt.Errorf("reply.provider must be \"echo\" or \"completion\", got %q", c.Reply.Provider)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Routing.ForwardTimeoutRaw != "" {
		cfg.Routing.ForwardTimeout, err = time.ParseDuration(cfg.Routing.ForwardTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing forward_timeout %q: %w", cfg.Routing.ForwardTimeoutRaw, err)
		}
	}

	if cfg.Reply.Completion.TimeoutRaw != "" {
		cfg.Reply.Completion.Timeout, err = time.ParseDuration(cfg.Reply.Completion.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing reply timeout %q: %w", cfg.Reply.Completion.TimeoutRaw, err)
		}
	}

	return nil
}
