package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the orchestrator.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Absence of the document store or the Redis cache must not prevent
// operation; both are optional.
type Config struct {
	// Persistence (optional)
	MongoURI      string `json:"mongo_uri" env:"TRIPMESH_MONGO_URI,MONGODB_URI"`
	MongoDatabase string `json:"mongo_database" env:"TRIPMESH_MONGO_DB" default:"tripmesh"`
	RedisURL      string `json:"redis_url" env:"TRIPMESH_REDIS_URL,REDIS_URL"`

	// Tool bridge
	PoolSize   int              `json:"pool_size" env:"TRIPMESH_POOL_SIZE" default:"12"`
	ToolPolicy ToolPolicyConfig `json:"tool_policy"`
	// ToolPolicies are per-tool overrides, loaded from PolicyFile.
	ToolPolicies map[string]ToolPolicyConfig `json:"tool_policies"`
	PolicyFile   string                      `json:"policy_file" env:"TRIPMESH_TOOL_POLICY_FILE"`

	// Workflow engine
	RecursionLimit int `json:"recursion_limit" env:"TRIPMESH_RECURSION_LIMIT" default:"200"`

	// Logging
	LogLevel string `json:"log_level" env:"TRIPMESH_LOG_LEVEL" default:"info"`
}

// ToolPolicyConfig is the wire representation of a per-tool execution
// policy. Durations are in seconds to match the policy file. Merged
// policies are always fully populated; Retries may legitimately be
// zero (single attempt).
type ToolPolicyConfig struct {
	TimeoutSec           float64 `yaml:"timeout_sec" json:"timeout_sec"`
	Retries              int     `yaml:"retries" json:"retries"`
	BaseBackoffSec       float64 `yaml:"base_backoff_sec" json:"base_backoff_sec"`
	BackoffJitterSec     float64 `yaml:"backoff_jitter_sec" json:"backoff_jitter_sec"`
	CircuitFailThreshold int     `yaml:"circuit_fail_threshold" json:"circuit_fail_threshold"`
	CircuitOpenSec       float64 `yaml:"circuit_open_sec" json:"circuit_open_sec"`
}

// toolPolicyOverride is the policy-file form of an override. Pointer
// fields distinguish an explicit zero from an absent key, so
// "retries: 0" disables retries instead of inheriting the base value.
type toolPolicyOverride struct {
	TimeoutSec           *float64 `yaml:"timeout_sec"`
	Retries              *int     `yaml:"retries"`
	BaseBackoffSec       *float64 `yaml:"base_backoff_sec"`
	BackoffJitterSec     *float64 `yaml:"backoff_jitter_sec"`
	CircuitFailThreshold *int     `yaml:"circuit_fail_threshold"`
	CircuitOpenSec       *float64 `yaml:"circuit_open_sec"`
}

// DefaultToolPolicyConfig returns the per-tool defaults.
func DefaultToolPolicyConfig() ToolPolicyConfig {
	return ToolPolicyConfig{
		TimeoutSec:           45,
		Retries:              2,
		BaseBackoffSec:       1.0,
		BackoffJitterSec:     0.3,
		CircuitFailThreshold: 3,
		CircuitOpenSec:       60,
	}
}

// Option is a functional configuration option.
type Option func(*Config)

// WithMongo configures the optional document store.
func WithMongo(uri, database string) Option {
	return func(c *Config) {
		c.MongoURI = uri
		if database != "" {
			c.MongoDatabase = database
		}
	}
}

// WithRedis configures the optional result-cache backend.
func WithRedis(url string) Option {
	return func(c *Config) { c.RedisURL = url }
}

// WithPoolSize sets the tool-bridge worker pool size.
func WithPoolSize(n int) Option {
	return func(c *Config) { c.PoolSize = n }
}

// WithRecursionLimit bounds graph node entries per request.
func WithRecursionLimit(n int) Option {
	return func(c *Config) { c.RecursionLimit = n }
}

// WithToolPolicy overrides the policy for one tool.
func WithToolPolicy(tool string, policy ToolPolicyConfig) Option {
	return func(c *Config) {
		if c.ToolPolicies == nil {
			c.ToolPolicies = make(map[string]ToolPolicyConfig)
		}
		c.ToolPolicies[tool] = policy
	}
}

// WithLogLevel sets the log level (debug, info, warn, error).
func WithLogLevel(level string) Option {
	return func(c *Config) { c.LogLevel = level }
}

// NewConfig builds a Config from defaults, environment variables, and
// functional options, then validates it.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		MongoDatabase:  "tripmesh",
		PoolSize:       12,
		ToolPolicy:     DefaultToolPolicyConfig(),
		ToolPolicies:   make(map[string]ToolPolicyConfig),
		RecursionLimit: 200,
		LogLevel:       "info",
	}

	cfg.applyEnvironment()

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.PolicyFile != "" {
		if err := cfg.loadPolicyFile(cfg.PolicyFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvironment() {
	c.MongoURI = envString(c.MongoURI, "TRIPMESH_MONGO_URI", "MONGODB_URI")
	c.MongoDatabase = envString(c.MongoDatabase, "TRIPMESH_MONGO_DB")
	c.RedisURL = envString(c.RedisURL, "TRIPMESH_REDIS_URL", "REDIS_URL")
	c.PolicyFile = envString(c.PolicyFile, "TRIPMESH_TOOL_POLICY_FILE")
	c.LogLevel = envString(c.LogLevel, "TRIPMESH_LOG_LEVEL")
	c.PoolSize = envInt(c.PoolSize, "TRIPMESH_POOL_SIZE")
	c.RecursionLimit = envInt(c.RecursionLimit, "TRIPMESH_RECURSION_LIMIT")
}

// loadPolicyFile reads per-tool policy overrides from a YAML file:
//
//	default:
//	  timeout_sec: 30
//	tools:
//	  optimizer:
//	    timeout_sec: 120
//	    retries: 1
func (c *Config) loadPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading tool policy file %s: %w", path, err)
	}
	var file struct {
		Default *toolPolicyOverride           `yaml:"default"`
		Tools   map[string]toolPolicyOverride `yaml:"tools"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing tool policy file %s: %w", path, err)
	}
	if file.Default != nil {
		c.ToolPolicy = mergePolicy(c.ToolPolicy, *file.Default)
	}
	for name, p := range file.Tools {
		c.ToolPolicies[name] = mergePolicy(c.ToolPolicy, p)
	}
	return nil
}

// mergePolicy applies the override's set fields over the base policy.
func mergePolicy(base ToolPolicyConfig, override toolPolicyOverride) ToolPolicyConfig {
	out := base
	if override.TimeoutSec != nil {
		out.TimeoutSec = *override.TimeoutSec
	}
	if override.Retries != nil {
		out.Retries = *override.Retries
	}
	if override.BaseBackoffSec != nil {
		out.BaseBackoffSec = *override.BaseBackoffSec
	}
	if override.BackoffJitterSec != nil {
		out.BackoffJitterSec = *override.BackoffJitterSec
	}
	if override.CircuitFailThreshold != nil {
		out.CircuitFailThreshold = *override.CircuitFailThreshold
	}
	if override.CircuitOpenSec != nil {
		out.CircuitOpenSec = *override.CircuitOpenSec
	}
	return out
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.PoolSize <= 0 {
		return fmt.Errorf("%w: pool size must be positive, got %d", ErrInvalidConfiguration, c.PoolSize)
	}
	if c.RecursionLimit <= 0 {
		return fmt.Errorf("%w: recursion limit must be positive, got %d", ErrInvalidConfiguration, c.RecursionLimit)
	}
	if c.ToolPolicy.TimeoutSec <= 0 {
		return fmt.Errorf("%w: tool timeout must be positive", ErrInvalidConfiguration)
	}
	if c.ToolPolicy.Retries < 0 {
		return fmt.Errorf("%w: tool retries cannot be negative", ErrInvalidConfiguration)
	}
	return nil
}

func envString(current string, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return current
}

func envInt(current int, names ...string) int {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return current
}
