// Package config implements the runtime's configuration surface: a YAML
// file plus environment-variable overrides. Grounded on config/loader.go's
// Config/Loader split, trimmed to the fields the core itself consumes —
// no HTTP/gRPC server, Qdrant, or telemetry-exporter config, since
// transport is out of scope (spec.md §1).
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the runtime's full configuration surface (spec.md §6:
// "a configuration map ... providing provider endpoints/keys, MCP server
// URLs, concurrency limits, timeouts, storage root").
type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`
	Retry        RetryConfig        `yaml:"retry" env:"RETRY"`
	Breaker      BreakerConfig      `yaml:"breaker" env:"BREAKER"`
	LLM          LLMConfig          `yaml:"llm" env:"LLM"`
	MCP          MCPConfig          `yaml:"mcp" env:"MCP"`
	Conversation ConversationConfig `yaml:"conversation" env:"CONVERSATION"`
	Storage      StorageConfig      `yaml:"storage" env:"STORAGE"`
	Log          LogConfig          `yaml:"log" env:"LOG"`
}

type OrchestratorConfig struct {
	MaxConcurrentTasks    int           `yaml:"max_concurrent_tasks" env:"MAX_CONCURRENT_TASKS"`
	TaskTimeout           time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
	PollInterval          time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	ContextRetentionLimit int           `yaml:"context_retention_limit" env:"CONTEXT_RETENTION_LIMIT"`
}

type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Strategy     string        `yaml:"strategy" env:"STRATEGY"`
	Multiplier   float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter       bool          `yaml:"jitter" env:"JITTER"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	SuccessThreshold int           `yaml:"success_threshold" env:"SUCCESS_THRESHOLD"`
	OpenTimeout      time.Duration `yaml:"open_timeout" env:"OPEN_TIMEOUT"`
	HalfOpenBudget   int           `yaml:"half_open_budget" env:"HALF_OPEN_BUDGET"`
}

// ProviderConfig describes one registered LLM backend. Concrete vendor
// wire protocols are out of scope; this is just endpoint/key plumbing.
type ProviderConfig struct {
	Name     string   `yaml:"name" env:"NAME"`
	Endpoint string   `yaml:"endpoint" env:"ENDPOINT"`
	APIKey   string   `yaml:"api_key" env:"API_KEY"`
	Model    string   `yaml:"model" env:"MODEL"`
	Caps     []string `yaml:"capabilities" env:"CAPABILITIES"`
}

type LLMConfig struct {
	Strategy         string           `yaml:"strategy" env:"STRATEGY"`
	HealthCheckEvery time.Duration    `yaml:"health_check_every" env:"HEALTH_CHECK_EVERY"`
	Providers        []ProviderConfig `yaml:"providers" env:"-"` // slice of structs: YAML-only, no env override
}

// MCPServerConfig is one remote MCP server endpoint.
type MCPServerConfig struct {
	Name string `yaml:"name" env:"NAME"`
	URL  string `yaml:"url" env:"URL"`
	// BearerSecret, if set, signs a short-lived JWT bearer token presented
	// to this server on dial (see mcppool.BearerAuth).
	BearerSecret string `yaml:"bearer_secret" env:"BEARER_SECRET"`
	BearerIssuer string `yaml:"bearer_issuer" env:"BEARER_ISSUER"`
}

type MCPConfig struct {
	ReconnectDelay time.Duration     `yaml:"reconnect_delay" env:"RECONNECT_DELAY"`
	MaxReconnects  int               `yaml:"max_reconnects" env:"MAX_RECONNECTS"`
	Servers        []MCPServerConfig `yaml:"servers" env:"-"`
}

type ConversationConfig struct {
	AutoSummarize    bool `yaml:"auto_summarize" env:"AUTO_SUMMARIZE"`
	SummaryThreshold int  `yaml:"summary_threshold" env:"SUMMARY_THRESHOLD"`
	PreserveRecent   int  `yaml:"preserve_recent" env:"PRESERVE_RECENT"`
	MinBatchSize     int  `yaml:"min_batch_size" env:"MIN_BATCH_SIZE"`
	// ContextWindowPairs is N in spec.md §4.H: the number of trailing
	// user/assistant message pairs the facade folds into a request's
	// message context, independent of when the store itself summarises.
	ContextWindowPairs int `yaml:"context_window_pairs" env:"CONTEXT_WINDOW_PAIRS"`
	// MaxContextTokens caps the token-estimated size of the assembled
	// message context (system prompt + history + new turn); 0 disables the
	// check and leaves trimming to ContextWindowPairs alone.
	MaxContextTokens int `yaml:"max_context_tokens" env:"MAX_CONTEXT_TOKENS"`
	// CacheAddr, if set, enables the Redis-backed summary/session cache
	// (conversation/cache). Empty disables it — the store stays purely
	// in-memory.
	CacheAddr string        `yaml:"cache_addr" env:"CACHE_ADDR"`
	CacheTTL  time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// StorageConfig is the on-disk state layout root (spec.md §6):
// <root>/feedback, <root>/rules.json, <root>/adaptation_history.json,
// <root>/memory/<type>.
type StorageConfig struct {
	Root   string `yaml:"root" env:"ROOT"`
	Driver string `yaml:"driver" env:"DRIVER"` // "sqlite" or "json"
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Environment string `yaml:"environment" env:"ENVIRONMENT"` // "production" | "development"
}

// Default returns the configuration used absent a file or env overrides.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxConcurrentTasks:    10,
			TaskTimeout:           5 * time.Minute,
			PollInterval:          50 * time.Millisecond,
			ContextRetentionLimit: 500,
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Strategy:     "EXPONENTIAL",
			Multiplier:   2.0,
			Jitter:       true,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenTimeout:      30 * time.Second,
			HalfOpenBudget:   3,
		},
		LLM: LLMConfig{Strategy: "ROUND_ROBIN", HealthCheckEvery: 30 * time.Second},
		MCP: MCPConfig{ReconnectDelay: time.Second, MaxReconnects: 5},
		Conversation: ConversationConfig{
			AutoSummarize:      true,
			SummaryThreshold:   20,
			PreserveRecent:     6,
			MinBatchSize:       5,
			ContextWindowPairs: 10,
			MaxContextTokens:   8000,
		},
		Storage: StorageConfig{Root: "./data", Driver: "sqlite"},
		Log:     LogConfig{Level: "info", Environment: "production"},
	}
}

// Validate checks invariants the loader alone cannot enforce.
func (c *Config) Validate() error {
	var errs []string

	if c.Orchestrator.MaxConcurrentTasks <= 0 {
		errs = append(errs, "orchestrator.max_concurrent_tasks must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "retry.max_retries must be non-negative")
	}
	if c.Breaker.FailureThreshold <= 0 {
		errs = append(errs, "breaker.failure_threshold must be positive")
	}
	if c.Storage.Root == "" {
		errs = append(errs, "storage.root is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
