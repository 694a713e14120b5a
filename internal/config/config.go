// Package config provides configuration loading for extractd.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables, with hardcoded defaults filling the gaps.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete extractd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	LLM        LLMConfig        `koanf:"llm"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Voting     VotingConfig     `koanf:"voting"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	// Provider selects the backend: "anthropic", "openai", or "disabled".
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	APIKey    Secret   `koanf:"api_key"`
	BaseURL   string   `koanf:"base_url"`
	MaxTokens int      `koanf:"max_tokens"`
	Timeout   Duration `koanf:"timeout"`
}

// ExtractionConfig holds pipeline configuration.
type ExtractionConfig struct {
	DefaultStrategy    string   `koanf:"default_strategy"`
	MinChunkSize       int      `koanf:"min_chunk_size"`
	SessionDeadline    Duration `koanf:"session_deadline"`
	MaxConcurrentTasks int      `koanf:"max_concurrent_tasks"`
	TaskTimeout        Duration `koanf:"task_timeout"`
	SessionTTL         Duration `koanf:"session_ttl"`
	MaxSessions        int      `koanf:"max_sessions"`
}

// VotingConfig holds multi-strategy voting configuration.
type VotingConfig struct {
	ConfidenceEpsilon float64  `koanf:"confidence_epsilon"`
	NumericTolerance  float64  `koanf:"numeric_tolerance"`
	DateToleranceDays int      `koanf:"date_tolerance_days"`
	PriorityOrder     []string `koanf:"priority_order"`
	AutoResolve       *bool    `koanf:"auto_resolve"`
}

// applyDefaults fills zero values with defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9190
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "disabled"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(60 * time.Second)
	}

	if cfg.Extraction.MinChunkSize == 0 {
		cfg.Extraction.MinChunkSize = 500
	}
	if cfg.Extraction.SessionDeadline == 0 {
		cfg.Extraction.SessionDeadline = Duration(10 * time.Minute)
	}
	if cfg.Extraction.MaxConcurrentTasks == 0 {
		cfg.Extraction.MaxConcurrentTasks = 3
	}
	if cfg.Extraction.TaskTimeout == 0 {
		cfg.Extraction.TaskTimeout = Duration(90 * time.Second)
	}
	if cfg.Extraction.SessionTTL == 0 {
		cfg.Extraction.SessionTTL = Duration(time.Hour)
	}
	if cfg.Extraction.MaxSessions == 0 {
		cfg.Extraction.MaxSessions = 1000
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	switch c.LLM.Provider {
	case "disabled", "anthropic", "openai":
	default:
		return fmt.Errorf("invalid llm provider: %q", c.LLM.Provider)
	}
	if c.LLM.Provider != "disabled" && !c.LLM.APIKey.IsSet() {
		return fmt.Errorf("llm provider %q requires an API key", c.LLM.Provider)
	}

	if c.Extraction.MinChunkSize < 0 {
		return fmt.Errorf("min_chunk_size cannot be negative")
	}
	if c.Extraction.MaxConcurrentTasks < 1 {
		return fmt.Errorf("max_concurrent_tasks must be at least 1")
	}
	if c.Extraction.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1")
	}

	if c.Voting.ConfidenceEpsilon < 0 || c.Voting.ConfidenceEpsilon > 1 {
		return fmt.Errorf("confidence_epsilon must be in [0, 1]")
	}
	if c.Voting.NumericTolerance < 0 {
		return fmt.Errorf("numeric_tolerance cannot be negative")
	}
	if c.Voting.DateToleranceDays < 0 {
		return fmt.Errorf("date_tolerance_days cannot be negative")
	}

	return nil
}
