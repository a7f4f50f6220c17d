// Package config loads and validates Titan's runtime configuration.
// Configuration comes from a YAML file with environment variable overrides;
// a .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration object.
type Config struct {
	DataDir string `yaml:"data_dir"`

	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	Chat    ChatConfig    `yaml:"chat"`
	Safety  SafetyConfig  `yaml:"safety"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig configures the inference providers and model tiers.
type LLMConfig struct {
	// OpenAI-compatible chat completion endpoint.
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	// Tier to model mapping. Build intents always use the strong model.
	FastModel    string `yaml:"fast_model"`
	DefaultModel string `yaml:"default_model"`
	StrongModel  string `yaml:"strong_model"`

	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Temperature float64       `yaml:"temperature"`

	// Gemini key for the classifier/title Completer. Optional; the
	// classifier falls back to heuristics when empty.
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
}

// ChatConfig bounds the conversation loop.
type ChatConfig struct {
	MaxRounds         int `yaml:"max_rounds"`
	MaxEmptyRetries   int `yaml:"max_empty_retries"`
	MaxRefusalRetries int `yaml:"max_refusal_retries"`
	HistoryWindow     int `yaml:"history_window"`

	// Result truncation budgets, in bytes.
	ToolResultLimit    int `yaml:"tool_result_limit"`
	ContentResultLimit int `yaml:"content_result_limit"`

	// Round after which older tool results in a build turn are compressed
	// to short previews.
	CompressAfterRound int `yaml:"compress_after_round"`

	// WorkspaceDir is the root the self-modification file tools operate on.
	WorkspaceDir string `yaml:"workspace_dir"`
}

// SafetyConfig configures the pre-loop gates.
type SafetyConfig struct {
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	SuspensionAfter    int           `yaml:"suspension_after"` // injection attempts before cooldown
	SuspensionCooldown time.Duration `yaml:"suspension_cooldown"`
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		DataDir: ".titan",
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:      "https://api.openai.com/v1",
			FastModel:    "gpt-4o-mini",
			DefaultModel: "gpt-4o",
			StrongModel:  "gpt-4o",
			Timeout:      5 * time.Minute,
			MaxRetries:   3,
			Temperature:  0.7,
			GeminiModel:  "gemini-2.0-flash",
		},
		Chat: ChatConfig{
			MaxRounds:          12,
			MaxEmptyRetries:    3,
			MaxRefusalRetries:  3,
			HistoryWindow:      30,
			ToolResultLimit:    4_000,
			ContentResultLimit: 24_000,
			CompressAfterRound: 8,
			WorkspaceDir:       ".",
		},
		Safety: SafetyConfig{
			RateLimitPerMinute: 20,
			RateLimitBurst:     5,
			SuspensionAfter:    3,
			SuspensionCooldown: 15 * time.Minute,
		},
		Logging: LoggingConfig{
			Debug: false,
			Level: "info",
		},
	}
}

// Load reads the config file at path (optional), applies env overrides, and
// validates the result. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("TITAN_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TITAN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("TITAN_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Debug = b
		}
	}
	if v := os.Getenv("TITAN_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chat.MaxRounds = n
		}
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Chat.MaxRounds < 1 {
		return fmt.Errorf("chat.max_rounds must be >= 1, got %d", c.Chat.MaxRounds)
	}
	if c.Chat.HistoryWindow < 1 {
		return fmt.Errorf("chat.history_window must be >= 1, got %d", c.Chat.HistoryWindow)
	}
	if c.Chat.ToolResultLimit < 256 {
		return fmt.Errorf("chat.tool_result_limit too small: %d", c.Chat.ToolResultLimit)
	}
	if c.Safety.RateLimitPerMinute < 1 {
		return fmt.Errorf("safety.rate_limit_per_minute must be >= 1, got %d", c.Safety.RateLimitPerMinute)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be >= 0, got %d", c.LLM.MaxRetries)
	}
	return nil
}

// DatabasePath returns the SQLite file location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "titan.db")
}

// ModelForTier maps a tier name to the configured model.
func (c *LLMConfig) ModelForTier(tier string) string {
	switch tier {
	case "fast":
		return c.FastModel
	case "strong":
		return c.StrongModel
	default:
		return c.DefaultModel
	}
}
