// Package config provides YAML configuration loading for the chimera CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/chimera/engine"
	"github.com/hupe1980/chimera/logging"
)

// Model providers understood by the CLI.
const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvProvider        = "CHIMERA_MODEL_PROVIDER"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
)

// Config represents the complete chimera configuration
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Model     ModelConfig     `yaml:"model"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// EngineConfig mirrors engine.Config.
type EngineConfig struct {
	StageTimeout   time.Duration `yaml:"stage_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	MergeBack      bool          `yaml:"merge_back"`
	// HistoryCap bounds the event bus history.
	HistoryCap int `yaml:"history_cap"`
}

// ModelConfig selects and tunes the LLM provider
type ModelConfig struct {
	// Provider is one of mock, openai or anthropic.
	Provider string `yaml:"provider"`
	// Name is the provider specific model name (empty = provider default)
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// APIKey is usually taken from the environment instead.
	APIKey string `yaml:"api_key,omitempty"`
}

// WorkspaceConfig configures where generated files and artifacts live.
type WorkspaceConfig struct {
	// Path is the workspace root on disk (empty = in-memory workspace)
	Path string `yaml:"path"`
	// ArtifactRoot is the directory inside the workspace holding artifacts.
	ArtifactRoot string `yaml:"artifact_root"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address of /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			StageTimeout:   engine.DefaultConfig.StageTimeout,
			MaxRetries:     engine.DefaultConfig.MaxRetries,
			RetryBaseDelay: engine.DefaultConfig.RetryBaseDelay,
			HistoryCap:     1000,
		},
		Model: ModelConfig{
			Provider:    ProviderMock,
			Temperature: 0.2,
			MaxTokens:   4096,
		},
		Workspace: WorkspaceConfig{
			ArtifactRoot: ".chimera/artifacts",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case ProviderMock, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("model.provider must be one of mock, openai, anthropic, got %q", c.Model.Provider)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be between 0 and 2")
	}
	if c.Model.MaxTokens < 0 {
		return fmt.Errorf("model.max_tokens must not be negative")
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}
	if c.Engine.StageTimeout < 0 || c.Engine.RetryBaseDelay < 0 {
		return fmt.Errorf("engine durations must not be negative")
	}
	if c.Engine.HistoryCap <= 0 {
		return fmt.Errorf("engine.history_cap must be positive")
	}
	if c.Workspace.ArtifactRoot == "" {
		return fmt.Errorf("workspace.artifact_root is required")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ApplyEnv overrides the provider and API key from the environment. The key
// variable matching the selected provider is used when no key is configured.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if p := strings.TrimSpace(getenv(EnvProvider)); p != "" {
		c.Model.Provider = strings.ToLower(p)
	}
	if c.Model.APIKey != "" {
		return
	}
	switch c.Model.Provider {
	case ProviderOpenAI:
		c.Model.APIKey = getenv(EnvOpenAIAPIKey)
	case ProviderAnthropic:
		c.Model.APIKey = getenv(EnvAnthropicAPIKey)
	}
}

// EngineConfig converts the engine section into an engine.Config.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		StageTimeout:   c.Engine.StageTimeout,
		MaxRetries:     c.Engine.MaxRetries,
		RetryBaseDelay: c.Engine.RetryBaseDelay,
		MergeBack:      c.Engine.MergeBack,
	}
}

// EngineOptions returns an engine option applying the engine section.
func (c *Config) EngineOptions() func(o *engine.Options) {
	return func(o *engine.Options) {
		o.Config = c.EngineConfig()
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
