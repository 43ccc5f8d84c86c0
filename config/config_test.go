package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chimera/engine"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ProviderMock, cfg.Model.Provider)
	assert.Equal(t, 60*time.Second, cfg.Engine.StageTimeout)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.RetryBaseDelay)
	assert.False(t, cfg.Engine.MergeBack)
	assert.Empty(t, cfg.Workspace.Path)
	assert.Empty(t, cfg.Metrics.Addr)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "openai provider", modify: func(c *Config) { c.Model.Provider = ProviderOpenAI }},
		{name: "unknown provider", modify: func(c *Config) { c.Model.Provider = "ollama" }, wantErr: true},
		{name: "temperature too low", modify: func(c *Config) { c.Model.Temperature = -0.1 }, wantErr: true},
		{name: "temperature too high", modify: func(c *Config) { c.Model.Temperature = 2.1 }, wantErr: true},
		{name: "negative retries", modify: func(c *Config) { c.Engine.MaxRetries = -1 }, wantErr: true},
		{name: "negative timeout", modify: func(c *Config) { c.Engine.StageTimeout = -time.Second }, wantErr: true},
		{name: "zero history", modify: func(c *Config) { c.Engine.HistoryCap = 0 }, wantErr: true},
		{name: "missing artifact root", modify: func(c *Config) { c.Workspace.ArtifactRoot = "" }, wantErr: true},
		{name: "bad log level", modify: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
		{name: "bad log format", modify: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chimera.yaml")
	content := `
engine:
  stage_timeout: 5s
  max_retries: 1
  merge_back: true
model:
  provider: anthropic
  name: claude-sonnet-4-0
workspace:
  path: ./out
metrics:
  addr: ":9090"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Engine.StageTimeout)
	assert.Equal(t, 1, cfg.Engine.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.RetryBaseDelay, "unset keys keep defaults")
	assert.True(t, cfg.Engine.MergeBack)
	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, "claude-sonnet-4-0", cfg.Model.Name)
	assert.Equal(t, "./out", cfg.Workspace.Path)
	assert.Equal(t, ".chimera/artifacts", cfg.Workspace.ArtifactRoot)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [1, 2"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chimera.yaml")
	cfg := DefaultConfig()
	cfg.Model.Provider = ProviderOpenAI
	cfg.Engine.StageTimeout = 90 * time.Second

	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvProvider:        "OpenAI",
		EnvOpenAIAPIKey:    "sk-openai",
		EnvAnthropicAPIKey: "sk-anthropic",
	}
	getenv := func(k string) string { return env[k] }

	cfg := DefaultConfig()
	cfg.ApplyEnv(getenv)
	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, "sk-openai", cfg.Model.APIKey)

	cfg = DefaultConfig()
	cfg.Model.Provider = ProviderAnthropic
	delete(env, EnvProvider)
	cfg.ApplyEnv(getenv)
	assert.Equal(t, "sk-anthropic", cfg.Model.APIKey)

	cfg = DefaultConfig()
	cfg.Model.Provider = ProviderAnthropic
	cfg.Model.APIKey = "configured"
	cfg.ApplyEnv(getenv)
	assert.Equal(t, "configured", cfg.Model.APIKey)
}

func TestEngineOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.MergeBack = true
	cfg.Engine.MaxRetries = 0

	var opts engine.Options
	cfg.EngineOptions()(&opts)

	assert.True(t, opts.Config.MergeBack)
	assert.Equal(t, 0, opts.Config.MaxRetries)
	assert.Equal(t, cfg.Engine.StageTimeout, opts.Config.StageTimeout)
}
