package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chimera/config"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.EnvProvider, "")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "chimera dev\n", out)
}

func TestRunInMemory(t *testing.T) {
	out, _, err := execute(t, "run", "--provider", "mock", "a", "tiny", "cli")
	require.NoError(t, err)

	assert.Contains(t, out, "run ")
	assert.Contains(t, out, "intake")
	assert.Contains(t, out, "review")
	assert.Contains(t, out, "artifacts (2):")
	assert.Contains(t, out, "README.md")
	assert.Contains(t, out, "done")
}

func TestRunWritesWorkspace(t *testing.T) {
	dir := t.TempDir()
	_, logs, err := execute(t, "run", "--workspace", dir, "--log-format", "json", "--log-level", "debug", "hello")
	require.NoError(t, err)

	for _, name := range []string{"plan.json", "README.md", "NOTES.md", "review.json"} {
		_, statErr := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, statErr, name)
	}
	matches, err := filepath.Glob(filepath.Join(dir, ".chimera", "artifacts", "*", "README.md"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	assert.Contains(t, logs, `"run started"`)
	assert.Contains(t, logs, "workflow-complete")
}

func TestRunWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chimera.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_retries: 0\nlog:\n  level: error\n"), 0o644))

	out, logs, err := execute(t, "run", "--config", path, "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "attempt 1")
	assert.NotContains(t, out, "attempt 2")
	assert.Empty(t, logs)
}

func TestRunRejectsBadInput(t *testing.T) {
	_, _, err := execute(t, "run", "--provider", "ollama", "hello")
	assert.ErrorContains(t, err, "invalid configuration")

	_, _, err = execute(t, "run")
	assert.Error(t, err)

	t.Setenv(config.EnvOpenAIAPIKey, "")
	_, _, err = execute(t, "run", "--provider", "openai", "hello")
	assert.ErrorContains(t, err, "OPENAI_API_KEY")

	_, _, err = execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "hello")
	assert.ErrorContains(t, err, "failed to read config file")
}
