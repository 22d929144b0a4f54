package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/codingagent/config"
)

func newTestApp(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := newApp()
	require.NoError(t, cmd.ParseFlags(append([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...)))
	return cmd
}

func TestLoadClientConfigFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CODING_AGENT_MODEL", "gpt-4o")
	t.Setenv("CODING_AGENT_SERVER_URL", "http://tools.internal:8092/mcp/")

	cmd := newTestApp(t, "--model", "gpt-4.1-mini", "--temperature", "0.5", "--max-tool-rounds", "7")
	cfg, err := loadClientConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1-mini", cfg.Model)
	assert.InDelta(t, 0.5, cfg.Temperature, 1e-9)
	assert.Equal(t, 7, cfg.MaxToolRounds)
	assert.Equal(t, "http://tools.internal:8092/mcp/", cfg.ServerURL, "unset flags keep the environment value")
}

func TestLoadClientConfigRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	require.NoError(t, os.Unsetenv("OPENAI_API_KEY"))

	_, err := loadClientConfig(newTestApp(t))
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}
