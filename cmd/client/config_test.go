package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfigCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "vcscompare"}
	addPersistentFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolateConfig(t)

	cfg, err := loadConfig(newConfigCmd(t))
	require.NoError(t, err)

	assert.Equal(t, formatText, cfg.Format)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0, cfg.APILevel)
	assert.Empty(t, cfg.Token)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token":"file-token","format":"yaml","api_level":1}`), 0o644))
	t.Setenv("VCSCOMPARE_CONFIG_PATH", path)

	cfg, err := loadConfig(newConfigCmd(t))
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "file-token", cfg.Token)
	assert.Equal(t, formatYAML, cfg.Format)
	assert.Equal(t, 1, cfg.APILevel)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: file-token\nformat: yaml\nlog_level: warn\n"), 0o644))
	t.Setenv("VCSCOMPARE_CONFIG_PATH", path)
	t.Setenv("VCSCOMPARE_TOKEN", "env-token")
	t.Setenv("VCSCOMPARE_LOG_LEVEL", "debug")

	cfg, err := loadConfig(newConfigCmd(t, "--format", "json", "--log-level", "error"))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, formatJSON, cfg.Format)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		args    []string
	}{
		{name: "format", args: []string{"--format", "xml"}},
		{name: "api level", args: []string{"--api-level", "-1"}},
		{name: "malformed file", content: "{not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if tt.content != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			}
			t.Setenv("VCSCOMPARE_CONFIG_PATH", path)

			_, err := loadConfig(newConfigCmd(t, tt.args...))
			assert.Error(t, err)
		})
	}
}
