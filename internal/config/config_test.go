package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load(nil)
	require.NoError(t, err)

	require.Equal(t, DefaultServerPort, cfg.Server.Port)
	require.Equal(t, DefaultModelProvider, cfg.Model.Provider)
	require.Equal(t, DefaultOrchestratorReprompts, cfg.Orchestrator.RepromptMax)
	require.Equal(t, DefaultApprovalOnTimeout, cfg.Approval.OnTimeout)
	require.Equal(t, DefaultSimApprovalPolicy, cfg.Sim.ApprovalPolicy)
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte("server:\n  port: 9191\norchestrator:\n  reprompt_max: 5\napproval:\n  timeout: 30s\n")
	require.NoError(t, os.WriteFile(configPath, content, 0644))

	cmd := &cobra.Command{}
	cmd.Flags().String("config", configPath, "")

	cfg, err := Load(cmd)
	require.NoError(t, err)

	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, 5, cfg.Orchestrator.RepromptMax)
	require.Equal(t, "30s", cfg.Approval.Timeout)
	// Untouched sections keep defaults.
	require.Equal(t, DefaultServerLogLevel, cfg.Server.LogLevel)
}

func TestLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("CARELANE_SERVER_PORT", "7070")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}

func TestDurationOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		defaultVal string
		want       time.Duration
		wantErr    bool
	}{
		{"explicit value", "5s", "10s", 5 * time.Second, false},
		{"fallback", "", "10s", 10 * time.Second, false},
		{"whitespace falls back", "  ", "1m", time.Minute, false},
		{"invalid value", "not-a-duration", "10s", 0, true},
		{"both empty", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DurationOrDefault(tt.value, tt.defaultVal)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
