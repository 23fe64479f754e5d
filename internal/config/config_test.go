package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("GITHUB_OWNER", "acme")
	t.Setenv("GITHUB_REPO", "desktop")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Updater.InitialDelay)
	assert.Equal(t, 4*time.Hour, cfg.Updater.CheckInterval)
	assert.Equal(t, 30*time.Second, cfg.Updater.CheckTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Updater.WaitPoll)
	assert.Equal(t, 70, cfg.Updater.WaitAttempts)
	assert.Equal(t, 35*time.Second, cfg.WaitCeiling())
	assert.Equal(t, 72*time.Hour, cfg.Updater.KeepBackupFor)
	assert.False(t, cfg.Updater.Disabled)

	assert.Equal(t, "https://api.github.com", cfg.Github.APIURL)
	assert.Equal(t, "checksums.txt", cfg.Github.Checksums)
	assert.Equal(t, "127.0.0.1:9092", cfg.Web.BindAddress)
	assert.Equal(t, "updaterd.db", cfg.DBPath)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "updaterd", cfg.Telemetry.ServiceName)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("GITHUB_OWNER", "acme")
	t.Setenv("GITHUB_REPO", "desktop")
	t.Setenv("GITHUB_TOKEN", "secret")
	t.Setenv("GITHUB_API_URL", "https://ghe.example.com/api/v3")
	t.Setenv("UPDATER_CHECK_INTERVAL", "15m")
	t.Setenv("UPDATER_WAIT_ATTEMPTS", "10")
	t.Setenv("WEB_USERNAME", "admin")
	t.Setenv("WEB_PASSWORD", "hunter2")
	t.Setenv("OTLP_ENDPOINT", "collector:4317")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Github.Token)
	assert.Equal(t, "https://ghe.example.com/api/v3", cfg.Github.APIURL)
	assert.Equal(t, 15*time.Minute, cfg.Updater.CheckInterval)
	assert.Equal(t, 5*time.Second, cfg.WaitCeiling())
	assert.Equal(t, "admin", cfg.Web.Username)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing repository",
			env:     map[string]string{"GITHUB_OWNER": "acme"},
			wantErr: "GITHUB_OWNER and GITHUB_REPO are required",
		},
		{
			name: "half basic auth",
			env: map[string]string{
				"GITHUB_OWNER": "acme",
				"GITHUB_REPO":  "desktop",
				"WEB_USERNAME": "admin",
			},
			wantErr: "WEB_USERNAME and WEB_PASSWORD must be set together",
		},
		{
			name: "zero timeout",
			env: map[string]string{
				"GITHUB_OWNER":          "acme",
				"GITHUB_REPO":           "desktop",
				"UPDATER_CHECK_TIMEOUT": "0s",
			},
			wantErr: "UPDATER_CHECK_TIMEOUT must be positive",
		},
		{
			name: "unparsable duration",
			env: map[string]string{
				"GITHUB_OWNER":           "acme",
				"GITHUB_REPO":            "desktop",
				"UPDATER_CHECK_INTERVAL": "often",
			},
			wantErr: "error processing env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_SlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}

	for in, want := range tests {
		cfg := Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}
