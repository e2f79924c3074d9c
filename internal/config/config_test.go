package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Address())
	assert.Equal(t, "bull", cfg.Queue.Prefix)
	assert.Equal(t, 10*time.Minute, cfg.Queue.JanitorInterval)
	assert.Equal(t, 5, cfg.Worker.PublishConcurrency)
	assert.Equal(t, 10.0, cfg.Worker.RateLimit)
	assert.Equal(t, "0 */6 * * *", cfg.Worker.TrendCron)
	assert.Equal(t, 30, cfg.Auth.TaskCreateLimit)
	assert.Equal(t, 30*time.Minute, cfg.AI.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.Dashboard.Interval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address())
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestKeywords(t *testing.T) {
	w := Worker{TrendKeywords: " AI, ,创业 ,"}
	assert.Equal(t, []string{"AI", "创业"}, w.Keywords())
	assert.Empty(t, Worker{}.Keywords())
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"-4", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Log{Level: tt.in}.SlogLevel())
		})
	}
}
