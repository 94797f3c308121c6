package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected slog.Level
	}{
		{"debug level", LevelDebug, slog.LevelDebug},
		{"info level", LevelInfo, slog.LevelInfo},
		{"warn level", LevelWarn, slog.LevelWarn},
		{"warning alias", LogLevel("WARNING"), slog.LevelWarn},
		{"error level", LevelError, slog.LevelError},
		{"unknown defaults to info", LogLevel("loud"), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.level))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewLogger(t *testing.T) {
	t.Run("stdout text logger", func(t *testing.T) {
		logger, err := New(Config{Level: LevelInfo, Format: FormatText, Output: "stdout"})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("file logger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "pingscan.log")
		logger, err := New(Config{Level: LevelDebug, Format: FormatJSON, Output: path})
		require.NoError(t, err)

		logger.Info("file message", "key", "value")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "file message")
	})

	t.Run("invalid directory for file logger", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(base, []byte("x"), 0600))

		_, err := New(Config{Output: filepath.Join(base, "sub", "log.txt")})
		assert.Error(t, err)
	})
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelWarn, Format: FormatText}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestLoggerWithMethods(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatJSON}, &buf)

	logger.WithComponent("scheduler").
		WithScanID("scan-1").
		WithAddress("10.0.0.1").
		WithError(assert.AnError).
		Info("probe recorded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "scan-1", entry["scan_id"])
	assert.Equal(t, "10.0.0.1", entry["address"])
	assert.Equal(t, assert.AnError.Error(), entry["error"])
	assert.Equal(t, "probe recorded", entry["msg"])
}

func TestSetAndGetDefault(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(Config{Level: LevelDebug, Format: FormatText}, &buf))

	Debug("debug line")
	Info("info line")
	Warn("warn line")
	Error("error line")

	out := buf.String()
	for _, line := range []string{"debug line", "info line", "warn line", "error line"} {
		assert.True(t, strings.Contains(out, line), "missing %q", line)
	}
}

func TestNewDiscard(t *testing.T) {
	logger := NewDiscard()
	assert.NotPanics(t, func() { logger.Error("nothing") })
}
