package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromString(t *testing.T) {
	tests := []struct {
		name      string
		levelStr  string
		wantLevel Level
	}{
		{"debug", "debug", LevelDebug},
		{"info", "info", LevelInfo},
		{"warn", "warn", LevelWarn},
		{"error", "error", LevelError},
		{"DEBUG uppercase", "DEBUG", LevelDebug},
		{"unknown defaults to info", "invalid", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewFromString(tt.levelStr, &bytes.Buffer{})
			assert.Equal(t, tt.wantLevel, logger.GetLevel())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"WARN", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		logLevel   Level
		logFunc    func(*Logger)
		wantOutput bool
	}{
		{"debug level logs debug", LevelDebug, func(l *Logger) { l.Debug("test") }, true},
		{"info level filters debug", LevelInfo, func(l *Logger) { l.Debug("test") }, false},
		{"info level logs info", LevelInfo, func(l *Logger) { l.Info("test") }, true},
		{"warn level filters info", LevelWarn, func(l *Logger) { l.Info("test") }, false},
		{"warn level logs warn", LevelWarn, func(l *Logger) { l.Warn("test") }, true},
		{"error level filters warn", LevelError, func(l *Logger) { l.Warn("test") }, false},
		{"error level logs error", LevelError, func(l *Logger) { l.Error("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			logger := New(tt.logLevel, output)

			tt.logFunc(logger)

			assert.Equal(t, tt.wantOutput, output.Len() > 0)
		})
	}
}

func TestLogger_ConsoleFormat(t *testing.T) {
	output := &bytes.Buffer{}
	logger := New(LevelDebug, output)

	logger.Warn("tier %s failed after %d attempts", "primary", 3)

	got := output.String()
	assert.Contains(t, got, "WARN")
	assert.Contains(t, got, "tier primary failed after 3 attempts")
}

func TestLogger_JSONFormatWithFields(t *testing.T) {
	output := &bytes.Buffer{}
	logger := NewWithFormat(LevelInfo, FormatJSON, output).With("user_id", "u-1")

	logger.Info("turn handled")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(output.Bytes()), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "turn handled", entry["msg"])
	assert.Equal(t, "u-1", entry["user_id"])
}

func TestLogger_SetLevelSharedWithChildren(t *testing.T) {
	output := &bytes.Buffer{}
	parent := New(LevelInfo, output)
	child := parent.With("component", "engine")

	child.Debug("hidden")
	assert.Zero(t, output.Len())

	parent.SetLevel(LevelDebug)
	child.Debug("visible")
	assert.True(t, strings.Contains(output.String(), "visible"))
	assert.Equal(t, LevelDebug, child.GetLevel())
}

func TestNop(t *testing.T) {
	logger := Nop()
	require.NotNil(t, logger)
	logger.Error("dropped %d", 1)
	assert.NoError(t, logger.Sync())
}

func TestNew_NilOutput(t *testing.T) {
	logger := New(LevelInfo, nil)
	require.NotNil(t, logger)
	logger.Info("test")
}
