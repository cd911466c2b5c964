package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), "level %q", name)
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("callback failed", "provider", "google", "error", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "callback failed", record["msg"])
	assert.Equal(t, "google", record["provider"])
	assert.Equal(t, "boom", record["error"])
}

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "debug"}, &buf)

	logger.Debug("state issued", "provider", "microsoft")

	out := buf.String()
	assert.Contains(t, out, "state issued")
	assert.Contains(t, out, "provider=microsoft")
	assert.NotContains(t, out, "\x1b[", "no colour when not writing to a terminal")
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signin.log")
	logger, err := New(Config{Output: path, Format: "json"})
	require.NoError(t, err)
	logger.Info("hello")

	_, err = New(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}
