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

	"github.com/flemzord/coauthor/internal/security"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, "level %q", in)
		assert.Equal(t, want, got, "level %q", in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{Level: "loud", Format: "xml", MaxBackups: -1}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown level")
	assert.Contains(t, err.Error(), "unknown format")
	assert.Contains(t, err.Error(), "non-negative")

	ok := Config{}
	ok.Defaults()
	assert.NoError(t, ok.Validate())
	assert.Equal(t, "info", ok.Level)
	assert.Equal(t, 10, ok.MaxSizeMB)
	assert.True(t, *ok.Compress)
}

func TestNew_TextConsole(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "warn"}, &buf, nil)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "session_id", "s1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "session_id=s1")
}

func TestNew_JSONConsoleRedacts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer, err := New(Config{Format: "json"}, &buf, security.NewRedactor())
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("provider ready", "api_key", "sk-abcdefghijklmnopqrstuvwxyz")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "provider ready", rec["msg"])
	assert.Equal(t, security.RedactPlaceholder, rec["api_key"])
}

func TestNew_TeesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "coauthor.log")
	var console bytes.Buffer
	logger, closer, err := New(Config{File: path}, &console, security.NewRedactor())
	require.NoError(t, err)

	logger.With("module", "gateway.http").Info("listening", "addr", ":5555")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "listening")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "listening", rec["msg"])
	assert.Equal(t, "gateway.http", rec["module"])
	assert.Equal(t, ":5555", rec["addr"])
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, _, err := New(Config{Format: "xml"}, &bytes.Buffer{}, nil)
	assert.Error(t, err)
}
