package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultConfig(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, New(nil))
}

func TestNew_JSONOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&Config{Output: &buf, Level: slog.LevelInfo, JSON: true})

	logger.Info("connected", "socket", "/run/snapd.socket")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry, "ts")
	assert.NotContains(t, entry, "time")
	assert.Equal(t, "connected", entry["msg"])
	assert.Equal(t, "/run/snapd.socket", entry["socket"])
}

func TestNew_TextOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&Config{Output: &buf, Level: slog.LevelInfo}).Info("hello", "k", "v")

	assert.Contains(t, buf.String(), "ts=")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestNew_LevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&Config{Output: &buf, Level: slog.LevelWarn})

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_GroupedTimeKeyUntouched(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&Config{Output: &buf, Level: slog.LevelInfo, JSON: true}).
		WithGroup("req").Info("x", "time", "later")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, map[string]any{"time": "later"}, entry["req"])
}

func TestOpen_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "snapc.log")
	logger, closer, err := Open(FileConfig{Path: path, Level: slog.LevelDebug, MaxSizeMB: 1, MaxBackups: 1})
	require.NoError(t, err)

	logger.Debug("first")
	logger.Error("second", "error", "boom")
	require.NoError(t, closer.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var msgs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		msgs = append(msgs, entry["msg"].(string))
	}
	assert.Equal(t, []string{"first", "second"}, msgs)
}

func TestOpen_Stderr(t *testing.T) {
	t.Parallel()

	logger, closer, err := Open(FileConfig{Level: slog.LevelInfo})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.NoError(t, closer.Close())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
