package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: "info", Format: "json"}
	logger := NewLoggerWithWriter(cfg, &buf)

	logger.Info("hello", slog.String("component", "test"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "test", entry["component"])
}

func TestNewLoggerWithWriter_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: "info", Format: "json"}
	logger := NewLoggerWithWriter(cfg, &buf)

	logger.Info("login", slog.String("password", "hunter2"))

	assert.NotContains(t, buf.String(), "hunter2")
}

func TestStreamAndSystemLevels(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: "stream", Format: "json"}
	logger := NewLoggerWithWriter(cfg, &buf)

	ctx := context.Background()
	Stream(ctx, logger, "streaming packets")
	System(ctx, logger, "channel started")

	dec := json.NewDecoder(&buf)
	var first, second map[string]any
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))

	assert.Equal(t, "STREAM", first["level"])
	assert.Equal(t, "SYSTEM", second["level"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"stream": LevelStream,
		"debug":  slog.LevelDebug,
		"info":   slog.LevelInfo,
		"warn":   slog.LevelWarn,
		"error":  slog.LevelError,
		"system": LevelSystem,
		"":       slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestWithComponentAndWithCID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(Config{Level: "info", Format: "json"}, &buf)
	logger = WithComponent(logger, "registry")
	logger = WithCID(logger, 3)
	logger.Info("update_channel")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, float64(3), entry["cid"])
}

func TestNewLogger_WritesToRollingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broadcaster.log")

	rolling, err := NewRollingWriter(path, 100)
	require.NoError(t, err)

	logger := NewLogger(Config{Level: "info", Format: "json"}, rolling)
	logger.Info("startup complete")

	lines := rolling.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "startup complete")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "startup complete")
}
