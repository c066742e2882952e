package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuildLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := build(Config{Level: "WARN"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", zap.String("k", "v"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, `"k": "v"`)
}

func TestBuildInvalidLevel(t *testing.T) {
	_, err := build(Config{Level: "chatty"}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestBuildWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scorecast.log")
	logger, err := build(Config{File: path, MaxSizeMB: 1}, zapcore.AddSync(&bytes.Buffer{}))
	require.NoError(t, err)

	logger.Info("model loaded", zap.Int("rows", 10))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "model loaded", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, float64(10), entry["rows"])
}
