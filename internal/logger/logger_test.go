package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfig_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := Config{Format: "json", Level: zapcore.InfoLevel}.New(&buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("Record updated", zap.String("isbn", "B1"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Record updated", entry["msg"])
	assert.Equal(t, "B1", entry["isbn"])
	assert.Equal(t, "info", entry["level"])
}

func TestConfig_ConsoleLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewConfig().New(&buf)
	require.NoError(t, err)

	log.Debug("hidden")
	assert.Zero(t, buf.Len())
	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestConfig_UnknownFormat(t *testing.T) {
	_, err := Config{Format: "xml"}.New(&bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
