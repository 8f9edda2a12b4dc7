package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/LavishGent/callgate/internal/config"
)

func TestNewAcceptsKnownLevelsAndFormats(t *testing.T) {
	for _, cfg := range []config.LoggingConfig{
		{Level: "info", Format: "json"},
		{Level: "debug", Format: "text"},
		{Level: "warn"},
		{},
	} {
		logger, err := New(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "verbose"})
	require.Error(t, err)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(config.LoggingConfig{Format: "binary"})
	require.Error(t, err)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(config.LoggingConfig{Backend: "log4j"})
	require.Error(t, err)
}

func TestNewZapBackend(t *testing.T) {
	logger, err := New(config.LoggingConfig{Backend: "zap", Level: "error", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestSlogJSONOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newSlog(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "component", "scheduler")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "scheduler", rec["component"])
	assert.Equal(t, "callgate", rec["service"])
}

func TestZapLoggerWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("queued", "task_id", "t-1")
	logger.Error("failed", "attempt", 3)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "t-1", entries[0].ContextMap()["task_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.EqualValues(t, 3, entries[1].ContextMap()["attempt"])
}

func TestNewZapRejectsUnknownLevel(t *testing.T) {
	_, err := NewZap(config.LoggingConfig{Level: "loud"})
	require.Error(t, err)
}

type capturedLine struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	lines []capturedLine
}

func (c *captureLogger) log(level, msg string, args []any) {
	c.lines = append(c.lines, capturedLine{level: level, msg: msg, args: args})
}

func (c *captureLogger) Debug(msg string, args ...any) { c.log("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any) { c.log("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any) { c.log("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.log("error", msg, args) }

func TestFromLoggerForwardsAttrsAndGroups(t *testing.T) {
	capture := &captureLogger{}
	logger := FromLogger(capture).With("component", "gateway").WithGroup("hot").With("shards", 4)

	logger.Warn("evicted", "key", "reference:getSettings")

	require.Len(t, capture.lines, 1)
	line := capture.lines[0]
	assert.Equal(t, "warn", line.level)
	assert.Equal(t, "evicted", line.msg)
	assert.Equal(t, []any{
		"component", "gateway",
		"hot.shards", int64(4),
		"hot.key", "reference:getSettings",
	}, line.args)
}

func TestFromLoggerMapsLevels(t *testing.T) {
	capture := &captureLogger{}
	logger := FromLogger(capture)

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	var levels []string
	for _, l := range capture.lines {
		levels = append(levels, l.level)
	}
	assert.Equal(t, []string{"debug", "info", "warn", "error"}, levels)
}
