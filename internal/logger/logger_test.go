package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/livelabel/internal/logger"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	return records
}

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo)

	log.Debug("hidden")
	log.Info("shown", logger.String("label", "Messy Desk"))
	log.Warn("warned")

	records := decodeLines(t, buf)
	require.Len(t, records, 2)
	assert.Equal(t, "shown", records[0]["msg"])
	assert.Equal(t, "Messy Desk", records[0]["label"])
	assert.Equal(t, "WARN", records[1]["level"])
}

func TestModuleScopingAndFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug).
		Module("session").
		Module("loop").
		With(logger.Int("stride", 10))

	log.Debug("tick", logger.Float32("probability", 0.123456))

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	assert.Equal(t, "session.loop", records[0]["module"])
	assert.InDelta(t, 10, records[0]["stride"], 0)
	assert.InDelta(t, 0.123, records[0]["probability"], 0.0001)
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo)

	ctx := logger.WithTraceID(context.Background(), "run-123")
	log.WithContext(ctx).Info("started")
	log.WithContext(context.Background()).Info("no trace")

	records := decodeLines(t, buf)
	require.Len(t, records, 2)
	assert.Equal(t, "run-123", records[0]["trace_id"])
	assert.NotContains(t, records[1], "trace_id")
}

func TestErrorFieldNil(t *testing.T) {
	t.Parallel()

	f := logger.Error(nil)
	assert.Equal(t, "error", f.Key)
	assert.Nil(t, f.Value)
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path},
	})
	require.NoError(t, err)

	cl.Module("model").Info("model loaded", logger.Int("labels", 3))
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records := decodeLines(t, bytes.NewBuffer(data))
	require.Len(t, records, 1)
	assert.Equal(t, "model", records[0]["module"])
}

func TestNewCentralLoggerNilConfig(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(nil)
	require.Error(t, err)
}
