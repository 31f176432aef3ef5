package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFanoutHandlerRespectsEachLevel(t *testing.T) {
	t.Parallel()

	var console, file bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&console, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	log := slog.New(h).With("module", "capture").WithGroup("frame")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	log.Debug("frame dropped", "n", 7)
	log.Warn("device read failed")

	assert.NotContains(t, console.String(), "frame dropped")
	assert.Contains(t, console.String(), "device read failed")
	assert.Contains(t, file.String(), "frame dropped")
	assert.Contains(t, file.String(), `"module":"capture"`)
	assert.Contains(t, file.String(), `"frame":{"n":7}`)
}
