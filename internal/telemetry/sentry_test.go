package telemetry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/livelabel/internal/buildinfo"
	"github.com/tphakala/livelabel/internal/conf"
	"github.com/tphakala/livelabel/internal/errors"
)

// mockTransport implements sentry.Transport for testing
type mockTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *mockTransport) Configure(sentry.ClientOptions) {} //nolint:gocritic // interface signature

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *mockTransport) Flush(time.Duration) bool { return true }

func (t *mockTransport) FlushWithContext(context.Context) bool { return true }

func (t *mockTransport) Close() {}

func (t *mockTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func enabledSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Sentry.Enabled = true
	settings.Sentry.DSN = "https://public@example.com/1"
	return settings
}

func TestInitSentryDisabled(t *testing.T) {
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	require.NoError(t, InitSentry(&conf.Settings{}, buildinfo.NewContext("1.0.0", "")))
	assert.Nil(t, errors.GetTelemetryReporter())
	assert.True(t, Flush(time.Millisecond))
}

func TestEnhancedErrorsAreReported(t *testing.T) {
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	transport := &mockTransport{}
	require.NoError(t, initSentry(enabledSettings(), buildinfo.NewContext("1.2.3", ""), transport))
	require.NotNil(t, errors.GetTelemetryReporter())

	_ = errors.New(fmt.Errorf("camera unplugged")).
		Component("capture").
		Category(errors.CategoryCaptureDevice).
		Build()

	events := transport.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "livelabel@1.2.3", ev.Release)
	assert.Equal(t, "capture", ev.Tags["component"])
	assert.Equal(t, string(errors.CategoryCaptureDevice), ev.Tags["category"])
	assert.Contains(t, ev.Message, "camera unplugged")
}

func TestBeforeSendStripsIdentifyingData(t *testing.T) {
	ev := sentry.NewEvent()
	ev.User = sentry.User{ID: "someone", IPAddress: "10.0.0.1"}
	ev.ServerName = "kitchen-pi"
	ev.Contexts["device"] = sentry.Context{"name": "x"}
	ev.Contexts["platform"] = sentry.Context{"num_cpu": 4}
	ev.Extra["component"] = "capture"
	ev.Extra["path"] = "/home/someone"
	ev.Tags["hostname"] = "kitchen-pi"
	ev.Tags["category"] = "capture-device"

	out := beforeSend(ev, nil)
	assert.True(t, out.User.IsEmpty())
	assert.Empty(t, out.ServerName)
	assert.NotContains(t, out.Contexts, "device")
	assert.Contains(t, out.Contexts, "platform")
	assert.Equal(t, map[string]any{"component": "capture"}, out.Extra)
	assert.NotContains(t, out.Tags, "hostname")
	assert.Equal(t, "capture-device", out.Tags["category"])
}
