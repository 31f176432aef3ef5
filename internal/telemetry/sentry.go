// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry.
package telemetry

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/livelabel/internal/buildinfo"
	"github.com/tphakala/livelabel/internal/conf"
	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/logger"
)

// DefaultFlushTimeout bounds how long shutdown waits for queued events.
const DefaultFlushTimeout = 2 * time.Second

var (
	pkgLogger  logger.Logger
	loggerOnce sync.Once
)

// GetLogger returns the telemetry package logger.
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("telemetry")
	})
	return pkgLogger
}

// InitSentry initializes the Sentry SDK and routes enhanced errors to it.
// Nothing is initialized unless reporting is explicitly enabled.
func InitSentry(settings *conf.Settings, build *buildinfo.Context) error {
	return initSentry(settings, build, nil)
}

func initSentry(settings *conf.Settings, build *buildinfo.Context, transport sentry.Transport) error {
	if !settings.Sentry.Enabled {
		errors.SetTelemetryReporter(nil)
		GetLogger().Info("error reporting is disabled (opt-in required)")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:        settings.Sentry.DSN,
		SampleRate: 1.0,
		Debug:      false,

		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          build.Release(),
		BeforeSend:       beforeSend,
		Transport:        transport,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("version", build.GetVersion())
		scope.SetContext("platform", map[string]any{
			"num_cpu":    runtime.NumCPU(),
			"go_version": runtime.Version(),
		})
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	GetLogger().Info("error reporting initialized",
		logger.String("release", build.Release()))
	return nil
}

// Flush waits up to timeout for queued events to be delivered.
func Flush(timeout time.Duration) bool {
	if errors.GetTelemetryReporter() == nil {
		return true
	}
	return sentry.Flush(timeout)
}

// beforeSend strips identifying data from every event.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}
