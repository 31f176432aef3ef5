package analysis

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/livelabel/internal/api"
	"github.com/tphakala/livelabel/internal/conf"
	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/logger"
	"github.com/tphakala/livelabel/internal/mqtt"
	"github.com/tphakala/livelabel/internal/observability"
	"github.com/tphakala/livelabel/internal/session"
)

// RealtimeOptions are the command line choices for the realtime mode.
type RealtimeOptions struct {
	// ImageLoop replaces the webcam with a still image.
	ImageLoop string
	// AutoStart starts the session without waiting for the API. It is implied
	// when the HTTP API is disabled.
	AutoStart bool
}

// RealtimeAnalysis runs the live session with its HTTP API, result publishing
// and metrics until SIGINT or SIGTERM.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings, opts RealtimeOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.NewMetrics(session.StateNames())
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}

	device, err := NewDevice(settings, opts.ImageLoop)
	if err != nil {
		return err
	}

	var renderers []session.Renderer
	renderers = append(renderers, consoleRenderer{log: GetLogger()})

	var broadcaster *api.Broadcaster
	if settings.HTTP.Enabled {
		apiCfg := api.ConfigFromSettings(settings)
		broadcaster = api.NewBroadcaster(apiCfg.Heartbeat, apiCfg.ClientBuffer, metrics.HTTP)
		renderers = append(renderers, broadcaster)
	}

	var (
		mqttClient mqtt.Client
		publisher  *mqtt.Publisher
	)
	if settings.MQTT.Enabled {
		mqttCfg := mqtt.ConfigFromSettings(settings)
		mqttClient = mqtt.NewClient(mqttCfg, metrics.MQTT)
		publisher = mqtt.NewPublisher(mqttClient, mqttCfg)
		renderers = append(renderers, publisher)
	}

	p, err := NewPipeline(settings, metrics, device, renderers...)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			GetLogger().Warn("failed to release model", logger.Error(err))
		}
		if publisher != nil {
			publisher.Close()
		}
		if mqttClient != nil {
			mqttClient.Disconnect()
		}
	}()

	GetLogger().Info("starting realtime mode",
		logger.String("model", settings.Model.Ref),
		logger.String("device", device.Name()),
		logger.Int("frame_stride", settings.Capture.FrameStride),
		logger.Float64("refresh_rate", settings.Capture.RefreshRate))

	g, gctx := errgroup.WithContext(ctx)

	if settings.HTTP.Enabled {
		server, err := api.New(settings, p.Controller,
			api.WithMetrics(metrics),
			api.WithBroadcaster(broadcaster),
			api.WithCaptureStats(p.Scheduler.Stats))
		if err != nil {
			return err
		}
		g.Go(func() error { return server.Run(gctx) })
	}

	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(settings, metrics)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	if publisher != nil {
		g.Go(func() error {
			if err := mqttClient.Connect(gctx); err != nil {
				GetLogger().Warn("MQTT broker not reachable, results are not published until it is",
					logger.String("broker", settings.MQTT.Broker),
					logger.Error(err))
			}
			return publisher.Run(gctx)
		})
	}

	if opts.AutoStart || !settings.HTTP.Enabled {
		g.Go(func() error { return autoStart(gctx, p.Controller, settings.HTTP.Enabled) })
	}

	g.Go(func() error {
		<-gctx.Done()
		p.Controller.Stop()
		<-p.Controller.Wait()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, errSessionEnded) {
		err = nil
	}
	if err != nil {
		GetLogger().Error("realtime mode stopped with error", logger.Error(err))
		return err
	}
	GetLogger().Info("realtime mode stopped")
	return nil
}

var errSessionEnded = errors.NewStd("session ended")

// liveSession is the part of session.Controller autoStart drives.
type liveSession interface {
	Start(ctx context.Context) error
	Wait() <-chan struct{}
	Err() error
}

// autoStart starts the session without waiting for an API call. With the API
// enabled a failed start only logs, since the session can be started again
// from there. Without it the session's end ends the program, reported as
// errSessionEnded when it stopped cleanly. Start failures caused by shutdown
// are not errors.
func autoStart(ctx context.Context, s liveSession, apiEnabled bool) error {
	err := s.Start(ctx)
	if err != nil && ctx.Err() != nil {
		GetLogger().Debug("session start interrupted by shutdown", logger.Error(err))
		return nil
	}
	if apiEnabled {
		if err != nil {
			GetLogger().Warn("session did not start, it can be started again through the API",
				logger.Error(err))
		}
		return nil
	}
	if err != nil {
		return err
	}

	select {
	case <-s.Wait():
		if err := s.Err(); err != nil {
			return err
		}
		return errSessionEnded
	case <-ctx.Done():
		return nil
	}
}
