// Package analysis wires the classification pipeline together for the command
// line modes: the long-running realtime session and single image
// classification.
package analysis

import (
	"github.com/tphakala/livelabel/internal/buildinfo"
	"github.com/tphakala/livelabel/internal/capture"
	"github.com/tphakala/livelabel/internal/conf"
	"github.com/tphakala/livelabel/internal/httpclient"
	"github.com/tphakala/livelabel/internal/imagesrc"
	"github.com/tphakala/livelabel/internal/logger"
	"github.com/tphakala/livelabel/internal/model"
	"github.com/tphakala/livelabel/internal/observability"
	"github.com/tphakala/livelabel/internal/ranker"
	"github.com/tphakala/livelabel/internal/session"
)

// GetLogger returns the analysis package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}

// Pipeline is one assembled model handle, frame loop and session.
type Pipeline struct {
	Handle     *model.Handle
	Scheduler  *capture.Scheduler
	Device     capture.Device
	Controller *session.Controller

	client *httpclient.Client
}

// NewPipeline assembles a pipeline from settings. metrics may be nil; device
// may be nil when only single-shot classification is used.
func NewPipeline(settings *conf.Settings, metrics *observability.Metrics, device capture.Device, renderers ...session.Renderer) (*Pipeline, error) {
	rules, err := Rules(settings)
	if err != nil {
		return nil, err
	}

	client := httpclient.New(&httpclient.Config{UserAgent: buildinfo.Current().UserAgent()})

	handle := model.NewHandle(model.NewLoader(ModelConfig(settings), client), settings.Model.Ref)

	var schedOpts []capture.Option
	ctrlOpts := []session.Option{session.WithRules(rules)}
	if metrics != nil {
		handle.SetMetrics(metrics.Classifier)
		schedOpts = append(schedOpts, capture.WithMetrics(metrics.Capture))
		ctrlOpts = append(ctrlOpts, session.WithMetrics(metrics.Session))
	}
	if len(renderers) > 0 {
		ctrlOpts = append(ctrlOpts, session.WithRenderer(session.MultiRenderer(renderers)))
	}

	sched := capture.NewScheduler(capture.Config{
		FrameStride: settings.Capture.FrameStride,
		RefreshRate: settings.Capture.RefreshRate,
	}, schedOpts...)

	return &Pipeline{
		Handle:     handle,
		Scheduler:  sched,
		Device:     device,
		Controller: session.New(handle, sched, device, ctrlOpts...),
		client:     client,
	}, nil
}

// Close stops the session, releases the model and closes idle connections.
func (p *Pipeline) Close() error {
	err := p.Controller.Close()
	p.client.Close()
	return err
}

// ModelConfig maps the model settings to the loader configuration.
func ModelConfig(settings *conf.Settings) model.Config {
	return model.Config{
		Backend:     settings.Model.Backend,
		Threads:     settings.Model.Threads,
		UseXNNPACK:  settings.Model.UseXNNPACK,
		InputSize:   settings.Model.InputSize,
		CacheTTL:    settings.Model.CacheTTL,
		ONNXLibrary: settings.Model.ONNXLibrary,
	}
}

// Rules returns the configured theme rules, or the stock rules when none are set.
func Rules(settings *conf.Settings) (ranker.Rules, error) {
	return ranker.ParseRules(settings.ThemePairs())
}

// NewDevice returns the capture device for the realtime session: the
// configured webcam, or imageLoop decoded once and served as every frame.
func NewDevice(settings *conf.Settings, imageLoop string) (capture.Device, error) {
	if imageLoop != "" {
		img, format, err := imagesrc.FromFile(imageLoop)
		if err != nil {
			return nil, err
		}
		GetLogger().Info("using still image as capture device",
			logger.String("path", imageLoop),
			logger.String("format", format))
		return capture.NewStill(imageLoop, img), nil
	}
	return capture.NewWebcam(capture.WebcamConfig{
		Device: settings.Capture.Device,
		Width:  settings.Capture.Width,
		Height: settings.Capture.Height,
		Mirror: settings.Capture.Mirror,
	}), nil
}
