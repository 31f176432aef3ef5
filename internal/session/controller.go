package session

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/livelabel/internal/capture"
	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/logger"
	"github.com/tphakala/livelabel/internal/model"
	"github.com/tphakala/livelabel/internal/observability/metrics"
	"github.com/tphakala/livelabel/internal/ranker"
)

// ModelHandle is the part of model.Handle the controller drives.
type ModelHandle interface {
	EnsureLoaded(ctx context.Context) (model.Model, error)
	Predict(ctx context.Context, img image.Image) ([]model.Prediction, error)
	Reset() error
}

// ImageSource is an uploaded image that may not be decoded yet.
type ImageSource interface {
	Ready(ctx context.Context) (image.Image, error)
}

// ImageSourceFunc adapts a function to ImageSource.
type ImageSourceFunc func(ctx context.Context) (image.Image, error)

// Ready implements ImageSource.
func (f ImageSourceFunc) Ready(ctx context.Context) (image.Image, error) { return f(ctx) }

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Controller is the only owner of the session state, the capture device and
// the live loop.
type Controller struct {
	handle   ModelHandle
	sched    *capture.Scheduler
	device   capture.Device
	rules    ranker.Rules
	renderer Renderer
	metrics  *metrics.SessionMetrics

	mu    sync.Mutex
	state State
	err   error
	runID string
	done  chan struct{}

	renderMu sync.Mutex
	outMu    sync.RWMutex
	output   Output
}

// Option configures a Controller.
type Option func(*Controller)

// WithRules sets the theme rules used for ranking.
func WithRules(rules ranker.Rules) Option {
	return func(c *Controller) { c.rules = rules }
}

// WithRenderer sets the output renderer.
func WithRenderer(r Renderer) Option {
	return func(c *Controller) {
		if r != nil {
			c.renderer = r
		}
	}
}

// WithMetrics attaches session metrics.
func WithMetrics(m *metrics.SessionMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New returns an Idle controller. device is attached on every start and
// released whenever the live loop ends.
func New(handle ModelHandle, sched *capture.Scheduler, device capture.Device, opts ...Option) *Controller {
	c := &Controller{
		handle:   handle,
		sched:    sched,
		device:   device,
		rules:    ranker.DefaultRules(),
		renderer: nopRenderer{},
		output:   Output{State: Idle.String(), Results: []ranker.Result{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that ended the latest run, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// RunID returns the identifier of the latest live run, or "" before the first
// start.
func (c *Controller) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Output returns the most recently rendered output.
func (c *Controller) Output() Output {
	c.outMu.RLock()
	defer c.outMu.RUnlock()
	return c.output
}

// Wait returns a channel closed once the current run has fully ended. With
// no run in progress the channel is already closed.
func (c *Controller) Wait() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return closedChan
	}
	return c.done
}

// Start loads the model, attaches the capture device and starts the live
// loop. It returns once the session is Running or has failed. Calls made while
// a run is loading, running or stopping are no-ops.
//
// A load failure returns the session to Idle without touching the device; an
// attach failure leaves it Stopped. Both are returned and kept in Err.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.resting() {
		state := c.state
		c.mu.Unlock()
		GetLogger().Debug("start ignored", logger.String("state", state.String()))
		return nil
	}
	runID := uuid.NewString()
	done := make(chan struct{})
	c.runID, c.done, c.err = runID, done, nil
	c.setStateLocked(Loading)
	c.mu.Unlock()

	ctx = logger.WithTraceID(ctx, runID)
	log := GetLogger().WithContext(ctx)

	start := time.Now()
	if _, err := c.handle.EnsureLoaded(ctx); err != nil {
		log.Error("model load failed", logger.Error(err))
		c.endRun(done, Idle, err, Output{RunID: runID, Source: SourceLive})
		return err
	}
	log.Debug("model ready", logger.Duration("elapsed", time.Since(start)))

	if c.stopRequested() {
		c.endRun(done, Stopped, nil, Output{RunID: runID, Source: SourceLive, Message: StoppedMessage})
		return nil
	}

	if err := c.sched.Attach(ctx, c.device); err != nil {
		log.Error("capture device unavailable", logger.Error(err))
		c.endRun(done, Stopped, err, Output{RunID: runID, Source: SourceLive, Message: StoppedMessage})
		return err
	}

	c.mu.Lock()
	if c.state != Loading {
		c.mu.Unlock()
		if err := c.sched.Detach(); err != nil {
			log.Warn("failed to release capture device", logger.Error(err))
		}
		c.endRun(done, Stopped, nil, Output{RunID: runID, Source: SourceLive, Message: StoppedMessage})
		return nil
	}
	c.setStateLocked(Running)
	c.mu.Unlock()

	log.Info("live session started")
	c.render(Output{RunID: runID, Source: SourceLive, State: Running.String()})

	go c.loop(context.WithoutCancel(ctx), runID, done)
	return nil
}

// Stop requests the live loop to end and returns immediately. The device is
// released and the stopped output rendered only after any in-flight
// prediction has completed; use Wait to observe that.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Running, Loading:
		c.setStateLocked(Stopping)
	default:
	}
}

// Close stops the session, waits for it to end and releases the model.
func (c *Controller) Close() error {
	c.Stop()
	<-c.Wait()
	return c.handle.Reset()
}

// ClassifyOnce waits for src, then ranks and renders a single prediction. It
// loads the model on first use and never changes the session state or
// touches the capture device.
func (c *Controller) ClassifyOnce(ctx context.Context, src ImageSource) (results []ranker.Result, err error) {
	if c.metrics != nil {
		defer func() { c.metrics.RecordClassifyOnce(err) }()
	}
	defer func() {
		if err != nil {
			c.render(Output{Source: SourceUpload, Error: err.Error()})
		}
	}()

	if src == nil {
		return nil, errors.DecodeError(fmt.Errorf("no image provided"))
	}
	img, err := src.Ready(ctx)
	if err != nil {
		return nil, err
	}
	if _, err = c.handle.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	preds, err := c.handle.Predict(ctx, img)
	if err != nil {
		return nil, err
	}

	results = ranker.Rank(preds, c.rules)
	c.render(Output{Source: SourceUpload, Results: results})
	return results, nil
}

func (c *Controller) loop(ctx context.Context, runID string, done chan struct{}) {
	log := GetLogger().WithContext(ctx)

	err := c.sched.Run(ctx, func(ctx context.Context, n uint64, frame image.Image) {
		c.classifyFrame(ctx, runID, n, frame)
	}, c.running)

	if derr := c.sched.Detach(); derr != nil {
		log.Warn("failed to release capture device", logger.Error(derr))
	}
	if err != nil {
		log.Error("live session aborted", logger.Error(err))
	} else {
		log.Info("live session stopped", logger.Uint64("frames", c.sched.Stats().Frames))
	}

	c.endRun(done, Stopped, err, Output{RunID: runID, Source: SourceLive, Message: StoppedMessage})
}

func (c *Controller) classifyFrame(ctx context.Context, runID string, n uint64, frame image.Image) {
	preds, err := c.handle.Predict(ctx, frame)
	if err != nil {
		GetLogger().WithContext(ctx).Warn("prediction failed, skipping frame",
			logger.Uint64("frame", n),
			logger.Error(err))
		return
	}
	c.render(Output{
		RunID:   runID,
		Source:  SourceLive,
		Results: ranker.Rank(preds, c.rules),
		Frame:   n,
	})
}

func (c *Controller) running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Running
}

func (c *Controller) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Stopping
}

// endRun moves the run to its resting state, renders the final output and
// then releases waiters.
func (c *Controller) endRun(done chan struct{}, to State, err error, out Output) {
	c.mu.Lock()
	c.err = err
	c.setStateLocked(to)
	c.mu.Unlock()

	out.State = to.String()
	if err != nil {
		out.Error = err.Error()
	}
	c.render(out)
	close(done)
}

func (c *Controller) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if c.metrics != nil {
		c.metrics.RecordTransition(from.String(), to.String())
	}
	GetLogger().Debug("session state changed",
		logger.String("from", from.String()),
		logger.String("to", to.String()))
}

func (c *Controller) render(out Output) {
	if out.State == "" {
		out.State = c.State().String()
	}
	if out.Results == nil {
		out.Results = []ranker.Result{}
	}
	if out.At.IsZero() {
		out.At = time.Now()
	}

	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.outMu.Lock()
	c.output = out
	c.outMu.Unlock()

	c.renderer.Render(out)
	if c.metrics != nil {
		c.metrics.RecordRender(out.Source)
	}
}
