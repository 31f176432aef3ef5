package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/logger"
	"github.com/tphakala/livelabel/internal/observability/metrics"
)

// Defaults for a Scheduler.
const (
	DefaultFrameStride = 10
	DefaultRefreshRate = 60.0
)

// FrameFunc receives every stride frame. It runs on its own goroutine and may
// block; the loop keeps refreshing frames meanwhile.
type FrameFunc func(ctx context.Context, frameCount uint64, frame image.Image)

// Config controls loop pacing.
type Config struct {
	FrameStride int     // classify every Nth frame
	RefreshRate float64 // ticks per second
}

// Stats is a snapshot of loop counters summed over every run since the
// scheduler was created.
type Stats struct {
	Frames     uint64 `json:"frames"`
	Inferences uint64 `json:"inferences"`
	Dropped    uint64 `json:"dropped"`
}

// Scheduler owns the attached device and the frame loop.
type Scheduler struct {
	stride    uint64
	newTicker TickerFactory

	mu     sync.Mutex
	device Device

	frames     atomic.Uint64
	inferences atomic.Uint64
	dropped    atomic.Uint64

	dropLog rate.Sometimes
	metrics *metrics.CaptureMetrics
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTicker replaces the wall-clock refresh ticker, mainly for tests.
func WithTicker(f TickerFactory) Option {
	return func(s *Scheduler) { s.newTicker = f }
}

// WithMetrics attaches capture metrics.
func WithMetrics(m *metrics.CaptureMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler returns a detached scheduler.
func NewScheduler(cfg Config, opts ...Option) *Scheduler {
	stride := cfg.FrameStride
	if stride <= 0 {
		stride = DefaultFrameStride
	}
	s := &Scheduler{
		stride:    uint64(stride),
		newTicker: RefreshTicker(cfg.RefreshRate),
		dropLog:   rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach opens d and binds it to the scheduler, detaching any previous device.
func (s *Scheduler) Attach(ctx context.Context, d Device) error {
	if d == nil {
		return errors.DeviceError(fmt.Errorf("no capture device configured"), "")
	}
	if err := s.Detach(); err != nil {
		GetLogger().Warn("failed to release previous device", logger.Error(err))
	}

	if err := d.Open(ctx); err != nil {
		if s.metrics != nil {
			s.metrics.RecordDeviceError()
		}
		if errors.Is(err, errors.ErrDeviceUnavailable) {
			return err
		}
		return errors.DeviceError(err, d.Name())
	}

	s.mu.Lock()
	s.device = d
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetAttached(true)
	}
	GetLogger().Info("capture device attached", logger.String("device", d.Name()))
	return nil
}

// Detach releases the device. Safe to call when already detached.
func (s *Scheduler) Detach() error {
	s.mu.Lock()
	d := s.device
	s.device = nil
	s.mu.Unlock()

	if d == nil {
		return nil
	}
	if s.metrics != nil {
		s.metrics.SetAttached(false)
	}
	GetLogger().Info("capture device released", logger.String("device", d.Name()))
	return d.Close()
}

// Attached reports whether a device is currently held.
func (s *Scheduler) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device != nil
}

// Stats returns loop counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Frames:     s.frames.Load(),
		Inferences: s.inferences.Load(),
		Dropped:    s.dropped.Load(),
	}
}

// Run drives the frame loop until shouldContinue reports false, ctx ends or
// the device fails. Each tick refreshes one frame; every stride-th frame is
// passed to onFrame unless the previous call is still running, in which case
// the frame is dropped. Run never returns while an onFrame call is pending.
// A device read failure is returned as ErrDeviceUnavailable.
func (s *Scheduler) Run(ctx context.Context, onFrame FrameFunc, shouldContinue func() bool) error {
	s.mu.Lock()
	d := s.device
	s.mu.Unlock()
	if d == nil {
		return errors.DeviceError(fmt.Errorf("run without an attached device"), "")
	}

	ticker := s.newTicker()
	defer ticker.Stop()

	var (
		pending sync.WaitGroup
		busy    atomic.Bool
		n       uint64 // frames in this run; the stride phase restarts with every run
	)
	defer pending.Wait()

	log := GetLogger().WithContext(ctx)

	for shouldContinue() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
		if !shouldContinue() {
			break
		}

		n++
		s.frames.Add(1)
		if s.metrics != nil {
			s.metrics.RecordFrame()
		}

		frame, err := d.Refresh()
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordDeviceError()
			}
			log.Error("capture device read failed",
				logger.String("device", d.Name()),
				logger.Uint64("frame", n),
				logger.Error(err))
			return errors.DeviceError(err, d.Name())
		}

		if n%s.stride != 0 {
			continue
		}

		if !busy.CompareAndSwap(false, true) {
			s.dropped.Add(1)
			if s.metrics != nil {
				s.metrics.RecordDroppedFrame()
			}
			s.dropLog.Do(func() {
				log.Debug("prediction still in flight, dropping frame",
					logger.Uint64("frame", n),
					logger.Uint64("dropped_total", s.dropped.Load()))
			})
			continue
		}

		s.inferences.Add(1)
		if s.metrics != nil {
			s.metrics.RecordInference()
		}
		pending.Go(func() {
			defer busy.Store(false)
			onFrame(ctx, n, frame)
		})
	}
	return nil
}
