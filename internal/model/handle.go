package model

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/logger"
	"github.com/tphakala/livelabel/internal/observability/metrics"
)

const loadKey = "model"

// Handle owns the lazily loaded model. Concurrent EnsureLoaded calls share one
// in-flight load; a loaded model is kept until Reset.
type Handle struct {
	loader  Loader
	ref     string
	backend string

	group singleflight.Group

	mu    sync.RWMutex
	model Model

	metrics *metrics.ClassifierMetrics
}

// NewHandle returns an empty handle that loads ref through loader on demand.
func NewHandle(loader Loader, ref string) *Handle {
	return &Handle{loader: loader, ref: ref}
}

// SetMetrics attaches classifier metrics. Call before first use.
func (h *Handle) SetMetrics(m *metrics.ClassifierMetrics) {
	h.metrics = m
}

// Ref returns the model reference this handle loads.
func (h *Handle) Ref() string {
	return h.ref
}

// EnsureLoaded returns the loaded model, loading it first if needed. A failed
// load is returned to every waiter and is not cached: the next call starts a
// fresh attempt. The load itself is not cancelled when ctx is; ctx only bounds
// how long this caller waits.
func (h *Handle) EnsureLoaded(ctx context.Context) (Model, error) {
	if m := h.current(); m != nil {
		return m, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := h.group.DoChan(loadKey, func() (any, error) {
		if m := h.current(); m != nil {
			return m, nil
		}
		return h.load(loadCtx)
	})

	select {
	case <-ctx.Done():
		return nil, errors.New(ctx.Err()).
			Component("model").
			Category(errors.CategoryCancellation).
			Context("operation", "ensure_loaded").
			Build()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		m, _ := res.Val.(Model)
		return m, nil
	}
}

func (h *Handle) load(ctx context.Context) (Model, error) {
	log := GetLogger()
	start := time.Now()

	log.Info("loading model", logger.String("ref", h.ref))

	m, err := h.loader.Load(ctx, h.ref)
	elapsed := time.Since(start)
	if err == nil && m == nil {
		err = fmt.Errorf("loader returned no model")
	}
	if err != nil {
		if !errors.Is(err, errors.ErrModelLoad) {
			err = errors.ModelLoadError(err, h.ref, h.backend)
		}
		if h.metrics != nil {
			h.metrics.RecordModelLoad(h.backendLabel(), elapsed.Seconds(), err)
		}
		log.Error("model load failed",
			logger.String("ref", h.ref),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return nil, err
	}

	h.mu.Lock()
	h.model = m
	h.backend = m.Backend()
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordModelLoad(h.backendLabel(), elapsed.Seconds(), nil)
	}
	log.Info("model loaded",
		logger.String("ref", h.ref),
		logger.String("backend", m.Backend()),
		logger.Int("labels", len(m.Labels())),
		logger.Duration("elapsed", elapsed))

	return m, nil
}

// Predict classifies img with the loaded model. It fails with ErrNotReady if
// no load has completed.
func (h *Handle) Predict(ctx context.Context, img image.Image) ([]Prediction, error) {
	m := h.current()
	if m == nil {
		return nil, errors.New(fmt.Errorf("predict: %w", errors.ErrNotReady)).
			Component("model").
			Category(errors.CategoryState).
			Build()
	}

	start := time.Now()
	preds, err := m.Predict(ctx, img)
	if h.metrics != nil {
		h.metrics.RecordPrediction(m.Backend(), time.Since(start).Seconds(), err)
	}
	if err != nil {
		return nil, err
	}
	return preds, nil
}

// Reset closes and forgets the loaded model so the next EnsureLoaded
// reloads it. A load already in flight is not interrupted.
func (h *Handle) Reset() error {
	h.mu.Lock()
	m := h.model
	h.model = nil
	h.mu.Unlock()

	h.group.Forget(loadKey)

	if m == nil {
		return nil
	}
	if h.metrics != nil {
		h.metrics.RecordModelReset()
	}
	GetLogger().Debug("model reset", logger.String("ref", h.ref))
	return m.Close()
}

// Loaded reports whether a model is currently loaded.
func (h *Handle) Loaded() bool {
	return h.current() != nil
}

// Labels returns the loaded model's labels, or nil before load.
func (h *Handle) Labels() []string {
	m := h.current()
	if m == nil {
		return nil
	}
	return m.Labels()
}

func (h *Handle) current() Model {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.model
}

func (h *Handle) backendLabel() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.backend == "" {
		return "unknown"
	}
	return h.backend
}
