package model

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/livelabel/internal/errors"
)

type fakeModel struct {
	labels []string
	closed atomic.Bool
}

func (m *fakeModel) Predict(_ context.Context, _ image.Image) ([]Prediction, error) {
	return pairLabels(m.labels, []float32{0.2, 0.7, 0.1}), nil
}
func (m *fakeModel) Labels() []string { return m.labels }
func (m *fakeModel) Backend() string  { return "fake" }
func (m *fakeModel) Close() error     { m.closed.Store(true); return nil }

// countingLoader counts Load calls and blocks each one until release is closed.
type countingLoader struct {
	calls   atomic.Int32
	release chan struct{}
	fail    atomic.Bool
}

func newCountingLoader() *countingLoader {
	l := &countingLoader{release: make(chan struct{})}
	close(l.release)
	return l
}

func (l *countingLoader) Load(_ context.Context, _ string) (Model, error) {
	l.calls.Add(1)
	<-l.release
	if l.fail.Load() {
		return nil, fmt.Errorf("dial tcp: connection refused")
	}
	return &fakeModel{labels: []string{"A", "B", "C"}}, nil
}

func TestEnsureLoadedSingleFlight(t *testing.T) {
	t.Parallel()

	loader := &countingLoader{release: make(chan struct{})}
	h := NewHandle(loader, "https://example.com/m/")

	const callers = 8
	var wg sync.WaitGroup
	models := make([]Model, callers)
	for i := range callers {
		wg.Go(func() {
			m, err := h.EnsureLoaded(t.Context())
			assert.NoError(t, err)
			models[i] = m
		})
	}

	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(loader.release)
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
	for _, m := range models {
		assert.Same(t, models[0], m)
	}
	assert.True(t, h.Loaded())
	assert.Equal(t, []string{"A", "B", "C"}, h.Labels())
}

func TestEnsureLoadedFailureIsNotCached(t *testing.T) {
	t.Parallel()

	loader := newCountingLoader()
	loader.fail.Store(true)
	h := NewHandle(loader, "https://example.com/m/")

	_, err := h.EnsureLoaded(t.Context())
	require.Error(t, err)
	require.ErrorIs(t, err, errors.ErrModelLoad)
	assert.False(t, h.Loaded())

	loader.fail.Store(false)
	m, err := h.EnsureLoaded(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestEnsureLoadedReusesLoadedModel(t *testing.T) {
	t.Parallel()

	loader := newCountingLoader()
	h := NewHandle(loader, "ref")

	first, err := h.EnsureLoaded(t.Context())
	require.NoError(t, err)
	second, err := h.EnsureLoaded(t.Context())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestEnsureLoadedCallerGivesUp(t *testing.T) {
	t.Parallel()

	loader := &countingLoader{release: make(chan struct{})}
	h := NewHandle(loader, "ref")

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		_, err := h.EnsureLoaded(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	// The abandoned load still completes and is picked up without a second load.
	close(loader.release)
	m, err := h.EnsureLoaded(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestPredictBeforeLoad(t *testing.T) {
	t.Parallel()

	h := NewHandle(newCountingLoader(), "ref")

	_, err := h.Predict(t.Context(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	require.ErrorIs(t, err, errors.ErrNotReady)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.Nil(t, h.Labels())
}

func TestPredictAfterLoad(t *testing.T) {
	t.Parallel()

	h := NewHandle(newCountingLoader(), "ref")
	_, err := h.EnsureLoaded(t.Context())
	require.NoError(t, err)

	preds, err := h.Predict(t.Context(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	require.NoError(t, err)
	assert.Equal(t, []Prediction{{"A", 0.2}, {"B", 0.7}, {"C", 0.1}}, preds)
}

func TestResetForcesReload(t *testing.T) {
	t.Parallel()

	loader := newCountingLoader()
	h := NewHandle(loader, "ref")

	m, err := h.EnsureLoaded(t.Context())
	require.NoError(t, err)

	require.NoError(t, h.Reset())
	assert.False(t, h.Loaded())
	assert.True(t, m.(*fakeModel).closed.Load())

	_, err = h.EnsureLoaded(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())

	// Reset on an empty handle is a no-op.
	require.NoError(t, NewHandle(loader, "ref").Reset())
}

func TestLoaderReturningNilModel(t *testing.T) {
	t.Parallel()

	h := NewHandle(LoaderFunc(func(context.Context, string) (Model, error) { return nil, nil }), "ref")
	_, err := h.EnsureLoaded(t.Context())
	require.ErrorIs(t, err, errors.ErrModelLoad)
}
