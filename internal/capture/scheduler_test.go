package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/livelabel/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// manualTicker delivers a tick only when the test sends one.
type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker { return &manualTicker{ch: make(chan time.Time)} }

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.stopped.Store(true) }

func (t *manualTicker) factory() TickerFactory {
	return func() Ticker { return t }
}

func (t *manualTicker) tick(tb testing.TB) {
	tb.Helper()
	select {
	case t.ch <- time.Now():
	case <-time.After(2 * time.Second):
		tb.Fatal("frame loop did not accept tick")
	}
}

type fakeDevice struct {
	openErr error
	failAt  uint64

	opens     atomic.Int32
	closes    atomic.Int32
	refreshes atomic.Uint64
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) Open(context.Context) error {
	d.opens.Add(1)
	return d.openErr
}

func (d *fakeDevice) Refresh() (image.Image, error) {
	n := d.refreshes.Add(1)
	if d.failAt != 0 && n >= d.failAt {
		return nil, fmt.Errorf("unplugged")
	}
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.SetGray(0, 0, color.Gray{Y: uint8(n)})
	return img, nil
}

func (d *fakeDevice) Close() error {
	d.closes.Add(1)
	return nil
}

type loopHarness struct {
	sched  *Scheduler
	ticker *manualTicker
	stop   atomic.Bool
	done   chan error
}

func startLoop(t *testing.T, stride int, dev Device, onFrame FrameFunc) *loopHarness {
	t.Helper()

	h := &loopHarness{ticker: newManualTicker(), done: make(chan error, 1)}
	h.sched = NewScheduler(Config{FrameStride: stride}, WithTicker(h.ticker.factory()))
	require.NoError(t, h.sched.Attach(t.Context(), dev))

	go func() {
		h.done <- h.sched.Run(context.Background(), onFrame, func() bool { return !h.stop.Load() })
	}()
	return h
}

// nudge offers one tick without failing when the loop has already left its
// select, as it does when it observes the stop flag first.
func (t *manualTicker) nudge() {
	select {
	case t.ch <- time.Now():
	case <-time.After(200 * time.Millisecond):
	}
}

// finish asks the loop to stop and returns its result.
func (h *loopHarness) finish(t *testing.T) error {
	t.Helper()
	h.stop.Store(true)
	h.ticker.nudge()
	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("frame loop did not return")
		return nil
	}
}

func TestRunCallsEveryStrideFrame(t *testing.T) {
	dev := &fakeDevice{}

	var (
		mu    sync.Mutex
		calls []uint64
	)
	h := startLoop(t, 3, dev, func(_ context.Context, n uint64, frame image.Image) {
		assert.NotNil(t, frame)
		mu.Lock()
		calls = append(calls, n)
		mu.Unlock()
	})

	for range 9 {
		h.ticker.tick(t)
	}
	require.NoError(t, h.finish(t))

	stats := h.sched.Stats()
	assert.Equal(t, uint64(9), stats.Frames)
	assert.Equal(t, uint64(9), dev.refreshes.Load())
	assert.Equal(t, uint64(3), stats.Inferences+stats.Dropped)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, calls, int(stats.Inferences))
	for _, n := range calls {
		assert.Zero(t, n%3, "frame %d is not a stride frame", n)
	}
	assert.True(t, h.ticker.stopped.Load())

	require.NoError(t, h.sched.Detach())
}

func TestRunRestartsStridePhase(t *testing.T) {
	dev := &fakeDevice{}

	calls := make(chan uint64, 8)
	onFrame := func(_ context.Context, n uint64, _ image.Image) { calls <- n }

	h := startLoop(t, 3, dev, onFrame)
	for range 4 {
		h.ticker.tick(t)
	}
	require.NoError(t, h.finish(t))
	assert.Equal(t, uint64(3), <-calls)

	// A second run counts from zero again: its first call is its third frame.
	h.stop.Store(false)
	go func() {
		h.done <- h.sched.Run(context.Background(), onFrame, func() bool { return !h.stop.Load() })
	}()
	for range 3 {
		h.ticker.tick(t)
	}
	require.NoError(t, h.finish(t))
	require.Len(t, calls, 1)
	assert.Equal(t, uint64(3), <-calls)

	stats := h.sched.Stats()
	assert.Equal(t, uint64(7), stats.Frames)
	assert.Equal(t, uint64(2), stats.Inferences)

	require.NoError(t, h.sched.Detach())
}

func TestRunDropsFramesWhilePending(t *testing.T) {
	dev := &fakeDevice{}
	release := make(chan struct{})

	var calls atomic.Int32
	h := startLoop(t, 2, dev, func(context.Context, uint64, image.Image) {
		calls.Add(1)
		<-release
	})

	// Frame 2 goes in flight; 4, 6 and 8 arrive while it is pending. The
	// ninth tick is only accepted once frame 8 has been handled.
	for range 9 {
		h.ticker.tick(t)
	}
	assert.Equal(t, uint64(3), h.sched.Stats().Dropped)

	close(release)
	require.NoError(t, h.finish(t))
	assert.Equal(t, int32(1), calls.Load())

	stats := h.sched.Stats()
	assert.Equal(t, uint64(9), stats.Frames)
	assert.Equal(t, uint64(1), stats.Inferences)
	assert.Equal(t, uint64(3), stats.Dropped)

	require.NoError(t, h.sched.Detach())
}

func TestRunAwaitsPendingCallBeforeReturning(t *testing.T) {
	dev := &fakeDevice{}
	release := make(chan struct{})
	started := make(chan struct{})

	h := startLoop(t, 1, dev, func(context.Context, uint64, image.Image) {
		close(started)
		<-release
	})

	h.ticker.tick(t)
	<-started

	h.stop.Store(true)
	h.ticker.nudge()

	assert.Never(t, func() bool { return len(h.done) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	close(release)
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("frame loop did not return after the pending call finished")
	}

	require.NoError(t, h.sched.Detach())
}

func TestRunDeviceFailureEndsLoop(t *testing.T) {
	dev := &fakeDevice{failAt: 3}
	release := make(chan struct{})
	finished := make(chan struct{})

	h := startLoop(t, 2, dev, func(context.Context, uint64, image.Image) {
		<-release
		close(finished)
	})

	h.ticker.tick(t)
	h.ticker.tick(t) // frame 2 starts the pending call
	h.ticker.tick(t) // frame 3 fails

	assert.Never(t, func() bool { return len(h.done) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	close(release)

	select {
	case err := <-h.done:
		require.ErrorIs(t, err, errors.ErrDeviceUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("frame loop did not return")
	}
	<-finished

	require.NoError(t, h.sched.Detach())
	assert.Equal(t, int32(1), dev.closes.Load())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := NewScheduler(Config{}, WithTicker(newManualTicker().factory()))
	require.NoError(t, s.Attach(t.Context(), &fakeDevice{}))
	t.Cleanup(func() { _ = s.Detach() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, func(context.Context, uint64, image.Image) {}, func() bool { return true })
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunWithoutDevice(t *testing.T) {
	s := NewScheduler(Config{})
	err := s.Run(t.Context(), func(context.Context, uint64, image.Image) {}, func() bool { return true })
	require.ErrorIs(t, err, errors.ErrDeviceUnavailable)
}

func TestAttachFailure(t *testing.T) {
	t.Parallel()

	s := NewScheduler(Config{})
	err := s.Attach(t.Context(), &fakeDevice{openErr: fmt.Errorf("busy")})
	require.ErrorIs(t, err, errors.ErrDeviceUnavailable)
	assert.True(t, errors.IsCategory(err, errors.CategoryCaptureDevice))
	assert.False(t, s.Attached())

	require.ErrorIs(t, s.Attach(t.Context(), nil), errors.ErrDeviceUnavailable)
}

func TestDetachIsIdempotent(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{}
	s := NewScheduler(Config{})
	require.NoError(t, s.Attach(t.Context(), dev))
	assert.True(t, s.Attached())

	require.NoError(t, s.Detach())
	require.NoError(t, s.Detach())
	assert.False(t, s.Attached())
	assert.Equal(t, int32(1), dev.opens.Load())
	assert.Equal(t, int32(1), dev.closes.Load())
}

func TestAttachReplacesPreviousDevice(t *testing.T) {
	t.Parallel()

	first, second := &fakeDevice{}, &fakeDevice{}
	s := NewScheduler(Config{})
	require.NoError(t, s.Attach(t.Context(), first))
	require.NoError(t, s.Attach(t.Context(), second))

	assert.Equal(t, int32(1), first.closes.Load())
	assert.Zero(t, second.closes.Load())
	require.NoError(t, s.Detach())
}

func TestStillDevice(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	st := NewStill("sample.png", img)
	assert.Equal(t, "still:sample.png", st.Name())

	_, err := st.Refresh()
	require.Error(t, err)

	require.NoError(t, st.Open(t.Context()))
	got, err := st.Refresh()
	require.NoError(t, err)
	assert.Same(t, img, got)

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	require.Error(t, NewStill("empty", nil).Open(t.Context()))
}
