// Package capture drives a capture device through a display-paced frame loop
// and hands every Nth frame to a classifier, never more than one at a time.
package capture

import (
	"context"
	"image"
	"time"
)

// Device is a frame source such as a webcam.
type Device interface {
	// Open acquires the device. Failures are reported as device unavailable.
	Open(ctx context.Context) error
	// Refresh grabs the next frame and returns it.
	Refresh() (image.Image, error)
	// Close releases the device; it must be safe to call more than once.
	Close() error
	// Name identifies the device in logs.
	Name() string
}

// Ticker paces the frame loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker for one Run.
type TickerFactory func() Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// RefreshTicker returns a TickerFactory ticking hz times per second.
func RefreshTicker(hz float64) TickerFactory {
	if hz <= 0 {
		hz = DefaultRefreshRate
	}
	period := time.Duration(float64(time.Second) / hz)
	return func() Ticker {
		return timeTicker{t: time.NewTicker(period)}
	}
}
