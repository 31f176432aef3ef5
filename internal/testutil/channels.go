// Package testutil provides test helpers shared by livelabel packages.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 3 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second
)

// Receive waits for a value on ch or fails the test after timeout.
func Receive[T any](tb testing.TB, ch <-chan T, timeout time.Duration, msg string) T {
	tb.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(tb, msg)
	}
	var zero T
	return zero
}

// WaitForChannel waits for ch to be closed or signalled, or fails after timeout.
func WaitForChannel(tb testing.TB, ch <-chan struct{}, timeout time.Duration, msg string) {
	tb.Helper()
	Receive(tb, ch, timeout, msg)
}

// NotReceived fails the test if ch yields a value within wait.
func NotReceived[T any](tb testing.TB, ch <-chan T, wait time.Duration, msg string) {
	tb.Helper()
	select {
	case v := <-ch:
		require.FailNow(tb, msg, "received %v", v)
	case <-time.After(wait):
	}
}
