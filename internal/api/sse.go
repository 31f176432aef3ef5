package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/livelabel/internal/logger"
	"github.com/tphakala/livelabel/internal/observability/metrics"
	"github.com/tphakala/livelabel/internal/session"
)

// Broadcaster is a session.Renderer that fans rendered outputs out to
// connected SSE clients. A slow client loses its oldest queued outputs, never
// the newest, and never blocks the frame loop.
type Broadcaster struct {
	heartbeat time.Duration
	buffer    int
	metrics   *metrics.HTTPMetrics

	mu      sync.Mutex
	clients map[chan session.Output]struct{}
	closed  bool
	done    chan struct{}
}

// NewBroadcaster returns a broadcaster with no clients.
func NewBroadcaster(heartbeat time.Duration, buffer int, m *metrics.HTTPMetrics) *Broadcaster {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if buffer < 1 {
		buffer = DefaultClientBuffer
	}
	return &Broadcaster{
		heartbeat: heartbeat,
		buffer:    buffer,
		metrics:   m,
		clients:   make(map[chan session.Output]struct{}),
		done:      make(chan struct{}),
	}
}

// Render implements session.Renderer.
func (b *Broadcaster) Render(out session.Output) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.clients {
		if !offerLatest(ch, out) {
			GetLogger().Debug("SSE client buffer full, dropped oldest output",
				logger.String("source", out.Source))
		}
	}
}

// offerLatest queues out on ch, discarding the oldest queued output when ch is
// full. It reports whether nothing had to be discarded. Callers must be the
// only sender on ch.
func offerLatest(ch chan session.Output, out session.Output) bool {
	select {
	case ch <- out:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- out
	return false
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close ends every open stream. Later connections are refused.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
}

func (b *Broadcaster) subscribe() (chan session.Output, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	ch := make(chan session.Output, b.buffer)
	b.clients[ch] = struct{}{}
	b.updateClientGauge()
	return ch, true
}

func (b *Broadcaster) unsubscribe(ch chan session.Output) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, ch)
	b.updateClientGauge()
}

func (b *Broadcaster) updateClientGauge() {
	if b.metrics != nil {
		b.metrics.SetSSEClients(len(b.clients))
	}
}

// ServeSSE streams outputs to one client. The latest output is sent first so
// a new page shows the current view immediately.
// API: GET /api/v1/results/stream
func (b *Broadcaster) ServeSSE(latest func() session.Output) echo.HandlerFunc {
	return func(c echo.Context) error {
		ch, ok := b.subscribe()
		if !ok {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "server is shutting down")
		}
		defer b.unsubscribe(ch)

		remote := c.RealIP()
		GetLogger().Debug("SSE client connected", logger.String("remote", remote))
		defer GetLogger().Debug("SSE client disconnected", logger.String("remote", remote))

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)

		if latest != nil {
			if err := writeEvent(res, latest()); err != nil {
				return nil
			}
		}

		heartbeat := time.NewTicker(b.heartbeat)
		defer heartbeat.Stop()

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-b.done:
				return nil
			case out := <-ch:
				if err := writeEvent(res, out); err != nil {
					return nil
				}
			case <-heartbeat.C:
				if _, err := fmt.Fprint(res, ":\n\n"); err != nil {
					return nil
				}
				res.Flush()
			}
		}
	}
}

func writeEvent(res *echo.Response, out session.Output) error {
	data, err := json.Marshal(out)
	if err != nil {
		GetLogger().Warn("failed to encode SSE output", logger.Error(err))
		return nil
	}
	if _, err := fmt.Fprintf(res, "event: output\ndata: %s\n\n", data); err != nil {
		return err
	}
	res.Flush()
	return nil
}
