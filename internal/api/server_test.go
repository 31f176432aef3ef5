package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/livelabel/internal/capture"
	"github.com/tphakala/livelabel/internal/conf"
	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/observability/metrics"
	"github.com/tphakala/livelabel/internal/ranker"
	"github.com/tphakala/livelabel/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeController struct {
	mu       sync.Mutex
	state    session.State
	startErr error
	starts   int
	stops    int
	output   session.Output
	results  []ranker.Result
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		f.state = session.Idle
		return f.startErr
	}
	f.state = session.Running
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.state == session.Running {
		f.state = session.Stopping
	}
}

func (f *fakeController) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startErr
}

func (f *fakeController) RunID() string { return "run-1" }

func (f *fakeController) Output() session.Output {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.output
}

func (f *fakeController) ClassifyOnce(ctx context.Context, src session.ImageSource) ([]ranker.Result, error) {
	if _, err := src.Ready(ctx); err != nil {
		return nil, err
	}
	return f.results, nil
}

func newTestServer(t *testing.T, ctrl Controller, opts ...ServerOption) *Server {
	t.Helper()
	settings := &conf.Settings{}
	settings.HTTP.Listen = "localhost:0"
	s, err := New(settings, ctrl, opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &buf
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, &fakeController{})
	rec := do(t, s, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "idle", body["state"])
}

func TestStartAndStopSession(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(t, ctrl, WithCaptureStats(func() capture.Stats {
		return capture.Stats{Frames: 20, Inferences: 2}
	}))

	rec := do(t, s, http.MethodPost, "/api/v1/session/start", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "running", state.State)
	assert.Equal(t, "run-1", state.RunID)
	require.NotNil(t, state.Capture)
	assert.Equal(t, uint64(20), state.Capture.Frames)

	rec = do(t, s, http.MethodPost, "/api/v1/session/stop", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "stopping", state.State)
	assert.Equal(t, 1, ctrl.starts)
	assert.Equal(t, 1, ctrl.stops)
}

func TestStartErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"model load", errors.ModelLoadError(errors.NewStd("404"), "remote", "tflite"), http.StatusBadGateway},
		{"device", errors.DeviceError(errors.NewStd("busy"), "webcam:0"), http.StatusServiceUnavailable},
		{"other", errors.NewStd("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeController{startErr: tt.err})
			rec := do(t, s, http.MethodPost, "/api/v1/session/start", nil, "")
			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.err.Error(), resp.Error)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestClassifyUpload(t *testing.T) {
	results := []ranker.Result{
		{Label: "B", Probability: 0.7, Theme: ranker.ThemeDefault, TopPick: true},
		{Label: "A", Probability: 0.2, Theme: ranker.ThemeDefault},
	}

	t.Run("raw body", func(t *testing.T) {
		s := newTestServer(t, &fakeController{results: results})
		rec := do(t, s, http.MethodPost, "/api/v1/classify", pngBytes(t), "image/png")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ClassifyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 2)
		require.NotNil(t, resp.TopPick)
		assert.Equal(t, "B", resp.TopPick.Label)
	})

	t.Run("multipart", func(t *testing.T) {
		s := newTestServer(t, &fakeController{results: results})

		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		part, err := w.CreateFormFile("image", "frame.png")
		require.NoError(t, err)
		_, err = part.Write(pngBytes(t).Bytes())
		require.NoError(t, err)
		require.NoError(t, w.Close())

		rec := do(t, s, http.MethodPost, "/api/v1/classify", &body, w.FormDataContentType())
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("undecodable", func(t *testing.T) {
		s := newTestServer(t, &fakeController{results: results})
		rec := do(t, s, http.MethodPost, "/api/v1/classify", bytes.NewBufferString("not an image"), "image/png")
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, string(errors.CategoryImageDecode), resp.Category)
	})

	t.Run("missing form field", func(t *testing.T) {
		s := newTestServer(t, &fakeController{results: results})

		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		require.NoError(t, w.WriteField("other", "x"))
		require.NoError(t, w.Close())

		rec := do(t, s, http.MethodPost, "/api/v1/classify", &body, w.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRequestMetrics(t *testing.T) {
	m, err := metrics.NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	s := newTestServer(t, &fakeController{})
	s.echo.Use(requestMetrics(m))
	s.echo.GET("/probe", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	do(t, s, http.MethodGet, "/probe", nil, "")
	do(t, s, http.MethodGet, "/probe", nil, "")
	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/probe", "204")), 0)
}

func TestBroadcasterKeepsNewestWhenClientIsSlow(t *testing.T) {
	b := NewBroadcaster(time.Minute, 1, nil)
	defer b.Close()

	ch, ok := b.subscribe()
	require.True(t, ok)
	assert.Equal(t, 1, b.Clients())

	b.Render(session.Output{State: "running", Message: "first"})
	b.Render(session.Output{State: "stopped", Message: session.StoppedMessage})

	got := <-ch
	assert.Equal(t, "stopped", got.State)
	assert.Equal(t, session.StoppedMessage, got.Message)
	select {
	case out := <-ch:
		t.Fatalf("unexpected buffered output %q", out.Message)
	default:
	}

	b.unsubscribe(ch)
	assert.Equal(t, 0, b.Clients())
}

func TestBroadcasterRefusesAfterClose(t *testing.T) {
	b := NewBroadcaster(time.Minute, 1, nil)
	b.Close()
	b.Close()
	_, ok := b.subscribe()
	assert.False(t, ok)
}

func TestResultStream(t *testing.T) {
	ctrl := &fakeController{output: session.Output{Source: session.SourceLive, State: "running", Message: "latest"}}
	s := newTestServer(t, ctrl)
	srv := httptest.NewServer(s.Echo())
	defer srv.Close()

	client := &http.Client{Transport: &http.Transport{}}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/results/stream", http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	assert.Equal(t, "latest", first.Message)

	require.Eventually(t, func() bool { return s.Broadcaster().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Broadcaster().Render(session.Output{Source: session.SourceLive, Message: "next", Frame: 10})
	next := readEvent(t, reader)
	assert.Equal(t, "next", next.Message)
	assert.Equal(t, uint64(10), next.Frame)

	s.Broadcaster().Close()
	require.Eventually(t, func() bool { return s.Broadcaster().Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, r *bufio.Reader) session.Output {
	t.Helper()
	var event string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.Equal(t, "output", event)
			var out session.Output
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &out))
			return out
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Listen = "nope"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ClientBuffer = 0
	require.Error(t, cfg.Validate())
}
