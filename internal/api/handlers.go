package api

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/livelabel/internal/capture"
	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/imagesrc"
	"github.com/tphakala/livelabel/internal/logger"
	"github.com/tphakala/livelabel/internal/ranker"
	"github.com/tphakala/livelabel/internal/session"
)

// uploadField is the multipart form field carrying the image.
const uploadField = "image"

// StateResponse describes the live session.
type StateResponse struct {
	State   string         `json:"state"`
	RunID   string         `json:"runId,omitempty"`
	Error   string         `json:"error,omitempty"`
	Capture *capture.Stats `json:"capture,omitempty"`
}

// ClassifyResponse is the result of a single-shot classification.
type ClassifyResponse struct {
	Results []ranker.Result `json:"results"`
	TopPick *ranker.Result  `json:"topPick,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Category  string `json:"category,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"state":          s.ctrl.State().String(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func (s *Server) stateResponse() StateResponse {
	resp := StateResponse{
		State: s.ctrl.State().String(),
		RunID: s.ctrl.RunID(),
	}
	if err := s.ctrl.Err(); err != nil {
		resp.Error = err.Error()
	}
	if s.stats != nil {
		stats := s.stats()
		resp.Capture = &stats
	}
	return resp
}

// getState returns the session state.
// API: GET /api/v1/state
func (s *Server) getState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.stateResponse())
}

// getOutput returns the latest rendered output.
// API: GET /api/v1/output
func (s *Server) getOutput(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Output())
}

// startSession starts the live session and waits until it is running or has
// failed. The session keeps running after the request ends.
// API: POST /api/v1/session/start
func (s *Server) startSession(c echo.Context) error {
	ctx := context.WithoutCancel(c.Request().Context())
	if err := s.ctrl.Start(ctx); err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, s.stateResponse())
}

// stopSession requests the live session to stop. The stop completes once any
// in-flight prediction has finished.
// API: POST /api/v1/session/stop
func (s *Server) stopSession(c echo.Context) error {
	s.ctrl.Stop()
	return c.JSON(http.StatusAccepted, s.stateResponse())
}

// classifyUpload classifies one uploaded PNG or JPEG image, sent either as
// the "image" multipart field or as the raw request body.
// API: POST /api/v1/classify
func (s *Server) classifyUpload(c echo.Context) error {
	data, err := readUpload(c)
	if err != nil {
		return s.errorResponse(c, err)
	}

	results, err := s.ctrl.ClassifyOnce(c.Request().Context(), imagesrc.Decode(data))
	if err != nil {
		return s.errorResponse(c, err)
	}

	resp := ClassifyResponse{Results: results}
	if len(results) > 0 {
		resp.TopPick = &results[0]
	}
	return c.JSON(http.StatusOK, resp)
}

func readUpload(c echo.Context) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if strings.HasPrefix(mediaType, "multipart/") {
		fh, err := c.FormFile(uploadField)
		if err != nil {
			return nil, errors.DecodeError(err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.DecodeError(err)
		}
		defer func() { _ = f.Close() }()
		return readLimited(f)
	}
	return readLimited(c.Request().Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, imagesrc.MaxUploadBytes+1))
	if err != nil {
		return nil, errors.DecodeError(err)
	}
	if len(data) > imagesrc.MaxUploadBytes {
		return nil, errors.DecodeError(errors.NewStd("upload too large"))
	}
	return data, nil
}

// errorResponse maps pipeline errors to HTTP status codes.
func (s *Server) errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrDecode):
		status = http.StatusBadRequest
	case errors.Is(err, errors.ErrModelLoad):
		status = http.StatusBadGateway
	case errors.Is(err, errors.ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrNotReady):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}

	resp := ErrorResponse{
		Error:     err.Error(),
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	}
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		resp.Category = ee.GetCategory()
	}

	if status >= http.StatusInternalServerError {
		GetLogger().Error("request failed",
			logger.String("path", c.Path()),
			logger.Int("status", status),
			logger.Error(err))
	}
	return c.JSON(status, resp)
}

// Ensure the session controller satisfies the API surface.
var _ Controller = (*session.Controller)(nil)
