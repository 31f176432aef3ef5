package capture

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/logger"
)

// Default webcam geometry.
const (
	DefaultWidth  = 224
	DefaultHeight = 224
)

// WebcamConfig selects and shapes the camera stream.
type WebcamConfig struct {
	// Device is a camera index ("0") or a stream/file path understood by OpenCV.
	Device string
	Width  int
	Height int
	// Mirror flips frames horizontally, like a selfie view.
	Mirror bool
}

// Webcam is an OpenCV-backed capture device.
type Webcam struct {
	cfg WebcamConfig

	mu    sync.Mutex
	vc    *gocv.VideoCapture
	frame gocv.Mat
	out   gocv.Mat
}

// NewWebcam returns an unopened webcam.
func NewWebcam(cfg WebcamConfig) *Webcam {
	if cfg.Device == "" {
		cfg.Device = "0"
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	return &Webcam{cfg: cfg}
}

// Name returns the configured device identifier.
func (w *Webcam) Name() string { return "webcam:" + w.cfg.Device }

// Open starts the camera stream.
func (w *Webcam) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.vc != nil {
		return nil
	}

	var source any = w.cfg.Device
	if id, err := strconv.Atoi(w.cfg.Device); err == nil {
		source = id
	}

	vc, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return errors.DeviceError(err, w.Name())
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return errors.DeviceError(fmt.Errorf("camera %s did not open", w.cfg.Device), w.Name())
	}

	// Drivers may ignore the requested size; Refresh resizes when they do.
	vc.Set(gocv.VideoCaptureFrameWidth, float64(w.cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(w.cfg.Height))

	w.vc = vc
	w.frame = gocv.NewMat()
	w.out = gocv.NewMat()

	GetLogger().Debug("webcam opened",
		logger.String("device", w.cfg.Device),
		logger.Int("width", w.cfg.Width),
		logger.Int("height", w.cfg.Height),
		logger.Bool("mirror", w.cfg.Mirror))
	return nil
}

// Refresh reads one frame and converts it to an image.Image.
func (w *Webcam) Refresh() (image.Image, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.vc == nil {
		return nil, fmt.Errorf("webcam %s is not open", w.cfg.Device)
	}
	if ok := w.vc.Read(&w.frame); !ok || w.frame.Empty() {
		return nil, fmt.Errorf("webcam %s returned no frame", w.cfg.Device)
	}

	src := w.frame
	if src.Cols() != w.cfg.Width || src.Rows() != w.cfg.Height {
		gocv.Resize(src, &w.out, image.Pt(w.cfg.Width, w.cfg.Height), 0, 0, gocv.InterpolationLinear)
		src = w.out
	}
	if w.cfg.Mirror {
		gocv.Flip(src, &w.out, 1)
		src = w.out
	}

	img, err := src.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the camera. Calling it again is a no-op.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.vc == nil {
		return nil
	}
	err := w.vc.Close()
	_ = w.frame.Close()
	_ = w.out.Close()
	w.vc = nil
	return err
}
