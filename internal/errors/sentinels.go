package errors

import "fmt"

// Sentinel errors for the classification pipeline. Every error surfaced by the
// model, capture and session packages wraps exactly one of these so callers can
// branch with errors.Is.
var (
	// ErrModelLoad means the remote model artifact was unreachable or malformed.
	// Terminal for the current attempt; nothing retries it automatically.
	ErrModelLoad = NewStd("model load failed")

	// ErrNotReady means predict was invoked before the model finished loading.
	ErrNotReady = NewStd("model not ready")

	// ErrDeviceUnavailable means the capture device could not be acquired or read.
	ErrDeviceUnavailable = NewStd("capture device unavailable")

	// ErrDecode means an uploaded image could not be decoded.
	ErrDecode = NewStd("image decode failed")
)

// ModelLoadError wraps err as an ErrModelLoad with model context.
func ModelLoadError(err error, modelRef, backend string) *EnhancedError {
	return New(fmt.Errorf("%w: %w", ErrModelLoad, err)).
		Component("model").
		Category(CategoryModelLoad).
		ModelContext(modelRef, backend).
		Build()
}

// DeviceError wraps err as an ErrDeviceUnavailable.
func DeviceError(err error, device string) *EnhancedError {
	return New(fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)).
		Component("capture").
		Category(CategoryCaptureDevice).
		Context("device", device).
		Build()
}

// DecodeError wraps err as an ErrDecode.
func DecodeError(err error) *EnhancedError {
	return New(fmt.Errorf("%w: %w", ErrDecode, err)).
		Component("imagesrc").
		Category(CategoryImageDecode).
		Build()
}
