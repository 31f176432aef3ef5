// Package errors provides centralized error handling with optional telemetry integration
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for metrics, API responses and telemetry.
type ErrorCategory string

const (
	CategoryModelInit     ErrorCategory = "model-initialization"
	CategoryModelLoad     ErrorCategory = "model-loading"
	CategoryLabelLoad     ErrorCategory = "label-loading"
	CategoryInference     ErrorCategory = "inference"
	CategoryValidation    ErrorCategory = "validation"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryNetwork       ErrorCategory = "network"
	CategoryCaptureDevice ErrorCategory = "capture-device"
	CategoryImageDecode   ErrorCategory = "image-decode"
	CategoryHTTP          ErrorCategory = "http-request"
	CategoryMQTTConnect   ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish   ErrorCategory = "mqtt-publish"
	CategoryConfiguration ErrorCategory = "configuration"
	CategorySystem        ErrorCategory = "system-resource"
	CategoryGeneric       ErrorCategory = "generic"
	CategoryState         ErrorCategory = "state"
	CategoryCancellation  ErrorCategory = "cancellation"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// hasActiveReporting is set while an enabled telemetry reporter is installed.
// Without it Build never walks the stack.
var hasActiveReporting atomic.Bool

// EnhancedError wraps an error with the component it came from, a category
// and anonymized context.
type EnhancedError struct {
	Err      error
	Category ErrorCategory
	Context  map[string]any

	mu        sync.RWMutex
	component string
	reported  bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError by category, anything else through the
// wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetComponent returns the component name.
func (ee *EnhancedError) GetComponent() string {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.component
}

// GetCategory returns the error category as a string.
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetContext returns a copy of the error context.
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// MarkReported records that telemetry has seen this error.
func (ee *EnhancedError) MarkReported() {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	ee.reported = true
}

// IsReported reports whether telemetry has seen this error.
func (ee *EnhancedError) IsReported() bool {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.reported
}

// ErrorBuilder builds an EnhancedError fluently:
//
//	errors.New(err).Component("model").Category(errors.CategoryModelLoad).Build()
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts a builder for err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts a builder for a formatted error.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name. When unset it is detected from the
// caller's package, but only if telemetry reporting is active.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category. When unset it is derived from the wrapped error.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds one context value.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// ModelContext records what kind of model reference failed, never the
// reference itself.
func (eb *ErrorBuilder) ModelContext(modelRef, backend string) *ErrorBuilder {
	if modelRef != "" {
		eb.Context("model_ref_type", categorizeModelRef(modelRef))
	}
	if backend != "" {
		eb.Context("model_backend", backend)
	}
	return eb
}

// FileContext records the file type, extension and size class of path.
func (eb *ErrorBuilder) FileContext(path string, size int64) *ErrorBuilder {
	if path != "" {
		eb.Context("file_type", categorizeFilePath(path))
		eb.Context("file_extension", fileExtension(path))
	}
	if size > 0 {
		eb.Context("file_size_category", categorizeFileSize(size))
	}
	return eb
}

// NetworkContext records the URL scheme class and how long the request ran.
func (eb *ErrorBuilder) NetworkContext(url string, elapsed time.Duration) *ErrorBuilder {
	if url != "" {
		eb.Context("url_category", categorizeURL(url))
	}
	if elapsed > 0 {
		eb.Context("elapsed_seconds", elapsed.Seconds())
	}
	return eb
}

// Build creates the EnhancedError and hands it to the telemetry reporter, if
// one is active.
func (eb *ErrorBuilder) Build() *EnhancedError {
	reporting := hasActiveReporting.Load()

	component := eb.component
	if component == "" {
		component = ComponentUnknown
		if reporting {
			component = detectComponent()
		}
	}
	category := eb.category
	if category == "" {
		category = detectCategory(eb.err, component)
	}

	ee := &EnhancedError{
		Err:       eb.err,
		Category:  category,
		Context:   eb.context,
		component: component,
	}
	if reporting {
		reportToTelemetry(ee)
	}
	return ee
}

// componentPackages maps package path fragments to component names.
var componentPackages = map[string]string{
	"internal/model":    "model",
	"internal/capture":  "capture",
	"internal/ranker":   "ranker",
	"internal/session":  "session",
	"internal/imagesrc": "imagesrc",
	"internal/conf":     "configuration",
	"internal/api":      "api",
	"internal/mqtt":     "mqtt",
}

// detectComponent names the first caller outside this package.
func detectComponent() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.Contains(frame.Function, "livelabel/internal/errors.") {
			return lookupComponent(frame.Function)
		}
		if !more {
			return ComponentUnknown
		}
	}
}

func lookupComponent(funcName string) string {
	for fragment, component := range componentPackages {
		if strings.Contains(funcName, fragment+".") || strings.Contains(funcName, fragment+"/") {
			return component
		}
	}
	// Fall back to the last package path element.
	last := funcName[strings.LastIndex(funcName, "/")+1:]
	if dot := strings.Index(last, "."); dot > 0 {
		return last[:dot]
	}
	return ComponentUnknown
}

// detectCategory derives a category from wrapped sentinels, an inner
// EnhancedError, the message and finally the component.
func detectCategory(err error, component string) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}

	var inner *EnhancedError
	if stderrors.As(err, &inner) && inner.Category != "" {
		return inner.Category
	}

	switch {
	case stderrors.Is(err, ErrModelLoad):
		return CategoryModelLoad
	case stderrors.Is(err, ErrNotReady):
		return CategoryState
	case stderrors.Is(err, ErrDeviceUnavailable):
		return CategoryCaptureDevice
	case stderrors.Is(err, ErrDecode):
		return CategoryImageDecode
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "model") && (strings.Contains(msg, "load") || strings.Contains(msg, "read")):
		return CategoryModelLoad
	case strings.Contains(msg, "model") && (strings.Contains(msg, "init") || strings.Contains(msg, "create")):
		return CategoryModelInit
	case strings.Contains(msg, "label"):
		return CategoryLabelLoad
	case strings.Contains(msg, "file"), strings.Contains(msg, "open"):
		return CategoryFileIO
	case strings.Contains(msg, "connection"), strings.Contains(msg, "timeout"):
		return CategoryNetwork
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"), strings.Contains(msg, "validation"):
		return CategoryValidation
	}

	switch component {
	case "model":
		return CategoryInference
	case "capture":
		return CategoryCaptureDevice
	case "imagesrc":
		return CategoryImageDecode
	case "api":
		return CategoryHTTP
	}
	return CategoryGeneric
}

func categorizeModelRef(ref string) string {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return "remote"
	case strings.HasSuffix(lower, ".onnx"), strings.HasSuffix(lower, ".tflite"):
		return "local-file"
	default:
		return "local-directory"
	}
}

func categorizeFilePath(path string) string {
	if strings.ContainsAny(path, `/\`) {
		return "absolute-path"
	}
	return "relative-path"
}

func fileExtension(path string) string {
	if dot := strings.LastIndex(path, "."); dot > 0 && dot < len(path)-1 {
		return strings.ToLower(path[dot+1:])
	}
	return "none"
}

func categorizeFileSize(size int64) string {
	switch {
	case size < 1<<10:
		return "tiny"
	case size < 1<<20:
		return "small"
	case size < 10<<20:
		return "medium"
	case size < 100<<20:
		return "large"
	default:
		return "very-large"
	}
}

func categorizeURL(url string) string {
	url = strings.ToLower(url)
	switch {
	case strings.HasPrefix(url, "http://"):
		return "http-endpoint"
	case strings.HasPrefix(url, "https://"):
		return "https-endpoint"
	case strings.HasPrefix(url, "tcp://"), strings.HasPrefix(url, "ssl://"):
		return "mqtt-broker"
	default:
		return "other-protocol"
	}
}

// NewStd creates a plain error, like the standard library's errors.New.
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is is the standard library's errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is the standard library's errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// IsCategory reports whether err wraps an EnhancedError of category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return stderrors.As(err, &ee) && ee.Category == category
}
