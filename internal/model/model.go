// Package model owns the pretrained image classifier: resolving and loading
// its artifacts exactly once, and running predictions against decoded images.
package model

import (
	"context"
	"image"
	"time"
)

// Backend names accepted in configuration.
const (
	BackendTFLite = "tflite"
	BackendONNX   = "onnx"
)

// Default values for a Config.
const (
	DefaultInputSize = 224
	DefaultCacheTTL  = 10 * time.Minute
)

// Prediction is a single class probability. A predict call returns one per
// label, in label order.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
}

// Model is a loaded classifier. Implementations must be safe for concurrent
// Predict calls.
type Model interface {
	Predict(ctx context.Context, img image.Image) ([]Prediction, error)
	Labels() []string
	// Backend names the inference engine, used as a metrics label.
	Backend() string
	Close() error
}

// Loader resolves a model reference and returns a ready Model.
type Loader interface {
	Load(ctx context.Context, ref string) (Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, ref string) (Model, error)

// Load calls f(ctx, ref).
func (f LoaderFunc) Load(ctx context.Context, ref string) (Model, error) {
	return f(ctx, ref)
}

// Config controls artifact resolution and backend construction.
type Config struct {
	Backend    string        // "tflite" (default) or "onnx"; inferred from a file ref's extension when empty
	Threads    int           // interpreter threads, 0 picks a value from the CPU count
	UseXNNPACK bool          // tflite only
	InputSize  int           // square input edge in pixels, default 224
	CacheTTL   time.Duration // remote artifact cache lifetime

	// ONNXLibrary is the onnxruntime shared library path; empty uses the platform default.
	ONNXLibrary string
}

func (c Config) withDefaults() Config {
	if c.InputSize <= 0 {
		c.InputSize = DefaultInputSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return c
}

// pairLabels zips labels and scores into predictions, in label order.
func pairLabels(labels []string, scores []float32) []Prediction {
	n := min(len(labels), len(scores))
	preds := make([]Prediction, n)
	for i := range n {
		preds[i] = Prediction{Label: labels[i], Probability: max(scores[i], 0)}
	}
	return preds
}
