// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Operation type constants used as label values.
const (
	// OpPrediction represents a single model predict call.
	OpPrediction = "prediction"
	// OpModelLoad represents a model artifact load.
	OpModelLoad = "model_load"
	// OpClassifyOnce represents a single-shot upload classification.
	OpClassifyOnce = "classify_once"
	// OpPublish represents an MQTT result publish.
	OpPublish = "publish"
)

// Label value constants used for status labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)

// ShutdownTimeout is the timeout for graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second
