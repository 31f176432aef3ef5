package model

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/httpclient"
	"github.com/tphakala/livelabel/internal/logger"
)

// backendFactory builds a Model from raw model bytes and ordered labels.
type backendFactory func(data []byte, labels []string, cfg Config) (Model, error)

// ArtifactLoader resolves a model reference to its model and metadata
// artifacts and builds the configured inference backend.
type ArtifactLoader struct {
	cfg      Config
	source   *artifactSource
	backends map[string]backendFactory
}

// NewLoader returns a Loader for cfg. A nil client uses default HTTP settings.
func NewLoader(cfg Config, client *httpclient.Client) *ArtifactLoader {
	cfg = cfg.withDefaults()
	return &ArtifactLoader{
		cfg:    cfg,
		source: newArtifactSource(client, cfg.CacheTTL),
		backends: map[string]backendFactory{
			BackendTFLite: newTFLiteModel,
			BackendONNX:   newONNXModel,
		},
	}
}

// Load implements Loader. Every failure wraps errors.ErrModelLoad.
func (l *ArtifactLoader) Load(ctx context.Context, ref string) (Model, error) {
	start := time.Now()

	loc, err := resolveLocation(ref)
	if err != nil {
		return nil, errors.ModelLoadError(err, ref, l.cfg.Backend)
	}

	backend := resolveBackend(l.cfg.Backend, loc)
	factory, ok := l.backends[backend]
	if !ok {
		return nil, errors.ModelLoadError(fmt.Errorf("unknown model backend %q", backend), ref, backend)
	}

	modelNames, labelNames := tfliteModelNames, tfliteLabelNames
	if backend == BackendONNX {
		modelNames, labelNames = onnxModelNames, onnxLabelNames
	}
	if loc.modelName != "" {
		modelNames = []string{loc.modelName}
	}

	modelName, modelData, err := l.source.readFirst(ctx, loc, modelNames)
	if err != nil {
		return nil, errors.ModelLoadError(fmt.Errorf("model artifact: %w", err), ref, backend)
	}

	labelName, labelData, err := l.source.readFirst(ctx, loc, labelNames)
	if err != nil {
		return nil, errors.ModelLoadError(fmt.Errorf("metadata artifact: %w", err), ref, backend)
	}

	set, err := parseLabels(labelName, labelData)
	if err != nil {
		return nil, errors.ModelLoadError(err, ref, backend)
	}

	cfg := l.cfg
	cfg.Backend = backend
	if set.imageSize > 0 {
		cfg.InputSize = set.imageSize
	}

	m, err := factory(modelData, set.labels, cfg)
	if err != nil {
		return nil, errors.ModelLoadError(fmt.Errorf("%s: %w", modelName, err), ref, backend)
	}

	GetLogger().Debug("model artifacts resolved",
		logger.String("model_file", modelName),
		logger.String("metadata_file", labelName),
		logger.String("backend", backend),
		logger.Int("labels", len(set.labels)),
		logger.Duration("elapsed", time.Since(start)))

	return m, nil
}
