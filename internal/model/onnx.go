package model

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/tphakala/livelabel/internal/cpuspec"
	"github.com/tphakala/livelabel/internal/logger"
)

var (
	ortOnce    sync.Once
	ortInitErr error
)

// initONNXRuntime loads the shared onnxruntime library once per process.
func initONNXRuntime(libraryPath string) error {
	ortOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// onnxModel runs an ONNX classifier through a session bound to fixed
// input/output tensors; Run mutates them, so calls are serialised.
type onnxModel struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	labels []string
	size   int
	layout tensorLayout
}

func newONNXModel(data []byte, labels []string, cfg Config) (Model, error) {
	if err := initONNXRuntime(cfg.ONNXLibrary); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect ONNX model: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected one input and one output, got %d and %d", len(inputs), len(outputs))
	}

	size, layout, err := imageInputShape(inputs[0].Dimensions, cfg.InputSize)
	if err != nil {
		return nil, err
	}

	outDims := outputs[0].Dimensions
	if len(outDims) == 0 || outDims[len(outDims)-1] != int64(len(labels)) {
		return nil, fmt.Errorf("model output shape %v does not match %d labels", outDims, len(labels))
	}

	inShape := ort.NewShape(1, channels, int64(size), int64(size))
	if layout == layoutNHWC {
		inShape = ort.NewShape(1, int64(size), int64(size), channels)
	}

	m := &onnxModel{labels: labels, size: size, layout: layout}

	m.input, err = ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	m.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = options.Destroy() }()

	threads := cpuspec.ThreadCount(cfg.Threads)
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to set thread count: %w", err)
	}

	m.session, err = ort.NewAdvancedSessionWithONNXData(data,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.ArbitraryTensor{m.input}, []ort.ArbitraryTensor{m.output},
		options)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	GetLogger().Debug("onnx session ready",
		logger.String("input", inputs[0].Name),
		logger.String("output", outputs[0].Name),
		logger.Int("threads", threads),
		logger.Int("input_size", size))

	return m, nil
}

// imageInputShape accepts [N,3,S,S] or [N,S,S,3]; dynamic dims (-1) fall
// back to the configured size.
func imageInputShape(dims ort.Shape, configured int) (int, tensorLayout, error) {
	if len(dims) != 4 {
		return 0, 0, fmt.Errorf("unexpected input rank %d, want 4", len(dims))
	}

	pick := func(d int64) int {
		if d > 0 {
			return int(d)
		}
		return configured
	}

	switch {
	case dims[1] == channels && pick(dims[2]) == pick(dims[3]):
		return pick(dims[2]), layoutNCHW, nil
	case dims[3] == channels && pick(dims[1]) == pick(dims[2]):
		return pick(dims[1]), layoutNHWC, nil
	default:
		return 0, 0, fmt.Errorf("unsupported input shape %v", dims)
	}
}

func (m *onnxModel) Predict(_ context.Context, img image.Image) ([]Prediction, error) {
	input := make([]float32, m.size*m.size*channels)
	if err := fillInput(input, img, m.size, m.layout); err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, fmt.Errorf("model closed")
	}

	copy(m.input.GetData(), input)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scores := make([]float32, len(m.labels))
	copy(scores, m.output.GetData())
	return pairLabels(m.labels, scores), nil
}

func (m *onnxModel) Labels() []string { return m.labels }

func (m *onnxModel) Backend() string { return BackendONNX }

func (m *onnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.session != nil {
		keep(m.session.Destroy())
		m.session = nil
	}
	if m.input != nil {
		keep(m.input.Destroy())
		m.input = nil
	}
	if m.output != nil {
		keep(m.output.Destroy())
		m.output = nil
	}
	return firstErr
}
