package model

import (
	"context"
	"fmt"
	"image"
	"sync"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/livelabel/internal/cpuspec"
	"github.com/tphakala/livelabel/internal/logger"
)

// tfliteModel runs a float Teachable Machine export. The interpreter owns
// mutable input/output tensors, so invocations are serialised.
type tfliteModel struct {
	mu       sync.Mutex
	model    *tflite.Model
	interp   *tflite.Interpreter
	delegate interface{ Delete() }

	labels []string
	size   int
}

func newTFLiteModel(data []byte, labels []string, cfg Config) (Model, error) {
	model := tflite.NewModel(data)
	if model == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model (%d bytes)", len(data))
	}

	m := &tfliteModel{model: model, labels: labels}

	threads := cpuspec.ThreadCount(cfg.Threads)
	options := tflite.NewInterpreterOptions()
	defer options.Delete()

	log := GetLogger()
	if cfg.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // bounded by CPU count
		if delegate == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			m.delegate = delegate
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	m.interp = tflite.NewInterpreter(model, options)
	if m.interp == nil {
		_ = m.Close()
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := m.interp.AllocateTensors(); status != tflite.OK {
		_ = m.Close()
		return nil, fmt.Errorf("tensor allocation failed")
	}

	if err := m.checkTensors(cfg.InputSize); err != nil {
		_ = m.Close()
		return nil, err
	}

	log.Debug("tflite interpreter ready",
		logger.Int("threads", threads),
		logger.Bool("xnnpack", m.delegate != nil),
		logger.Int("input_size", m.size))

	return m, nil
}

// checkTensors validates the input is a float [1,H,W,3] square and the output
// width matches the label count.
func (m *tfliteModel) checkTensors(wantSize int) error {
	input := m.interp.GetInputTensor(0)
	if input == nil {
		return fmt.Errorf("model has no input tensor")
	}
	if input.Type() != tflite.Float32 {
		return fmt.Errorf("input tensor type %v is not float32; use the unquantized export", input.Type())
	}
	if input.NumDims() != 4 || input.Dim(1) != input.Dim(2) || input.Dim(3) != channels {
		return fmt.Errorf("unexpected input tensor shape, want [1,N,N,3]")
	}
	m.size = input.Dim(1)
	if wantSize > 0 && wantSize != m.size {
		GetLogger().Warn("configured input size differs from model, using model size",
			logger.Int("configured", wantSize),
			logger.Int("model", m.size))
	}

	output := m.interp.GetOutputTensor(0)
	if output == nil {
		return fmt.Errorf("model has no output tensor")
	}
	if width := output.Dim(output.NumDims() - 1); width != len(m.labels) {
		return fmt.Errorf("model outputs %d classes but metadata lists %d labels", width, len(m.labels))
	}
	return nil
}

func (m *tfliteModel) Predict(_ context.Context, img image.Image) ([]Prediction, error) {
	input := make([]float32, m.size*m.size*channels)
	if err := fillInput(input, img, m.size, layoutNHWC); err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interp == nil {
		return nil, fmt.Errorf("model closed")
	}

	copy(m.interp.GetInputTensor(0).Float32s(), input)
	if status := m.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	output := m.interp.GetOutputTensor(0)
	scores := make([]float32, output.Dim(output.NumDims()-1))
	copy(scores, output.Float32s())

	return pairLabels(m.labels, scores), nil
}

func (m *tfliteModel) Labels() []string { return m.labels }

func (m *tfliteModel) Backend() string { return BackendTFLite }

func (m *tfliteModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interp != nil {
		m.interp.Delete()
		m.interp = nil
	}
	if m.delegate != nil {
		m.delegate.Delete()
		m.delegate = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
	return nil
}
