package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/example/traffic-sign/internal/tensor"
)

const (
	LayoutNCHW = "nchw"
	LayoutNHWC = "nhwc"
)

// ONNXMetadata describes an exported model. It is stored as JSON next to the
// .onnx file.
type ONNXMetadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	Layout      string   `json:"layout"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
}

// ONNXConfig locates a pretrained model and the onnxruntime shared library.
type ONNXConfig struct {
	ModelPath         string
	MetadataPath      string
	SharedLibraryPath string
}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initRuntime(libPath string) error {
	ortInitOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// ONNX scores images with a pretrained model through onnxruntime.
type ONNX struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]

	Metadata  ONNXMetadata
	shape     tensor.Shape
	numLabels int
}

// ReadONNXMetadata loads and validates a metadata file, returning the pipeline
// input shape (1, H, W, 3) it implies and the number of output classes.
func ReadONNXMetadata(path string) (ONNXMetadata, tensor.Shape, int, error) {
	var meta ONNXMetadata
	raw, err := os.ReadFile(path)
	if err != nil {
		return meta, nil, 0, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, nil, 0, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if meta.Layout == "" {
		meta.Layout = LayoutNCHW
	}
	if meta.InputName == "" {
		meta.InputName = "input"
	}
	if meta.OutputName == "" {
		meta.OutputName = "output"
	}

	in := meta.InputShape
	if len(in) != 4 || in[0] != 1 {
		return meta, nil, 0, fmt.Errorf("metadata input_shape %v: want a batch of one image", in)
	}
	var shape tensor.Shape
	switch meta.Layout {
	case LayoutNCHW:
		if in[1] != 3 {
			return meta, nil, 0, fmt.Errorf("metadata input_shape %v: want 3 channels", in)
		}
		shape = tensor.ImageShape(int(in[3]), int(in[2]))
	case LayoutNHWC:
		if in[3] != 3 {
			return meta, nil, 0, fmt.Errorf("metadata input_shape %v: want 3 channels", in)
		}
		shape = tensor.ImageShape(int(in[2]), int(in[1]))
	default:
		return meta, nil, 0, fmt.Errorf("metadata layout %q: want %s or %s", meta.Layout, LayoutNCHW, LayoutNHWC)
	}

	if len(meta.OutputShape) == 0 {
		return meta, nil, 0, fmt.Errorf("metadata output_shape is empty")
	}
	numLabels := int(meta.OutputShape[len(meta.OutputShape)-1])
	if len(meta.Classes) != 0 && len(meta.Classes) != numLabels {
		return meta, nil, 0, fmt.Errorf("metadata lists %d classes for %d outputs", len(meta.Classes), numLabels)
	}
	return meta, shape, numLabels, nil
}

// NewONNX loads the model described by cfg.
func NewONNX(cfg ONNXConfig) (*ONNX, error) {
	meta, shape, numLabels, err := ReadONNXMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}

	if err := initRuntime(cfg.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNX{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		Metadata:     meta,
		shape:        shape,
		numLabels:    numLabels,
	}, nil
}

func (o *ONNX) InputShape() tensor.Shape { return o.shape }

func (o *ONNX) NumLabels() int { return o.numLabels }

// Score copies the tensor into the session input, in the model's layout, and
// runs inference. Calls are serialised because the session buffers are shared.
func (o *ONNX) Score(ctx context.Context, in *tensor.Tensor) ([]float32, error) {
	if err := checkInput(ctx, o, in); err != nil {
		return nil, err
	}

	data := in.Data
	if o.Metadata.Layout == LayoutNCHW {
		planar, err := in.NCHW()
		if err != nil {
			return nil, err
		}
		data = planar
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	copy(o.inputTensor.GetData(), data)
	if err := o.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	out := o.outputTensor.GetData()
	if len(out) < o.numLabels {
		return nil, fmt.Errorf("inference returned %d values for %d labels", len(out), o.numLabels)
	}
	return append([]float32(nil), out[:o.numLabels]...), nil
}

// Close releases the session and its tensors. The onnxruntime environment is
// process wide and stays initialised.
func (o *ONNX) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inputTensor != nil {
		o.inputTensor.Destroy()
		o.inputTensor = nil
	}
	if o.outputTensor != nil {
		o.outputTensor.Destroy()
		o.outputTensor = nil
	}
	if o.session != nil {
		o.session.Destroy()
		o.session = nil
	}
	return nil
}
