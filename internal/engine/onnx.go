package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"inference-filter/internal/tensor"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig points at the runtime library and the model artifact.
type ONNXConfig struct {
	SharedLibraryPath string
	ModelPath         string
	IntraOpThreads    int
	// MaxConcurrentRuns bounds native runs in flight, abandoned ones
	// included. Zero uses DefaultMaxConcurrentRuns.
	MaxConcurrentRuns int
	// Optimize enables every graph-level optimization pass before the
	// session is compiled.
	Optimize bool
}

var (
	envOnce sync.Once
	envErr  error
)

func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

type onnxEngine struct {
	session *ort.DynamicAdvancedSession
	inputs  []IOInfo
	outputs []IOInfo
	runs    *runGuard
}

// NewONNXLoader returns a Loader that compiles the configured model with
// ONNX Runtime.
func NewONNXLoader(cfg ONNXConfig) Loader {
	return func() (Engine, error) {
		return LoadONNX(cfg)
	}
}

func LoadONNX(cfg ONNXConfig) (Engine, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model artifact: %w", err)
	}
	if err := initEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("initializing onnxruntime: %w", err)
	}

	ins, outs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("reading model metadata: %w", err)
	}
	inputs, err := convertInfo(ins)
	if err != nil {
		return nil, err
	}
	outputs, err := convertInfo(outs)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, errors.New("model declares no outputs")
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("setting intra-op threads: %w", err)
		}
	}
	var level ort.GraphOptimizationLevel = ort.GraphOptimizationLevelDisableAll
	if cfg.Optimize {
		level = ort.GraphOptimizationLevelEnableAll
	}
	if err := opts.SetGraphOptimizationLevel(level); err != nil {
		return nil, fmt.Errorf("setting optimization level: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, names(inputs), names(outputs), opts)
	if err != nil {
		return nil, fmt.Errorf("compiling model: %w", err)
	}
	return &onnxEngine{
		session: session,
		inputs:  inputs,
		outputs: outputs,
		runs:    newRunGuard(cfg.MaxConcurrentRuns),
	}, nil
}

func convertInfo(infos []ort.InputOutputInfo) ([]IOInfo, error) {
	out := make([]IOInfo, 0, len(infos))
	for _, info := range infos {
		var dt tensor.DType
		switch info.DataType {
		case ort.TensorElementDataTypeFloat:
			dt = tensor.Float32
		case ort.TensorElementDataTypeInt64:
			dt = tensor.Int64
		default:
			return nil, fmt.Errorf("%s: unsupported element type %v", info.Name, info.DataType)
		}
		out = append(out, IOInfo{Name: info.Name, Shape: tensor.Shape(info.Dimensions), DType: dt})
	}
	return out, nil
}

func names(infos []IOInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}

func (e *onnxEngine) Inputs() []IOInfo  { return e.inputs }
func (e *onnxEngine) Outputs() []IOInfo { return e.outputs }

func (e *onnxEngine) Run(ctx context.Context, inputs []tensor.Tensor) ([]tensor.Tensor, error) {
	if len(inputs) != len(e.inputs) {
		return nil, fmt.Errorf("model takes %d inputs, got %d", len(e.inputs), len(inputs))
	}
	values := make([]ort.Value, len(inputs))
	for i, in := range inputs {
		v, err := toValue(in)
		if err != nil {
			destroyAll(values)
			return nil, fmt.Errorf("input %s: %w", e.inputs[i].Name, err)
		}
		values[i] = v
	}

	outputs := make([]ort.Value, len(e.outputs))
	err := e.runs.do(ctx, func() error {
		return e.session.Run(values, outputs)
	}, func() {
		destroyAll(values)
		destroyAll(outputs)
	})
	if err != nil {
		return nil, err
	}
	defer destroyAll(values)
	defer destroyAll(outputs)

	result := make([]tensor.Tensor, len(outputs))
	for i, v := range outputs {
		t, err := fromValue(v)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", e.outputs[i].Name, err)
		}
		result[i] = t
	}
	return result, nil
}

// Close waits for every native run, abandoned ones included, before the
// session is destroyed.
func (e *onnxEngine) Close() error {
	e.runs.wait()
	return e.session.Destroy()
}

func toValue(t tensor.Tensor) (ort.Value, error) {
	shape := ort.Shape(t.Shape)
	switch t.DType {
	case tensor.Float32:
		v, err := ort.NewTensor(shape, t.F32)
		if err != nil {
			return nil, err
		}
		return v, nil
	case tensor.Int64:
		v, err := ort.NewTensor(shape, t.I64)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported dtype %s", t.DType)
}

func fromValue(v ort.Value) (tensor.Tensor, error) {
	switch tv := v.(type) {
	case *ort.Tensor[float32]:
		data := append([]float32(nil), tv.GetData()...)
		return tensor.NewFloat32(tensor.Shape(tv.GetShape()), data)
	case *ort.Tensor[int64]:
		data := append([]int64(nil), tv.GetData()...)
		return tensor.NewInt64(tensor.Shape(tv.GetShape()), data)
	case nil:
		return tensor.Tensor{}, errors.New("runtime produced no value")
	}
	return tensor.Tensor{}, fmt.Errorf("unsupported output value %T", v)
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			_ = v.Destroy()
		}
	}
}
