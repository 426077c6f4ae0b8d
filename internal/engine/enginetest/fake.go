// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"sync"
	"sync/atomic"

	"inference-filter/internal/engine"
	"inference-filter/internal/tensor"
)

// Engine runs RunFunc and records every call. It is safe for concurrent use.
type Engine struct {
	In      []engine.IOInfo
	Out     []engine.IOInfo
	RunFunc func(ctx context.Context, inputs []tensor.Tensor) ([]tensor.Tensor, error)

	calls  atomic.Int64
	closed atomic.Bool

	mu   sync.Mutex
	last []tensor.Tensor
}

// Logits returns an engine that ignores its input and emits the given
// float32 vector as its only output.
func Logits(in []engine.IOInfo, logits []float32) *Engine {
	return &Engine{
		In:  in,
		Out: []engine.IOInfo{{Name: "logits", Shape: tensor.Shape{1, int64(len(logits))}, DType: tensor.Float32}},
		RunFunc: func(context.Context, []tensor.Tensor) ([]tensor.Tensor, error) {
			out, err := tensor.NewFloat32(tensor.Shape{1, int64(len(logits))}, append([]float32(nil), logits...))
			return []tensor.Tensor{out}, err
		},
	}
}

func (e *Engine) Inputs() []engine.IOInfo  { return e.In }
func (e *Engine) Outputs() []engine.IOInfo { return e.Out }

func (e *Engine) Run(ctx context.Context, inputs []tensor.Tensor) ([]tensor.Tensor, error) {
	e.calls.Add(1)
	e.mu.Lock()
	e.last = inputs
	e.mu.Unlock()
	return e.RunFunc(ctx, inputs)
}

func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

func (e *Engine) Calls() int64 { return e.calls.Load() }

func (e *Engine) Closed() bool { return e.closed.Load() }

// LastInputs returns the inputs of the most recent Run.
func (e *Engine) LastInputs() []tensor.Tensor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}
