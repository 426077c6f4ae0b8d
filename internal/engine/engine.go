// Package engine wraps the numeric inference runtime behind a small
// interface so the pipeline can treat a model as a pure function.
package engine

import (
	"context"

	"inference-filter/internal/tensor"
)

// IOInfo describes one declared model input or output.
type IOInfo struct {
	Name  string       `json:"name"`
	Shape tensor.Shape `json:"shape"`
	DType tensor.DType `json:"dtype"`
}

// Engine is a loaded, compiled model. Implementations must be safe for
// concurrent Run calls and must not mutate state after construction.
type Engine interface {
	Inputs() []IOInfo
	Outputs() []IOInfo
	// Run feeds inputs in declaration order and returns every output in
	// declaration order.
	Run(ctx context.Context, inputs []tensor.Tensor) ([]tensor.Tensor, error)
	Close() error
}

// InputIndex returns the position of the named input, or -1.
func InputIndex(e Engine, name string) int {
	for i, in := range e.Inputs() {
		if in.Name == name {
			return i
		}
	}
	return -1
}
