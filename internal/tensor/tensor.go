// Package tensor defines the dense values exchanged with the numeric engine.
package tensor

import (
	"fmt"
	"strings"
)

type DType int

const (
	Float32 DType = iota
	Int64
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int64:
		return "int64"
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

func (d DType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Shape lists dimension sizes. A negative size marks a dynamic dimension in
// a model declaration; concrete tensors never carry one.
type Shape []int64

func (s Shape) Size() int64 {
	if len(s) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// Matches reports whether a concrete shape satisfies a declared one.
// Dynamic declared dimensions match any size.
func (s Shape) Matches(declared Shape) bool {
	if len(s) != len(declared) {
		return false
	}
	for i, d := range declared {
		if d >= 0 && d != s[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		if d < 0 {
			parts[i] = "?"
			continue
		}
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, "x") + "]"
}

// Tensor is a dense value. Exactly one of F32 and I64 is populated,
// matching DType.
type Tensor struct {
	Shape Shape
	DType DType
	F32   []float32
	I64   []int64
}

func NewFloat32(shape Shape, data []float32) (Tensor, error) {
	if int64(len(data)) != shape.Size() {
		return Tensor{}, fmt.Errorf("float32 tensor %s needs %d elements, got %d", shape, shape.Size(), len(data))
	}
	return Tensor{Shape: shape, DType: Float32, F32: data}, nil
}

func NewInt64(shape Shape, data []int64) (Tensor, error) {
	if int64(len(data)) != shape.Size() {
		return Tensor{}, fmt.Errorf("int64 tensor %s needs %d elements, got %d", shape, shape.Size(), len(data))
	}
	return Tensor{Shape: shape, DType: Int64, I64: data}, nil
}

// Floats returns the tensor's values widened or narrowed to float32.
func (t Tensor) Floats() []float32 {
	if t.DType == Float32 {
		return t.F32
	}
	out := make([]float32, len(t.I64))
	for i, v := range t.I64 {
		out[i] = float32(v)
	}
	return out
}
