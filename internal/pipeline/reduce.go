package pipeline

import (
	"errors"
	"math"

	"inference-filter/internal/labels"
	"inference-filter/internal/shared"
	"inference-filter/internal/tensor"
)

// Softmax returns the probability distribution of logits. The maximum is
// subtracted before exponentiating, so the result is unchanged by adding a
// constant to every logit.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxV := math.Inf(-1)
	for _, v := range logits {
		if float64(v) > maxV {
			maxV = float64(v)
		}
	}
	exps := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		exps[i] = math.Exp(float64(v) - maxV)
		sum += exps[i]
	}
	out := make([]float32, len(logits))
	for i, e := range exps {
		out[i] = float32(e / sum)
	}
	return out
}

// Argmax returns the index and value of the largest element. Ties go to
// the lowest index and NaN entries are skipped; ok is false when no element
// qualifies.
func Argmax(values []float32) (idx int, val float32, ok bool) {
	idx = -1
	for i, v := range values {
		if math.IsNaN(float64(v)) {
			continue
		}
		if idx < 0 || v > val {
			idx, val = i, v
		}
	}
	return idx, val, idx >= 0
}

type reducer struct {
	softmax bool
	labels  *labels.Map
}

func (r reducer) reduce(out tensor.Tensor) (*PredictionResult, error) {
	values := out.Floats()
	if len(values) == 0 {
		return nil, shared.ShapeMismatchError(errors.New("model output is empty"))
	}
	if r.softmax {
		values = Softmax(values)
	}
	idx, val, ok := Argmax(values)
	if !ok {
		return nil, shared.InferenceError(errors.New("model output has no finite values"))
	}
	res := &PredictionResult{LabelIndex: idx, Confidence: float64(val)}
	if name, ok := r.labels.Name(idx); ok {
		res.LabelName = name
	}
	return res, nil
}
