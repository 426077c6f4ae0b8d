package pipeline

import (
	"math"
	"math/rand"
	"testing"

	"inference-filter/internal/labels"
	"inference-filter/internal/shared"
	"inference-filter/internal/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 1; n <= 64; n++ {
		logits := make([]float32, n)
		for i := range logits {
			logits[i] = float32(rng.NormFloat64() * 20)
		}
		var sum float64
		for _, p := range Softmax(logits) {
			assert.GreaterOrEqual(t, p, float32(0))
			sum += float64(p)
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "n=%d", n)
	}
}

func TestSoftmaxShiftInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 50; trial++ {
		logits := make([]float32, 10)
		shifted := make([]float32, 10)
		shift := float32(rng.Float64()*200 - 100)
		for i := range logits {
			logits[i] = float32(rng.NormFloat64() * 5)
			shifted[i] = logits[i] + shift
		}
		a, b := Softmax(logits), Softmax(shifted)
		for i := range a {
			assert.InDelta(t, a[i], b[i], 1e-4)
		}
	}
}

func TestSoftmaxLargeLogitsDoNotOverflow(t *testing.T) {
	probs := Softmax([]float32{1000, 1000, 999})
	for _, p := range probs {
		assert.False(t, math.IsNaN(float64(p)))
	}
	assert.InDelta(t, probs[0], probs[1], 1e-7)
	assert.Nil(t, Softmax(nil))
}

func TestArgmax(t *testing.T) {
	idx, val, ok := Argmax([]float32{0.1, 0.7, 0.2})
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, float32(0.7), val)

	idx, _, _ = Argmax([]float32{3, 5, 5, 1, 5})
	assert.Equal(t, 1, idx, "ties resolve to the lowest index")

	idx, _, ok = Argmax([]float32{float32(math.NaN()), -2, -1})
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	_, _, ok = Argmax(nil)
	assert.False(t, ok)
	_, _, ok = Argmax([]float32{float32(math.NaN())})
	assert.False(t, ok)
}

func TestArgmaxMatchesMaxPosition(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 100; trial++ {
		v := make([]float32, 1+rng.Intn(30))
		for i := range v {
			v[i] = float32(rng.Intn(5))
		}
		want := 0
		for i := range v {
			if v[i] > v[want] {
				want = i
			}
		}
		got, _, _ := Argmax(v)
		assert.Equal(t, want, got)
	}
}

func TestReducerWithLabels(t *testing.T) {
	out, err := tensor.NewFloat32(tensor.Shape{1, 3}, []float32{0.5, 2.5, 1})
	require.NoError(t, err)

	red := reducer{softmax: true, labels: labels.New([]string{"neg", "neu", "pos"})}
	res, err := red.reduce(out)
	require.NoError(t, err)
	assert.Equal(t, 1, res.LabelIndex)
	assert.Equal(t, "neu", res.LabelName)
	assert.Less(t, res.Confidence, 1.0)
	assert.Greater(t, res.Confidence, 0.5)

	raw := reducer{}
	res, err = raw.reduce(out)
	require.NoError(t, err)
	assert.Equal(t, 2.5, res.Confidence)
	assert.Empty(t, res.LabelName)
}

func TestReducerEmptyOutput(t *testing.T) {
	_, err := reducer{}.reduce(tensor.Tensor{Shape: tensor.Shape{1, 0}})
	assert.ErrorIs(t, err, shared.ErrShapeMismatch)
}
