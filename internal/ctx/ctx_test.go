package ctx

import (
	"errors"
	"testing"
	"time"

	"inference-filter/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestAddErrorChains(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	lv := &ContextLogValues{}
	lv.AddError(first)
	lv.AddError(second)

	assert.ErrorIs(t, lv.Error, first)
	assert.ErrorIs(t, lv.Error, second)
	assert.Equal(t, "second: first", lv.Error.Error())
}

func TestMarshalLogObject(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	lv := &ContextLogValues{
		ExchangeID: "ex_1",
		Path:       "/classify",
		StatusCode: 200,
		StartTime:  time.Unix(0, 0),
		Task:       pipeline.TaskImage,
		Phase:      "annotated",
		Prediction: &pipeline.PredictionResult{LabelIndex: 282, Confidence: 0.9, LabelName: "tiger cat"},
	}
	require.NoError(t, lv.MarshalLogObject(enc))

	assert.Equal(t, "ex_1", enc.Fields["exchange_id"])
	assert.Equal(t, 282, enc.Fields["label_index"])
	assert.Equal(t, "tiger cat", enc.Fields["label_name"])
	assert.Equal(t, "image", enc.Fields["task"])
	assert.NotContains(t, enc.Fields, "error")
	assert.NotContains(t, enc.Fields, "error_kind")
}
