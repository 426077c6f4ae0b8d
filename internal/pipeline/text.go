package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"inference-filter/internal/engine"
	"inference-filter/internal/shared"
	"inference-filter/internal/tensor"

	"github.com/tidwall/gjson"
)

type textPipeline struct {
	handle  *engine.Handle
	opts    Options
	reducer reducer
}

func (p *textPipeline) Task() Task { return TaskText }

func (p *textPipeline) Classify(ctx context.Context, in Input) (*PredictionResult, error) {
	data, err := decodeContent(in.Data, in.ContentEncoding, p.opts.MaxDecodedBytes)
	if err != nil {
		return nil, err
	}
	text, err := p.extract(data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, shared.ErrEmptyInput
	}
	enc, err := p.opts.Encoder.Encode(text)
	if err != nil {
		return nil, shared.DecodeError(fmt.Errorf("tokenizing: %w", err))
	}

	eng, err := p.handle.Acquire()
	if err != nil {
		return nil, err
	}
	defer p.handle.Release()

	inputs, err := arrangeText(eng.Inputs(), enc.IDs, enc.AttentionMask)
	if err != nil {
		return nil, shared.ShapeMismatchError(err)
	}
	return run(ctx, eng, inputs, p.reducer)
}

// extract returns the text to classify, taken from a JSON field when a
// path is configured.
func (p *textPipeline) extract(data []byte) (string, error) {
	if p.opts.TextJSONPath == "" {
		if !utf8.Valid(data) {
			return "", shared.DecodeError(errors.New("text input is not valid utf-8"))
		}
		return string(data), nil
	}
	if !gjson.ValidBytes(data) {
		return "", shared.DecodeError(errors.New("body is not valid json"))
	}
	res := gjson.GetBytes(data, p.opts.TextJSONPath)
	if !res.Exists() {
		return "", shared.ErrNoInput
	}
	return res.String(), nil
}

// arrangeText lays token ids and the attention mask out as batch-of-one
// tensors in the order the model declares its inputs. Inputs are matched by
// name, falling back to position for unnamed exports; token_type_ids is fed
// zeros.
func arrangeText(declared []engine.IOInfo, ids, mask []int64) ([]tensor.Tensor, error) {
	if len(declared) == 0 || len(declared) > 3 {
		return nil, fmt.Errorf("text model declares %d inputs", len(declared))
	}
	shape := tensor.Shape{1, int64(len(ids))}
	out := make([]tensor.Tensor, len(declared))
	for i, in := range declared {
		var data []int64
		switch {
		case strings.Contains(in.Name, "input_ids"):
			data = ids
		case strings.Contains(in.Name, "attention_mask"):
			data = mask
		case strings.Contains(in.Name, "token_type_ids"):
			data = make([]int64, len(ids))
		case i == 0:
			data = ids
		case i == 1:
			data = mask
		default:
			return nil, fmt.Errorf("cannot feed text model input %q", in.Name)
		}
		if !shape.Matches(in.Shape) {
			return nil, fmt.Errorf("input %s expects %s, got %d tokens", in.Name, in.Shape, len(ids))
		}
		t, err := intTensor(in.DType, shape, data)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Name, err)
		}
		out[i] = t
	}
	return out, nil
}

func intTensor(dt tensor.DType, shape tensor.Shape, data []int64) (tensor.Tensor, error) {
	switch dt {
	case tensor.Int64:
		return tensor.NewInt64(shape, append([]int64(nil), data...))
	case tensor.Float32:
		f := make([]float32, len(data))
		for i, v := range data {
			f[i] = float32(v)
		}
		return tensor.NewFloat32(shape, f)
	}
	return tensor.Tensor{}, fmt.Errorf("unsupported dtype %s", dt)
}
