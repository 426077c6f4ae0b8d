// Package pipeline turns raw request input into a prediction: it prepares
// model-ready tensors for images or text, runs the shared engine, and reduces
// the first output to a label and confidence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"inference-filter/internal/engine"
	"inference-filter/internal/labels"
	"inference-filter/internal/shared"
	"inference-filter/internal/tensor"
	"inference-filter/internal/tokenizer"
)

type Task string

const (
	TaskImage Task = "image"
	TaskDigit Task = "digit"
	TaskText  Task = "text"
)

func ParseTask(s string) (Task, error) {
	switch t := Task(strings.ToLower(strings.TrimSpace(s))); t {
	case TaskImage, TaskDigit, TaskText:
		return t, nil
	}
	return "", fmt.Errorf("unknown task %q", s)
}

// PredictionResult is the reduced model output for one exchange.
type PredictionResult struct {
	LabelIndex int     `json:"label_index"`
	Confidence float64 `json:"confidence"`
	LabelName  string  `json:"label_name,omitempty"`
}

// Input is the raw payload handed to a pipeline. ContentEncoding is the
// request's Content-Encoding and is undone before preprocessing.
type Input struct {
	Data            []byte
	ContentEncoding string
}

// Pipeline classifies one input. Implementations are shared by every
// exchange and must be safe for concurrent use.
type Pipeline interface {
	Task() Task
	Classify(ctx context.Context, in Input) (*PredictionResult, error)
}

// Encoder tokenizes text for the text path.
type Encoder interface {
	Encode(text string) (tokenizer.Encoding, error)
}

type Options struct {
	Task Task
	// Softmax overrides the task default (on for text, off for images).
	Softmax *bool
	Layout  tensor.Layout
	// Height and Width apply when the model declares a dynamic resolution.
	Height int
	Width  int
	// Mean and Std are per-channel, applied after scaling samples to [0,1].
	Mean []float32
	Std  []float32

	Labels          *labels.Map
	Encoder         Encoder
	TextJSONPath    string
	MaxDecodedBytes int64
	MaxImagePixels  int
}

func (o Options) softmax() bool {
	if o.Softmax != nil {
		return *o.Softmax
	}
	return o.Task == TaskText
}

// New builds the pipeline variant selected by opts.Task around a shared
// model handle.
func New(handle *engine.Handle, opts Options) (Pipeline, error) {
	if opts.MaxDecodedBytes <= 0 {
		opts.MaxDecodedBytes = 4 * shared.DefaultMaxBodyBytes
	}
	if opts.MaxImagePixels <= 0 {
		opts.MaxImagePixels = DefaultMaxImagePixels
	}
	red := reducer{softmax: opts.softmax(), labels: opts.Labels}

	switch opts.Task {
	case TaskImage, TaskDigit:
		channels := 3
		if opts.Task == TaskDigit {
			channels = 1
		}
		if err := validateStats(opts.Mean, opts.Std, channels); err != nil {
			return nil, err
		}
		return &imagePipeline{
			task:     opts.Task,
			handle:   handle,
			opts:     opts,
			channels: channels,
			reducer:  red,
		}, nil
	case TaskText:
		if opts.Encoder == nil {
			return nil, errors.New("text task needs a tokenizer")
		}
		return &textPipeline{
			handle:  handle,
			opts:    opts,
			reducer: red,
		}, nil
	}
	return nil, fmt.Errorf("unknown task %q", opts.Task)
}

func validateStats(mean, std []float32, channels int) error {
	if len(mean) != 0 && len(mean) != channels {
		return fmt.Errorf("pixel mean needs %d values, got %d", channels, len(mean))
	}
	if len(std) != 0 && len(std) != channels {
		return fmt.Errorf("pixel std needs %d values, got %d", channels, len(std))
	}
	for _, s := range std {
		if s == 0 {
			return errors.New("pixel std must be non-zero")
		}
	}
	return nil
}

// run executes the engine and reduces its first output. Every failure is
// returned as a ClassifyError.
func run(ctx context.Context, eng engine.Engine, inputs []tensor.Tensor, red reducer) (*PredictionResult, error) {
	outs, err := eng.Run(ctx, inputs)
	if err != nil {
		return nil, shared.InferenceError(err)
	}
	if len(outs) == 0 {
		return nil, shared.ShapeMismatchError(errors.New("model returned no outputs"))
	}
	return red.reduce(outs[0])
}
