// Package filter implements the per-exchange state machine that buffers
// request input, runs the inference pipeline once, and annotates the
// response with the stored prediction.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"inference-filter/internal/pipeline"
	"inference-filter/internal/shared"
)

type SourceKind string

const (
	SourceBody   SourceKind = "body"
	SourceHeader SourceKind = "header"
	SourceQuery  SourceKind = "query"
)

// InputSource says where the classified input lives. Name is the header or
// query parameter name and is unused for body input.
type InputSource struct {
	Kind SourceKind
	Name string
}

func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case SourceBody, SourceHeader, SourceQuery:
		return k, nil
	case "":
		return SourceBody, nil
	}
	return "", fmt.Errorf("unknown input source %q", s)
}

type Config struct {
	Source            InputSource
	MaxBodyBytes      int
	MaxBufferDuration time.Duration
	InferenceTimeout  time.Duration
	Annotator         Annotator
}

func DefaultConfig() Config {
	return Config{
		Source:            InputSource{Kind: SourceBody},
		MaxBodyBytes:      shared.DefaultMaxBodyBytes,
		MaxBufferDuration: shared.DefaultMaxBufferDuration,
		InferenceTimeout:  shared.DefaultInferenceTimeout,
		Annotator: Annotator{
			LabelHeader:      shared.DefaultLabelHeader,
			ConfidenceHeader: shared.DefaultConfidenceHeader,
		},
	}
}

// Validate checks the configuration against the pipeline task it will
// drive.
func (c Config) Validate(task pipeline.Task) error {
	switch c.Source.Kind {
	case SourceBody:
	case SourceHeader, SourceQuery:
		if task != pipeline.TaskText {
			return fmt.Errorf("%s input source only carries text, task is %s", c.Source.Kind, task)
		}
		if c.Source.Name == "" {
			return fmt.Errorf("%s input source needs a name", c.Source.Kind)
		}
	default:
		return fmt.Errorf("unknown input source %q", c.Source.Kind)
	}
	if c.Annotator.LabelHeader == "" || c.Annotator.ConfidenceHeader == "" {
		return errors.New("annotation header names must be set")
	}
	if strings.EqualFold(c.Annotator.LabelHeader, c.Annotator.ConfidenceHeader) {
		return errors.New("label and confidence headers must differ")
	}
	if c.MaxBodyBytes < 0 || c.MaxBufferDuration < 0 || c.InferenceTimeout < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}
