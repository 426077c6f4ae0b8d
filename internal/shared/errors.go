package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when we want a specific error message and StatusCode.
// Handlers on the admin surface return the msg inside the request error
// verbatim; anything else should be wrapped so the chain keeps the detail
// for logging while the user sees a generic message.
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

func (r *RequestError) Unwrap() error {
	return r.Err
}

var (
	ErrMissingAuth   = &RequestError{Err: errors.New("missing authorization header"), StatusCode: 401}
	ErrInvalidFormat = &RequestError{Err: errors.New("invalid authentication format"), StatusCode: 401}
	ErrUnauthorized  = &RequestError{Err: errors.New("unauthorized"), StatusCode: 401}

	ErrNoInput    = &RequestError{Err: errors.New("No Input"), StatusCode: 400}
	ErrEmptyInput = &RequestError{Err: errors.New("Empty Input"), StatusCode: 400}

	ErrInternalServerError = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}
)

// ErrorKind classifies failures of the inference pipeline. Every kind except
// KindModelLoad is recovered per exchange.
type ErrorKind string

const (
	KindUnknown            ErrorKind = "unknown"
	KindInputDecode        ErrorKind = "input_decode"
	KindModelLoad          ErrorKind = "model_load"
	KindShapeMismatch      ErrorKind = "shape_mismatch"
	KindInferenceExecution ErrorKind = "inference_execution"
)

// ClassifyError carries the kind of a pipeline failure alongside its cause.
type ClassifyError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifyError) Unwrap() error {
	return e.Err
}

// Is matches any ClassifyError of the same kind, so the sentinels below work
// with errors.Is.
func (e *ClassifyError) Is(target error) bool {
	t, ok := target.(*ClassifyError)
	if !ok {
		return false
	}
	return t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInputDecode        = &ClassifyError{Kind: KindInputDecode}
	ErrModelLoad          = &ClassifyError{Kind: KindModelLoad}
	ErrShapeMismatch      = &ClassifyError{Kind: KindShapeMismatch}
	ErrInferenceExecution = &ClassifyError{Kind: KindInferenceExecution}

	ErrBodyTooLarge     = errors.New("accumulated body exceeds limit")
	ErrBufferTimeout    = errors.New("body buffering exceeded deadline")
	ErrAccumulatorSpent = errors.New("accumulator already completed")
)

func DecodeError(err error) error {
	return &ClassifyError{Kind: KindInputDecode, Err: err}
}

func ModelLoadError(err error) error {
	return &ClassifyError{Kind: KindModelLoad, Err: err}
}

func ShapeMismatchError(err error) error {
	return &ClassifyError{Kind: KindShapeMismatch, Err: err}
}

func InferenceError(err error) error {
	return &ClassifyError{Kind: KindInferenceExecution, Err: err}
}

// KindOf reports the kind of the first ClassifyError in err's chain.
func KindOf(err error) ErrorKind {
	var cerr *ClassifyError
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return KindUnknown
}
