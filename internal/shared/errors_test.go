package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyErrorKinds(t *testing.T) {
	cause := errors.New("bad jpeg")
	err := fmt.Errorf("exchange abc: %w", DecodeError(cause))

	assert.True(t, errors.Is(err, ErrInputDecode))
	assert.False(t, errors.Is(err, ErrShapeMismatch))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, KindInputDecode, KindOf(err))
}

func TestKindOfUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestRequestErrorUnwrap(t *testing.T) {
	err := errors.Join(ErrEmptyInput, errors.New("header input was empty"))
	var rerr *RequestError
	assert.True(t, errors.As(err, &rerr))
	assert.Equal(t, 400, rerr.StatusCode)
	assert.Equal(t, "Empty Input", rerr.Err.Error())
}
