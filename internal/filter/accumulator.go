package filter

import (
	"inference-filter/internal/shared"
)

// Accumulator collects request body chunks until the final one arrives.
type Accumulator struct {
	buf   []byte
	limit int
	spent bool
}

// NewAccumulator bounds the buffered body to limit bytes; a non-positive
// limit disables the bound.
func NewAccumulator(limit int) *Accumulator {
	return &Accumulator{limit: limit}
}

// Append buffers chunk. It reports complete and returns the whole payload
// only when final is set. Exceeding the limit returns ErrBodyTooLarge and
// drops the buffer; any call after completion returns ErrAccumulatorSpent.
func (a *Accumulator) Append(chunk []byte, final bool) (payload []byte, complete bool, err error) {
	if a.spent {
		return nil, false, shared.ErrAccumulatorSpent
	}
	if a.limit > 0 && len(a.buf)+len(chunk) > a.limit {
		a.Release()
		return nil, false, shared.ErrBodyTooLarge
	}
	a.buf = append(a.buf, chunk...)
	if !final {
		return nil, false, nil
	}
	payload = a.buf
	a.buf = nil
	a.spent = true
	return payload, true, nil
}

func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Release drops buffered data and marks the accumulator spent.
func (a *Accumulator) Release() {
	a.buf = nil
	a.spent = true
}
