package engine

import (
	"errors"
	"sync"

	"inference-filter/internal/shared"
)

var ErrHandleClosed = errors.New("model handle closed")

// Loader builds an Engine from its artifact.
type Loader func() (Engine, error)

// Handle is the process-wide model. The engine is loaded on first Acquire
// (or eagerly through Load) and closed once the handle is closed and every
// acquired reference has been released. A failed load is remembered; later
// acquires return the same ModelLoadError without touching the artifact again.
type Handle struct {
	mu      sync.Mutex
	load    Loader
	eng     Engine
	err     error
	refs    int
	closing bool
}

func NewHandle(load Loader) *Handle {
	return &Handle{load: load}
}

// Load forces the engine to load now and reports the load error, if any.
func (h *Handle) Load() error {
	if _, err := h.Acquire(); err != nil {
		return err
	}
	h.Release()
	return nil
}

// Acquire returns the shared engine and takes a reference on it. Every
// successful Acquire must be paired with Release.
func (h *Handle) Acquire() (Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return nil, shared.ModelLoadError(ErrHandleClosed)
	}
	if h.eng == nil && h.err == nil {
		eng, err := h.load()
		if err != nil {
			h.err = shared.ModelLoadError(err)
		} else {
			h.eng = eng
		}
	}
	if h.err != nil {
		return nil, h.err
	}
	h.refs++
	return h.eng, nil
}

func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		return
	}
	h.refs--
	if h.refs == 0 && h.closing {
		h.closeLocked()
	}
}

// Close stops new acquires. The engine itself is closed immediately when
// idle, otherwise by the last Release.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closing = true
	if h.refs == 0 {
		return h.closeLocked()
	}
	return nil
}

func (h *Handle) closeLocked() error {
	if h.eng == nil {
		return nil
	}
	err := h.eng.Close()
	h.eng = nil
	return err
}
