package engine_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"inference-filter/internal/engine"
	"inference-filter/internal/engine/enginetest"
	"inference-filter/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	fake := enginetest.Logits(nil, []float32{1})
	h := engine.NewHandle(func() (engine.Engine, error) {
		loads.Add(1)
		return fake, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng, err := h.Acquire()
			if assert.NoError(t, err) {
				assert.Same(t, fake, eng)
				h.Release()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())
}

func TestHandleLoadErrorIsSticky(t *testing.T) {
	var loads atomic.Int32
	h := engine.NewHandle(func() (engine.Engine, error) {
		loads.Add(1)
		return nil, errors.New("no such file")
	})

	err := h.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrModelLoad))

	_, err = h.Acquire()
	assert.True(t, errors.Is(err, shared.ErrModelLoad))
	assert.Equal(t, int32(1), loads.Load())
}

func TestHandleClosesAfterLastRelease(t *testing.T) {
	fake := enginetest.Logits(nil, []float32{1})
	h := engine.NewHandle(func() (engine.Engine, error) { return fake, nil })

	_, err := h.Acquire()
	require.NoError(t, err)

	require.NoError(t, h.Close())
	assert.False(t, fake.Closed(), "engine in use must stay open")

	_, err = h.Acquire()
	assert.ErrorIs(t, err, engine.ErrHandleClosed)
	assert.Equal(t, shared.KindModelLoad, shared.KindOf(err))

	h.Release()
	assert.True(t, fake.Closed())
}

func TestHandleCloseIdle(t *testing.T) {
	fake := enginetest.Logits(nil, []float32{1})
	h := engine.NewHandle(func() (engine.Engine, error) { return fake, nil })
	require.NoError(t, h.Load())
	require.NoError(t, h.Close())
	assert.True(t, fake.Closed())
}
