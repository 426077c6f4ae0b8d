package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGuardWaitsForAbandonedRun(t *testing.T) {
	g := newRunGuard(4)
	release := make(chan struct{})
	var cleaned atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()
	err := g.do(ctx, func() error {
		close(started)
		<-release
		return nil
	}, func() { cleaned.Store(true) })
	require.ErrorIs(t, err, context.Canceled)

	waited := make(chan struct{})
	go func() {
		g.wait()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("wait returned while the abandoned run was still executing")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, cleaned.Load())

	close(release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after the run finished")
	}
	assert.True(t, cleaned.Load())
}

func TestRunGuardCapsInflightRuns(t *testing.T) {
	g := newRunGuard(1)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := make(chan struct{})
	go func() {
		_ = g.do(context.Background(), func() error {
			close(blocked)
			<-release
			return nil
		}, func() {})
	}()
	<-blocked

	var ran, cleaned atomic.Bool
	err := g.do(ctx, func() error {
		ran.Store(true)
		return nil
	}, func() { cleaned.Store(true) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())
	assert.True(t, cleaned.Load())
}

func TestRunGuardCleansUpFailedRun(t *testing.T) {
	g := newRunGuard(0)
	var cleaned int
	err := g.do(context.Background(), func() error { return errors.New("bad input") }, func() { cleaned++ })
	assert.EqualError(t, err, "bad input")
	assert.Equal(t, 1, cleaned)

	cleaned = 0
	require.NoError(t, g.do(context.Background(), func() error { return nil }, func() { cleaned++ }))
	assert.Zero(t, cleaned)
	g.wait()
}
