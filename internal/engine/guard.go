package engine

import (
	"context"
	"sync"
)

// DefaultMaxConcurrentRuns bounds native runs per engine when no limit is
// configured.
const DefaultMaxConcurrentRuns = 64

// runGuard runs uninterruptible native calls. A cancelled context abandons
// the call to finish in the background; wait blocks until every call,
// abandoned or not, has returned and been cleaned up.
type runGuard struct {
	wg    sync.WaitGroup
	slots chan struct{}
}

func newRunGuard(limit int) *runGuard {
	if limit <= 0 {
		limit = DefaultMaxConcurrentRuns
	}
	return &runGuard{slots: make(chan struct{}, limit)}
}

// do calls run in its own goroutine. On a nil return the caller owns the
// run's resources; on any error cleanup has run, or will run once an
// abandoned call returns.
func (g *runGuard) do(ctx context.Context, run func() error, cleanup func()) error {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		cleanup()
		return ctx.Err()
	}
	g.wg.Add(1)

	done := make(chan error, 1)
	go func() {
		done <- run()
	}()

	select {
	case <-ctx.Done():
		go func() {
			defer g.release()
			<-done
			cleanup()
		}()
		return ctx.Err()
	case err := <-done:
		g.release()
		if err != nil {
			cleanup()
		}
		return err
	}
}

func (g *runGuard) release() {
	<-g.slots
	g.wg.Done()
}

func (g *runGuard) wait() {
	g.wg.Wait()
}
