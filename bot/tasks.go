package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Tasks is the set of background work the loop spawns: slot firings and
// trade watchers. Tasks outlive the loop's context so a stopping loop does
// not cut a watcher short; Shutdown bounds how long they get.
type Tasks struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Int64
	log    zerolog.Logger
}

func NewTasks(parent context.Context, log zerolog.Logger) *Tasks {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Tasks{ctx: ctx, cancel: cancel, log: log}
}

// Go runs fn in its own goroutine. A panic in fn is logged and contained.
func (t *Tasks) Go(name string, fn func(ctx context.Context)) {
	t.wg.Add(1)
	t.active.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				t.log.Error().Str("task", name).Interface("panic", r).Msg("task panicked")
			}
		}()
		fn(t.ctx)
	}()
}

// Active is the number of tasks still running.
func (t *Tasks) Active() int {
	return int(t.active.Load())
}

// Shutdown waits up to grace for running tasks, then cancels the rest.
// It reports whether everything finished in time.
func (t *Tasks) Shutdown(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		t.cancel()
		return true
	case <-timer.C:
		n := t.Active()
		t.cancel()
		t.log.Warn().Int("abandoned", n).Dur("grace", grace).Msg("tasks still running at shutdown")
		return false
	}
}

// sleep waits d or until ctx is done, whichever is first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
