package bot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTasksShutdownWaits(t *testing.T) {
	t.Parallel()

	tasks := NewTasks(context.Background(), nop)
	var done atomic.Int32
	for i := 0; i < 5; i++ {
		tasks.Go("work", func(ctx context.Context) {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
		})
	}
	assert.Positive(t, tasks.Active())
	assert.True(t, tasks.Shutdown(time.Second))
	assert.Equal(t, int32(5), done.Load())
	assert.Zero(t, tasks.Active())
}

func TestTasksShutdownAbandonsAfterGrace(t *testing.T) {
	t.Parallel()

	tasks := NewTasks(context.Background(), nop)
	cancelled := make(chan struct{})
	tasks.Go("stuck", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	assert.False(t, tasks.Shutdown(20*time.Millisecond))
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task context was not cancelled")
	}
}

func TestTasksOutliveParent(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	tasks := NewTasks(parent, nop)
	cancel()

	var ctxErr atomic.Value
	tasks.Go("watch", func(ctx context.Context) {
		time.Sleep(5 * time.Millisecond)
		ctxErr.Store(ctx.Err() == nil)
	})
	require.True(t, tasks.Shutdown(time.Second))
	assert.Equal(t, true, ctxErr.Load())
}

func TestTasksContainPanics(t *testing.T) {
	t.Parallel()

	tasks := NewTasks(context.Background(), nop)
	tasks.Go("boom", func(context.Context) { panic("boom") })
	assert.True(t, tasks.Shutdown(time.Second))
	assert.Zero(t, tasks.Active())
}

func TestSleepHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}
