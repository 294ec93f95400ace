package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avatarstudio/internal/infra"
)

type blockingExecutor struct {
	release  chan struct{}
	running  atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	executed []string
}

func (b *blockingExecutor) Execute(ctx context.Context, ref TaskRef) error {
	n := b.running.Add(1)
	defer b.running.Add(-1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	b.executed = append(b.executed, ref.ID)
	b.mu.Unlock()
	return nil
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	exec := &blockingExecutor{release: make(chan struct{})}
	s := NewScheduler(exec, 2, time.Minute, infra.NopLogger())

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.True(t, s.Schedule(TaskRef{ID: id, UserID: "u", Attempt: 1}))
	}
	require.Eventually(t, func() bool { return exec.running.Load() == 2 }, time.Second, time.Millisecond)
	close(exec.release)
	s.Wait()

	assert.Equal(t, int32(2), exec.peak.Load())
	assert.Len(t, exec.executed, 5)
}

func TestSchedulerShutdownCancelsInFlight(t *testing.T) {
	exec := &blockingExecutor{release: make(chan struct{})}
	s := NewScheduler(exec, 1, 0, infra.NopLogger())
	require.True(t, s.Schedule(TaskRef{ID: "a"}))
	require.Eventually(t, func() bool { return exec.running.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)
	assert.False(t, s.Schedule(TaskRef{ID: "b"}))
	assert.Empty(t, exec.executed)
}
