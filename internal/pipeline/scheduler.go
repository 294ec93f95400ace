package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/infra"
)

// Executor runs one task epoch.
type Executor interface {
	Execute(ctx context.Context, ref TaskRef) error
}

// Scheduler runs each scheduled task on its own goroutine, bounded by a
// weighted semaphore. Tasks never share state, so sibling failures do not
// affect each other.
type Scheduler struct {
	exec    Executor
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  infra.Logger

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewScheduler(exec Executor, maxConcurrent int, timeout time.Duration, logger infra.Logger) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		exec:    exec,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
		logger:  infra.Component(logger, "scheduler"),
		base:    base,
		cancel:  cancel,
	}
}

// Schedule queues ref and returns immediately. It reports false once the
// scheduler is shutting down; the task then stays pending for the sweeper.
func (s *Scheduler) Schedule(ref TaskRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn().Str("task_id", ref.ID).Msg("scheduler closed; task left pending")
		return false
	}
	s.wg.Add(1)
	go s.run(ref)
	return true
}

func (s *Scheduler) run(ref TaskRef) {
	defer s.wg.Done()
	if err := s.sem.Acquire(s.base, 1); err != nil {
		s.logger.Warn().Str("task_id", ref.ID).Msg("scheduler stopped before task started")
		return
	}
	defer s.sem.Release(1)

	ctx := s.base
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.base, s.timeout)
		defer cancel()
	}
	if err := s.exec.Execute(ctx, ref); err != nil {
		switch {
		case errors.Is(err, domain.ErrStaleAttempt):
		case errors.Is(err, domain.ErrNotFound):
			s.logger.Warn().Str("task_id", ref.ID).Msg("scheduled task no longer exists")
		default:
			s.logger.Debug().Err(err).Str("task_id", ref.ID).Msg("task finished with failure")
		}
	}
}

// Wait blocks until every scheduled task has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting tasks and waits for in-flight ones. When ctx
// expires first, running tasks are cancelled and still record their failure.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
