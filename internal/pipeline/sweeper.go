package pipeline

import (
	"context"
	"time"

	"avatarstudio/internal/adapter/repo"
	"avatarstudio/internal/infra"
)

// StaleTaskStore fails tasks stuck in pending.
type StaleTaskStore interface {
	FailStalePending(ctx context.Context, cutoff time.Time, message string) ([]repo.StaleTask, error)
}

type StatusRefresher interface {
	RefreshStatus(ctx context.Context, id string) error
}

// Sweeper fails pending tasks idle for longer than staleAfter so they become
// eligible for retrigger after a crash or lost scheduling.
type Sweeper struct {
	tasks       StaleTaskStore
	collections StatusRefresher
	staleAfter  time.Duration
	logger      infra.Logger
	now         func() time.Time
}

func NewSweeper(tasks StaleTaskStore, collections StatusRefresher, staleAfter time.Duration, logger infra.Logger) *Sweeper {
	return &Sweeper{
		tasks:       tasks,
		collections: collections,
		staleAfter:  staleAfter,
		logger:      infra.Component(logger, "sweeper"),
		now:         time.Now,
	}
}

// SweepOnce fails every stale pending task and refreshes the affected
// collections. It returns the number of tasks failed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	stale, err := s.tasks.FailStalePending(ctx, cutoff, MsgTimedOut)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(stale))
	for _, t := range stale {
		s.logger.Warn().Str("task_id", t.ID).Str("collection_id", t.CollectionID).Msg("stale pending task failed")
		if _, ok := seen[t.CollectionID]; ok {
			continue
		}
		seen[t.CollectionID] = struct{}{}
		if err := s.collections.RefreshStatus(ctx, t.CollectionID); err != nil {
			s.logger.Warn().Err(err).Str("collection_id", t.CollectionID).Msg("collection status refresh failed")
		}
	}
	return len(stale), nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := s.SweepOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Msg("sweep failed")
		} else if n > 0 {
			s.logger.Info().Int("failed", n).Msg("sweep finished")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
