package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/imagegen"
	"avatarstudio/internal/infra"
)

// Dispatcher schedules a task epoch for execution.
type Dispatcher interface {
	Schedule(ref TaskRef) bool
}

// SubmitRequest is a validated-on-submit generation request.
type SubmitRequest struct {
	UserID string
	// CollectionID targets an existing collection; empty creates one.
	CollectionID   string
	CollectionName string
	Config         domain.GenerationConfig
}

// Submission is the result of Submit: the collection and one pending task
// per requested image.
type Submission struct {
	Collection domain.Collection
	Tasks      []domain.GenerationTask
}

// ServiceDeps wires a Service.
type ServiceDeps struct {
	Tasks        TaskStore
	Collections  CollectionStore
	Dispatcher   Dispatcher
	DefaultModel string
	ModelAllowed func(model string) bool
	// StaleAfter is how long a pending task must be idle before retrigger
	// may take it over.
	StaleAfter time.Duration
	Poses      []string
	Logger     infra.Logger
	Now        func() time.Time
}

// Service accepts submissions and retriggers.
type Service struct {
	tasks        TaskStore
	collections  CollectionStore
	dispatcher   Dispatcher
	defaultModel string
	modelAllowed func(string) bool
	staleAfter   time.Duration
	poses        []string
	logger       infra.Logger
	now          func() time.Time
}

func NewService(deps ServiceDeps) *Service {
	s := &Service{
		tasks:        deps.Tasks,
		collections:  deps.Collections,
		dispatcher:   deps.Dispatcher,
		defaultModel: deps.DefaultModel,
		modelAllowed: deps.ModelAllowed,
		staleAfter:   deps.StaleAfter,
		poses:        deps.Poses,
		logger:       infra.Component(deps.Logger, "pipeline"),
		now:          deps.Now,
	}
	if s.poses == nil {
		s.poses = imagegen.DefaultPoses
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.modelAllowed == nil {
		s.modelAllowed = func(string) bool { return true }
	}
	return s
}

// Submit validates the request, resolves the collection, creates one pending
// task per requested image and schedules each. Validation and ownership
// failures return before any row is written.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.ErrUnauthenticated
	}
	cfg := req.Config
	cfg.Normalize(s.defaultModel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !s.modelAllowed(cfg.Model) {
		return nil, domain.NewValidationError("model", fmt.Sprintf("%q is not available", cfg.Model))
	}

	var col *domain.Collection
	var err error
	if id := strings.TrimSpace(req.CollectionID); id != "" {
		col, err = s.collections.GetForUser(ctx, id, req.UserID)
	} else {
		col, err = s.collections.Create(ctx, req.UserID, s.collectionName(req.CollectionName))
	}
	if err != nil {
		return nil, err
	}

	out := &Submission{Collection: *col}
	for i := 0; i < int(cfg.ImageCount); i++ {
		meta := domain.TaskMetadata{
			Config:          cfg,
			BatchIndex:      i,
			Pose:            imagegen.PoseFor(s.poses, i),
			ReferenceImages: cfg.ReferenceImages,
		}
		task, err := s.tasks.CreatePending(ctx, col.ID, req.UserID, meta)
		if err != nil {
			s.scheduleAll(out.Tasks)
			return nil, fmt.Errorf("create task %d of %d: %w", i+1, cfg.ImageCount, err)
		}
		out.Tasks = append(out.Tasks, *task)
	}

	if err := s.collections.RefreshStatus(ctx, col.ID); err != nil {
		s.logger.Warn().Err(err).Str("collection_id", col.ID).Msg("collection status refresh failed")
	} else {
		out.Collection.Status = domain.CollectionStatusProcessing
	}
	s.scheduleAll(out.Tasks)

	s.logger.Info().
		Str("collection_id", col.ID).
		Int("tasks", len(out.Tasks)).
		Str("model", cfg.Model).
		Msg("generation submitted")
	return out, nil
}

func (s *Service) scheduleAll(tasks []domain.GenerationTask) {
	for _, t := range tasks {
		s.dispatcher.Schedule(TaskRef{ID: t.ID, UserID: t.UserID, Attempt: t.Attempt})
	}
}

func (s *Service) collectionName(name string) string {
	name = domain.CleanText(name)
	if name == "" {
		return "Avatar shoot " + s.now().UTC().Format("2006-01-02 15:04")
	}
	if r := []rune(name); len(r) > 120 {
		return string(r[:120])
	}
	return name
}

// Retrigger resets a failed or stale pending task to pending under a new
// epoch and schedules it. Completed and freshly pending tasks yield
// domain.ErrNotRetriggerable; losing a concurrent retrigger yields
// domain.ErrStaleAttempt.
func (s *Service) Retrigger(ctx context.Context, userID, taskID string) (*domain.GenerationTask, error) {
	task, err := s.tasks.GetForUser(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	staleBefore := s.now().Add(-s.staleAfter)
	switch task.Status {
	case domain.TaskStatusFailed:
	case domain.TaskStatusPending:
		if !task.UpdatedAt.Before(staleBefore) {
			return nil, domain.ErrNotRetriggerable
		}
	default:
		return nil, domain.ErrNotRetriggerable
	}

	updated, err := s.tasks.Retrigger(ctx, task.ID, userID, task.Attempt, staleBefore)
	if err != nil {
		return nil, err
	}
	if err := s.collections.RefreshStatus(ctx, updated.CollectionID); err != nil {
		s.logger.Warn().Err(err).Str("collection_id", updated.CollectionID).Msg("collection status refresh failed")
	}
	s.dispatcher.Schedule(TaskRef{ID: updated.ID, UserID: updated.UserID, Attempt: updated.Attempt})
	s.logger.Info().Str("task_id", updated.ID).Int("attempt", updated.Attempt).Msg("task retriggered")
	return updated, nil
}
