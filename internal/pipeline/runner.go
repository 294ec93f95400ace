// Package pipeline runs generation tasks through their lifecycle:
// pending, then exactly one terminal write of completed or failed per epoch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/imagegen"
	"avatarstudio/internal/infra"
	"avatarstudio/internal/providers/gemini"
	"avatarstudio/internal/references"
	"avatarstudio/internal/storage"
)

const terminalWriteTimeout = 15 * time.Second

// TaskRef names one execution epoch of a task.
type TaskRef struct {
	ID      string
	UserID  string
	Attempt int
}

// TaskStore is the task persistence the pipeline needs.
type TaskStore interface {
	CreatePending(ctx context.Context, collectionID, userID string, meta domain.TaskMetadata) (*domain.GenerationTask, error)
	GetForUser(ctx context.Context, id, userID string) (*domain.GenerationTask, error)
	Complete(ctx context.Context, id string, attempt int, storagePath, url string, meta domain.TaskMetadata) error
	Fail(ctx context.Context, id string, attempt int, message string) error
	Retrigger(ctx context.Context, id, userID string, attempt int, staleBefore time.Time) (*domain.GenerationTask, error)
	ListByCollection(ctx context.Context, collectionID, userID string) ([]domain.GenerationTask, error)
}

// CollectionStore is the collection persistence the pipeline needs.
type CollectionStore interface {
	Create(ctx context.Context, userID, name string) (*domain.Collection, error)
	GetForUser(ctx context.Context, id, userID string) (*domain.Collection, error)
	RefreshStatus(ctx context.Context, id string) error
}

type CredentialResolver interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// ObjectWriter persists generated images.
type ObjectWriter interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	PublicURL(path string) string
}

// RunnerDeps wires a Runner.
type RunnerDeps struct {
	Tasks       TaskStore
	Collections CollectionStore
	Credentials CredentialResolver
	Clients     gemini.Factory
	References  *references.Manager
	Invoker     *imagegen.Invoker
	Objects     ObjectWriter
	Logger      infra.Logger
}

// Runner executes one task epoch end to end.
type Runner struct {
	tasks       TaskStore
	collections CollectionStore
	credentials CredentialResolver
	clients     gemini.Factory
	refs        *references.Manager
	invoker     *imagegen.Invoker
	objects     ObjectWriter
	logger      infra.Logger
}

func NewRunner(deps RunnerDeps) *Runner {
	return &Runner{
		tasks:       deps.Tasks,
		collections: deps.Collections,
		credentials: deps.Credentials,
		clients:     deps.Clients,
		refs:        deps.References,
		invoker:     deps.Invoker,
		objects:     deps.Objects,
		logger:      infra.Component(deps.Logger, "pipeline"),
	}
}

// Execute runs the epoch named by ref. It returns domain.ErrNotFound when the
// task does not exist for the user and domain.ErrStaleAttempt when the epoch
// is no longer current. Every other failure is persisted on the task and
// also returned.
func (r *Runner) Execute(ctx context.Context, ref TaskRef) (err error) {
	task, err := r.tasks.GetForUser(ctx, ref.ID, ref.UserID)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusPending || task.Attempt != ref.Attempt {
		r.logger.Debug().
			Str("task_id", ref.ID).
			Int("attempt", ref.Attempt).
			Int("current_attempt", task.Attempt).
			Str("status", string(task.Status)).
			Msg("skipping superseded attempt")
		return domain.ErrStaleAttempt
	}

	logger := r.logger.With().
		Str("task_id", task.ID).
		Str("collection_id", task.CollectionID).
		Int("attempt", task.Attempt).
		Logger()

	// Registered before the recover handler so it runs after the terminal
	// write, panics included.
	var held attemptResources
	defer r.releaseAttempt(ctx, task, &held, logger)

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("task panicked")
			err = fmt.Errorf("internal error: %v", p)
			r.fail(ctx, task, err)
		}
	}()

	started := time.Now()
	if err := r.run(ctx, task, &held, logger); err != nil {
		r.fail(ctx, task, err)
		logger.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("task failed")
		return err
	}
	logger.Info().Dur("elapsed", time.Since(started)).Msg("task completed")
	return nil
}

// attemptResources is what an epoch acquired on the provider side.
type attemptResources struct {
	client   gemini.Client
	prepared *references.Prepared
}

func (r *Runner) run(ctx context.Context, task *domain.GenerationTask, held *attemptResources, logger infra.Logger) error {
	apiKey, err := r.credentials.Resolve(ctx, task.UserID)
	if err != nil {
		return err
	}
	client, err := r.clients(ctx, apiKey)
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}
	held.client = client

	refs, err := parseReferences(task.Metadata.Config.ReferenceImages)
	if err != nil {
		return err
	}
	prepared, err := r.refs.Prepare(ctx, client, refs)
	held.prepared = prepared
	if err != nil {
		return err
	}

	cfg := task.Metadata.Config
	prompt := imagegen.BuildInstruction(imagegen.InstructionRequest{
		Config:        cfg,
		Pose:          task.Metadata.Pose,
		HasReferences: len(prepared.Parts) > 0,
	})

	img, err := r.invoker.Invoke(ctx, client, imagegen.InvokeRequest{
		Model:       cfg.Model,
		Prompt:      prompt,
		References:  prepared.Parts,
		AspectRatio: cfg.AspectRatio,
	})
	if err != nil {
		return err
	}

	key := storage.ObjectKey(task.UserID, task.CollectionID, task.ID, img.MIMEType)
	url, err := r.objects.Upload(ctx, key, img.Data, img.MIMEType)
	if err != nil {
		return err
	}

	meta := task.Metadata
	meta.PromptText = prompt
	meta.MIMEType = img.MIMEType
	meta.ConsumedReferences = prepared.Consumed
	meta.RemoteFiles = append(append([]string(nil), prepared.Handles...), prepared.Shared...)
	meta.ReferenceURLs = nil
	for _, p := range prepared.LocalPaths {
		meta.ReferenceURLs = append(meta.ReferenceURLs, r.objects.PublicURL(p))
	}

	writeCtx, cancel := detached(ctx)
	defer cancel()
	if err := r.tasks.Complete(writeCtx, task.ID, task.Attempt, key, url, meta); err != nil {
		if errors.Is(err, domain.ErrStaleAttempt) {
			logger.Warn().Msg("task superseded before completion; result discarded")
			return nil
		}
		return fmt.Errorf("record completion: %w", err)
	}
	r.refreshCollection(writeCtx, task.CollectionID)
	return nil
}

// releaseAttempt deletes the provider files the epoch uploaded, then the
// caller-supplied files no pending task of the collection still lists.
func (r *Runner) releaseAttempt(ctx context.Context, task *domain.GenerationTask, held *attemptResources, logger infra.Logger) {
	if held.client == nil || held.prepared == nil {
		return
	}
	r.refs.Release(ctx, held.client, held.prepared)
	if len(held.prepared.Shared) == 0 {
		return
	}

	listCtx, cancel := detached(ctx)
	defer cancel()
	siblings, err := r.tasks.ListByCollection(listCtx, task.CollectionID, task.UserID)
	if err != nil {
		logger.Warn().Err(err).Msg("listing sibling tasks failed; keeping shared reference files")
		return
	}
	inUse := make(map[string]bool)
	for _, sib := range siblings {
		if sib.Status != domain.TaskStatusPending {
			continue
		}
		for _, raw := range sib.Metadata.Config.ReferenceImages {
			if ref, err := domain.ParseReference(raw); err == nil && ref.Kind == domain.ReferenceRemoteURI {
				inUse[ref.FileName] = true
			}
		}
	}
	var idle []string
	for _, name := range held.prepared.Shared {
		if inUse[name] {
			logger.Debug().Str("file", name).Msg("shared reference still in use by a pending task")
			continue
		}
		idle = append(idle, name)
		inUse[name] = true
	}
	r.refs.ReleaseFiles(ctx, held.client, idle)
}

// fail records the failure of task's epoch. It never returns an error: a
// lost CAS means a newer epoch owns the row.
func (r *Runner) fail(ctx context.Context, task *domain.GenerationTask, cause error) {
	writeCtx, cancel := detached(ctx)
	defer cancel()
	msg := FailureMessage(cause)
	if err := r.tasks.Fail(writeCtx, task.ID, task.Attempt, msg); err != nil {
		if errors.Is(err, domain.ErrStaleAttempt) {
			r.logger.Warn().Str("task_id", task.ID).Int("attempt", task.Attempt).Msg("task superseded before failure was recorded")
			return
		}
		r.logger.Error().Err(err).Str("task_id", task.ID).Msg("recording task failure failed")
		return
	}
	r.refreshCollection(writeCtx, task.CollectionID)
}

func (r *Runner) refreshCollection(ctx context.Context, collectionID string) {
	if err := r.collections.RefreshStatus(ctx, collectionID); err != nil {
		r.logger.Warn().Err(err).Str("collection_id", collectionID).Msg("collection status refresh failed")
	}
}

func parseReferences(raw []string) ([]domain.Reference, error) {
	refs := make([]domain.Reference, 0, len(raw))
	for _, s := range raw {
		ref, err := domain.ParseReference(s)
		if err != nil {
			return nil, &domain.ReferenceError{Reference: s, Err: err}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// detached keeps terminal writes alive after the task context expires.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}
