package repo

import (
	"context"
	"fmt"
	"time"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/infra"
	"avatarstudio/internal/sqlinline"
)

type scanner interface {
	Scan(dest ...any) error
}

// StaleTask identifies a task the sweeper failed.
type StaleTask struct {
	ID           string
	CollectionID string
}

// ImageRepositoryPG stores generation tasks (the images table).
type ImageRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewImageRepository constructs an image repository over sql.
func NewImageRepository(sql infra.SQLExecutor) *ImageRepositoryPG {
	return &ImageRepositoryPG{sql: sql}
}

// CreatePending inserts a pending task at attempt 1.
func (r *ImageRepositoryPG) CreatePending(ctx context.Context, collectionID, userID string, meta domain.TaskMetadata) (*domain.GenerationTask, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertPendingImage, collectionID, userID, meta.Marshal())
	task, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("insert image: %w", err)
	}
	return task, nil
}

// GetForUser returns the task only if userID owns it.
func (r *ImageRepositoryPG) GetForUser(ctx context.Context, id, userID string) (*domain.GenerationTask, error) {
	task, err := scanTask(r.sql.QueryRow(ctx, sqlinline.QSelectImageForUser, id, userID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select image: %w", err)
	}
	return task, nil
}

// ListByCollection returns the collection's tasks oldest first.
func (r *ImageRepositoryPG) ListByCollection(ctx context.Context, collectionID, userID string) ([]domain.GenerationTask, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListImagesByCollection, collectionID, userID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []domain.GenerationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Complete is the success terminal write for epoch attempt. It returns
// domain.ErrStaleAttempt when the task has moved on.
func (r *ImageRepositoryPG) Complete(ctx context.Context, id string, attempt int, storagePath, url string, meta domain.TaskMetadata) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QCompleteImage, id, attempt, storagePath, url, meta.Marshal())
	if err != nil {
		return fmt.Errorf("complete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleAttempt
	}
	return nil
}

// Fail is the failure terminal write for epoch attempt.
func (r *ImageRepositoryPG) Fail(ctx context.Context, id string, attempt int, message string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QFailImage, id, attempt, message)
	if err != nil {
		return fmt.Errorf("fail image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleAttempt
	}
	return nil
}

// Retrigger opens epoch attempt+1 if the row still carries attempt and is
// failed or pending since before staleBefore.
func (r *ImageRepositoryPG) Retrigger(ctx context.Context, id, userID string, attempt int, staleBefore time.Time) (*domain.GenerationTask, error) {
	task, err := scanTask(r.sql.QueryRow(ctx, sqlinline.QRetriggerImage, id, userID, attempt, staleBefore))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrStaleAttempt
		}
		return nil, fmt.Errorf("retrigger image: %w", err)
	}
	return task, nil
}

// FailStalePending fails every task pending since before cutoff.
func (r *ImageRepositoryPG) FailStalePending(ctx context.Context, cutoff time.Time, message string) ([]StaleTask, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QFailStalePending, cutoff, message)
	if err != nil {
		return nil, fmt.Errorf("fail stale images: %w", err)
	}
	defer rows.Close()

	var out []StaleTask
	for rows.Next() {
		var st StaleTask
		if err := rows.Scan(&st.ID, &st.CollectionID); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// DeleteByCollection removes every task row of the collection.
func (r *ImageRepositoryPG) DeleteByCollection(ctx context.Context, collectionID, userID string) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteImagesByCollection, collectionID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete images: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes one task row.
func (r *ImageRepositoryPG) Delete(ctx context.Context, id, userID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteImage, id, userID); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

func scanTask(row scanner) (*domain.GenerationTask, error) {
	var (
		task   domain.GenerationTask
		status string
		meta   []byte
	)
	if err := row.Scan(
		&task.ID,
		&task.CollectionID,
		&task.UserID,
		&status,
		&task.StoragePath,
		&task.URL,
		&meta,
		&task.ErrorMessage,
		&task.Attempt,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.Status = domain.TaskStatus(status)
	decoded, err := domain.UnmarshalTaskMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("decode metadata of image %s: %w", task.ID, err)
	}
	task.Metadata = decoded
	return &task, nil
}
