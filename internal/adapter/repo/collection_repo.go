package repo

import (
	"context"
	"fmt"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/infra"
	"avatarstudio/internal/sqlinline"
)

const defaultCollectionListLimit = 50

// CollectionRepositoryPG stores collections in PostgreSQL.
type CollectionRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewCollectionRepository constructs a collection repository over sql.
func NewCollectionRepository(sql infra.SQLExecutor) *CollectionRepositoryPG {
	return &CollectionRepositoryPG{sql: sql}
}

// Create inserts a collection in the processing state.
func (r *CollectionRepositoryPG) Create(ctx context.Context, userID, name string) (*domain.Collection, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertCollection, userID, name)
	col, err := scanCollection(row)
	if err != nil {
		return nil, fmt.Errorf("insert collection: %w", err)
	}
	return col, nil
}

// GetForUser returns the collection only if userID owns it.
func (r *CollectionRepositoryPG) GetForUser(ctx context.Context, id, userID string) (*domain.Collection, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectCollectionForUser, id, userID)
	col, err := scanCollection(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select collection: %w", err)
	}
	return col, nil
}

// ListForUser returns the newest collections first.
func (r *CollectionRepositoryPG) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Collection, error) {
	if limit <= 0 {
		limit = defaultCollectionListLimit
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListCollectionsByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []domain.Collection
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RefreshStatus recomputes the aggregate status from the owned images.
func (r *CollectionRepositoryPG) RefreshStatus(ctx context.Context, id string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QRefreshCollectionStatus, id); err != nil {
		return fmt.Errorf("refresh collection status: %w", err)
	}
	return nil
}

// Delete removes the collection row. Deleting an absent row is not an error.
func (r *CollectionRepositoryPG) Delete(ctx context.Context, id, userID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteCollection, id, userID); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

func scanCollection(row scanner) (*domain.Collection, error) {
	var col domain.Collection
	if err := row.Scan(&col.ID, &col.UserID, &col.Name, &col.Status, &col.CreatedAt, &col.UpdatedAt); err != nil {
		return nil, err
	}
	return &col, nil
}
