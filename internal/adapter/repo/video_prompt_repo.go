package repo

import (
	"context"
	"fmt"

	"avatarstudio/internal/infra"
	"avatarstudio/internal/sqlinline"
)

// VideoPromptRepositoryPG removes video prompts derived from images.
type VideoPromptRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewVideoPromptRepository(sql infra.SQLExecutor) *VideoPromptRepositoryPG {
	return &VideoPromptRepositoryPG{sql: sql}
}

func (r *VideoPromptRepositoryPG) DeleteByImage(ctx context.Context, imageID, userID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteVideoPromptsByImage, imageID, userID); err != nil {
		return fmt.Errorf("delete video prompts of image: %w", err)
	}
	return nil
}

func (r *VideoPromptRepositoryPG) DeleteByCollection(ctx context.Context, collectionID, userID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteVideoPromptsByCollection, collectionID, userID); err != nil {
		return fmt.Errorf("delete video prompts of collection: %w", err)
	}
	return nil
}
