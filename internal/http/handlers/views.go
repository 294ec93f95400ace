package handlers

import (
	"time"

	"avatarstudio/internal/domain"
)

type taskSummary struct {
	ID     string            `json:"id"`
	Status domain.TaskStatus `json:"status"`
}

type taskView struct {
	ID                 string                  `json:"id"`
	CollectionID       string                  `json:"collection_id"`
	Status             domain.TaskStatus       `json:"status"`
	URL                string                  `json:"url,omitempty"`
	ErrorMessage       string                  `json:"error_message,omitempty"`
	Attempt            int                     `json:"attempt"`
	BatchIndex         int                     `json:"batch_index"`
	Pose               string                  `json:"pose,omitempty"`
	Config             domain.GenerationConfig `json:"config"`
	ConsumedReferences []string                `json:"consumed_references,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

func newTaskView(t domain.GenerationTask) taskView {
	return taskView{
		ID:                 t.ID,
		CollectionID:       t.CollectionID,
		Status:             t.Status,
		URL:                t.URL,
		ErrorMessage:       t.ErrorMessage,
		Attempt:            t.Attempt,
		BatchIndex:         t.Metadata.BatchIndex,
		Pose:               t.Metadata.Pose,
		Config:             t.Metadata.Config,
		ConsumedReferences: t.Metadata.ConsumedReferences,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

type collectionView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Images    []taskView `json:"images,omitempty"`
}

func newCollectionView(c domain.Collection) collectionView {
	return collectionView{
		ID:        c.ID,
		Name:      c.Name,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
