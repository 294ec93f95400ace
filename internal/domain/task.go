package domain

import (
	"encoding/json"
	"time"
)

// TaskStatus enumerates the generation task lifecycle.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether s is completed or failed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// GenerationTask is one row of the images table. Attempt is the execution
// epoch: it starts at 1 and increments on every retrigger, and terminal
// writes only apply to the epoch that produced them.
type GenerationTask struct {
	ID           string
	CollectionID string
	UserID       string
	Status       TaskStatus
	StoragePath  string
	URL          string
	Metadata     TaskMetadata
	ErrorMessage string
	Attempt      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskMetadata is persisted as the jsonb metadata column.
type TaskMetadata struct {
	Config             GenerationConfig `json:"config"`
	BatchIndex         int              `json:"batch_index"`
	Pose               string           `json:"pose,omitempty"`
	PromptText         string           `json:"prompt_text,omitempty"`
	ReferenceImages    []string         `json:"reference_images,omitempty"`
	ConsumedReferences []string         `json:"consumed_references,omitempty"`
	ReferenceURLs      []string         `json:"reference_urls,omitempty"`
	RemoteFiles        []string         `json:"remote_files,omitempty"`
	MIMEType           string           `json:"mime_type,omitempty"`
}

// Marshal encodes metadata for storage.
func (m TaskMetadata) Marshal() []byte {
	raw, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

// UnmarshalTaskMetadata decodes the stored metadata, tolerating empty input.
func UnmarshalTaskMetadata(raw []byte) (TaskMetadata, error) {
	var m TaskMetadata
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, err
	}
	return m, nil
}

// Collection groups tasks for one user.
type Collection struct {
	ID        string
	UserID    string
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Collection aggregate statuses derived from the owned tasks.
const (
	CollectionStatusEmpty      = "empty"
	CollectionStatusProcessing = "processing"
	CollectionStatusCompleted  = "completed"
	CollectionStatusPartial    = "partial"
	CollectionStatusFailed     = "failed"
)
