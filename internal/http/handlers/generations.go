package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/pipeline"

	"github.com/google/uuid"
)

const maxGenerationBody = 64 << 10

type generationRequest struct {
	CollectionID   string `json:"collection_id"`
	CollectionName string `json:"collection_name"`
	domain.GenerationConfig
}

type generationResponse struct {
	CollectionID string        `json:"collection_id"`
	Collection   string        `json:"collection_name"`
	Tasks        []taskSummary `json:"tasks"`
}

// CreateGeneration accepts a batch and answers 202 once every task row is
// pending. Results are polled through the image and collection endpoints.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthenticated", "missing user context")
		return
	}
	var req generationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGenerationBody))
	if err := dec.Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.CollectionID = strings.TrimSpace(req.CollectionID)
	if req.CollectionID != "" {
		if _, err := uuid.Parse(req.CollectionID); err != nil {
			a.fail(w, r, domain.NewValidationError("collection_id", "must be a uuid"))
			return
		}
	}

	sub, err := a.generations.Submit(r.Context(), pipeline.SubmitRequest{
		UserID:         userID,
		CollectionID:   req.CollectionID,
		CollectionName: req.CollectionName,
		Config:         req.GenerationConfig,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	resp := generationResponse{
		CollectionID: sub.Collection.ID,
		Collection:   sub.Collection.Name,
		Tasks:        make([]taskSummary, 0, len(sub.Tasks)),
	}
	for _, t := range sub.Tasks {
		resp.Tasks = append(resp.Tasks, taskSummary{ID: t.ID, Status: t.Status})
	}
	a.json(w, http.StatusAccepted, resp)
}
