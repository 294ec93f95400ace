package handlers

import (
	"net/http"

	"avatarstudio/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// pathID returns the {id} URL parameter, or "" when it is not a uuid. Ids
// that cannot exist are reported as not found without a database round trip.
func pathID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

func (a *App) GetImage(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	id := pathID(r)
	if id == "" {
		a.fail(w, r, domain.ErrNotFound)
		return
	}
	task, err := a.tasks.GetForUser(r.Context(), id, userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newTaskView(*task))
}

func (a *App) RetriggerImage(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	id := pathID(r)
	if id == "" {
		a.fail(w, r, domain.ErrNotFound)
		return
	}
	task, err := a.generations.Retrigger(r.Context(), userID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, newTaskView(*task))
}

func (a *App) DeleteImage(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	id := pathID(r)
	if id == "" {
		a.fail(w, r, domain.ErrNotFound)
		return
	}
	res, err := a.lifecycle.DeleteImage(r.Context(), userID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}
