package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/storage"
	"avatarstudio/pkg/zip"
)

const (
	defaultCollectionPage = 50
	maxCollectionPage     = 200
)

func (a *App) ListCollections(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	limit := defaultCollectionPage
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.fail(w, r, domain.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = min(n, maxCollectionPage)
	}
	cols, err := a.collections.ListForUser(r.Context(), userID, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]collectionView, 0, len(cols))
	for _, c := range cols {
		out = append(out, newCollectionView(c))
	}
	a.json(w, http.StatusOK, map[string]any{"collections": out})
}

func (a *App) GetCollection(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	id := pathID(r)
	if id == "" {
		a.fail(w, r, domain.ErrNotFound)
		return
	}
	col, err := a.collections.GetForUser(r.Context(), id, userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	tasks, err := a.tasks.ListByCollection(r.Context(), id, userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	view := newCollectionView(*col)
	view.Images = make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		view.Images = append(view.Images, newTaskView(t))
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	id := pathID(r)
	if id == "" {
		a.fail(w, r, domain.ErrNotFound)
		return
	}
	res, err := a.lifecycle.DeleteCollection(r.Context(), userID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

// CollectionArchive streams a zip of every completed image in the
// collection. Objects that cannot be read are left out.
func (a *App) CollectionArchive(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	id := pathID(r)
	if id == "" {
		a.fail(w, r, domain.ErrNotFound)
		return
	}
	if _, err := a.collections.GetForUser(r.Context(), id, userID); err != nil {
		a.fail(w, r, err)
		return
	}
	tasks, err := a.tasks.ListByCollection(r.Context(), id, userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	var assets []zip.Asset
	for _, t := range tasks {
		if t.Status != domain.TaskStatusCompleted || t.StoragePath == "" {
			continue
		}
		data, err := a.objects.Download(r.Context(), t.StoragePath)
		if err != nil {
			a.logger.Warn().Err(err).Str("task_id", t.ID).Msg("archive: object unreadable, skipped")
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("%02d-%s%s", t.Metadata.BatchIndex+1, t.ID, storage.ExtensionForMIME(t.Metadata.MIMEType)),
			MIME:     t.Metadata.MIMEType,
			Data:     data,
			Modified: t.UpdatedAt,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "collection has no completed images")
		return
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=collection-%s.zip", id))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
