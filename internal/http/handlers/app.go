package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/infra"
	"avatarstudio/internal/lifecycle"
	"avatarstudio/internal/middleware"
	"avatarstudio/internal/pipeline"
)

type GenerationService interface {
	Submit(ctx context.Context, req pipeline.SubmitRequest) (*pipeline.Submission, error)
	Retrigger(ctx context.Context, userID, taskID string) (*domain.GenerationTask, error)
}

type LifecycleService interface {
	DeleteCollection(ctx context.Context, userID, collectionID string) (*lifecycle.Deletion, error)
	DeleteImage(ctx context.Context, userID, imageID string) (*lifecycle.Deletion, error)
}

type TaskReader interface {
	GetForUser(ctx context.Context, id, userID string) (*domain.GenerationTask, error)
	ListByCollection(ctx context.Context, collectionID, userID string) ([]domain.GenerationTask, error)
}

type CollectionReader interface {
	GetForUser(ctx context.Context, id, userID string) (*domain.Collection, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.Collection, error)
}

type ObjectReader interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// AppDeps wires the HTTP handlers. DB is optional and only used by the
// health check.
type AppDeps struct {
	Generations GenerationService
	Lifecycle   LifecycleService
	Tasks       TaskReader
	Collections CollectionReader
	Objects     ObjectReader
	DB          Pinger
	Logger      infra.Logger
}

type App struct {
	generations GenerationService
	lifecycle   LifecycleService
	tasks       TaskReader
	collections CollectionReader
	objects     ObjectReader
	db          Pinger
	logger      infra.Logger
}

func NewApp(deps AppDeps) *App {
	return &App{
		generations: deps.Generations,
		lifecycle:   deps.Lifecycle,
		tasks:       deps.Tasks,
		collections: deps.Collections,
		objects:     deps.Objects,
		db:          deps.DB,
		logger:      infra.Component(deps.Logger, "http"),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	// RequestID is set on 500s so a report can be matched to the log line.
	RequestID string `json:"request_id,omitempty"`
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: msg}})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// fail maps domain errors onto HTTP statuses. Anything unclassified is
// logged and reported as a generic 500.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		a.json(w, http.StatusUnprocessableEntity, map[string]errorBody{
			"error": {Code: "validation_failed", Message: vErr.Error(), Field: vErr.Field},
		})
	case errors.Is(err, domain.ErrUnauthenticated):
		a.error(w, http.StatusUnauthorized, "unauthenticated", "missing user context")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrStaleAttempt):
		a.error(w, http.StatusConflict, "conflict", "task was retriggered concurrently")
	case errors.Is(err, domain.ErrNotRetriggerable):
		a.error(w, http.StatusConflict, "not_retriggerable", err.Error())
	default:
		logger := middleware.LoggerFrom(r.Context(), a.logger)
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.json(w, http.StatusInternalServerError, map[string]errorBody{"error": {
			Code:      "internal",
			Message:   "internal error",
			RequestID: middleware.RequestIDFromContext(r.Context()),
		}})
	}
}
