package httpapi

import (
	"net/http"
	"time"

	"avatarstudio/internal/http/handlers"
	"avatarstudio/internal/infra"
	appmw "avatarstudio/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options configures the router's middleware stack.
type Options struct {
	JWTSecret       string
	CORSOrigins     []string
	RateLimitPerMin int
	// StaticDir, when set, serves the filesystem storage backend under
	// /static/.
	StaticDir string
	Logger    infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		appmw.RequestID(opts.Logger),
		middleware.RealIP,
		middleware.Recoverer,
		appmw.Logger(opts.Logger),
		appmw.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	limit := opts.RateLimitPerMin
	if limit <= 0 {
		limit = 30
	}
	throttle := appmw.RateLimit(limit, time.Minute)

	r.Group(func(r chi.Router) {
		r.Use(appmw.AuthJWT(opts.JWTSecret))

		r.With(throttle).Post("/v1/generations", app.CreateGeneration)

		r.Route("/v1/images/{id}", func(r chi.Router) {
			r.Get("/", app.GetImage)
			r.With(throttle).Post("/retrigger", app.RetriggerImage)
			r.Delete("/", app.DeleteImage)
		})

		r.Get("/v1/collections", app.ListCollections)
		r.Route("/v1/collections/{id}", func(r chi.Router) {
			r.Get("/", app.GetCollection)
			r.Get("/archive", app.CollectionArchive)
			r.Delete("/", app.DeleteCollection)
		})
	})

	return r
}
