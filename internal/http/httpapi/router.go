package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/KianaMei/genqueue/internal/http/handlers"
	"github.com/KianaMei/genqueue/internal/infra"
	"github.com/KianaMei/genqueue/internal/middleware"
)

// NewRouter wires the HTTP surface over the app container. Submission-style
// endpoints are rate limited per client; reads and the event stream are not.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger, countryLookup middleware.CountryLookup) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestID)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.AllowedOrigins))
	}
	r.Use(middleware.I18N("en", countryLookup))
	r.Use(middleware.Logger(logger))

	limitWrites := middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/generations", func(r chi.Router) {
		r.With(limitWrites).Post("/", app.GenerationsCreate)
		r.Get("/", app.GenerationsList)
		r.Get("/events", app.GenerationEvents)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GenerationsGet)
			r.Delete("/", app.GenerationsDelete)
			r.Post("/cancel", app.GenerationsCancel)
			r.With(limitWrites).Post("/retry", app.GenerationsRetry)
			r.Delete("/outputs/{index}", app.GenerationsDeleteOutput)
		})
	})

	r.Put("/v1/providers/{id}/credential", app.ProvidersSetCredential)

	return r
}
