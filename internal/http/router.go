package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"brandforge/internal/http/handlers"
	"brandforge/internal/infra"
	"brandforge/internal/middleware"
)

func NewRouter(app *handlers.App, logger infra.Logger, rateLimitPerMin int) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	if rateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(rateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.SubmitJob)
		r.Get("/{id}", app.JobStatus)
		r.Post("/{id}/cancel", app.CancelJob)
		r.Post("/{id}/tweak", app.TweakJob)
		r.Post("/{id}/decision", app.DecideJob)
	})

	return r
}
