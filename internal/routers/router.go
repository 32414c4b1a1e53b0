package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cuappdev/clicker-backend/internal/api"
	"github.com/cuappdev/clicker-backend/internal/metrics"
	"github.com/cuappdev/clicker-backend/internal/middleware"
	"github.com/cuappdev/clicker-backend/internal/models"
)

type Options struct {
	Secret         string
	CORSOrigins    []string
	MetricsEnabled bool
	RequestTimeout time.Duration
}

func New(h *api.Handlers, opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Logger,
		chimw.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)
	if opts.MetricsEnabled {
		r.Use(metrics.Middleware)
		r.Handle("/metrics", metrics.Handler())
	}

	r.Get("/healthz", h.Health)

	// Websockets stay outside the request timeout.
	r.Get("/ws/groups/{code}", h.GroupWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(opts.RequestTimeout))
		r.Get("/healthz", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(opts.Secret))

			r.With(middleware.ValidateRequest[*models.CreateGroupRequest]()).Post("/groups", h.CreateGroup)
			r.Get("/groups/live", h.ListLive)
			r.Get("/groups/{id}", h.GetGroup)
			r.Post("/groups/{id}/session", h.StartSession)
			r.Delete("/groups/{id}/session", h.EndSession)
			r.Get("/groups/{id}/polls", h.ListPolls)
			r.Delete("/groups/{id}/polls/{pollId}", h.DeletePoll)

			r.Get("/drafts", h.ListDrafts)
			r.With(middleware.ValidateRequest[*models.PollDraft]()).Post("/drafts", h.CreateDraft)
			r.Post("/drafts/import", h.ImportDrafts)
			r.Get("/drafts/samples", h.SampleDrafts)
			r.Delete("/drafts/{id}", h.DeleteDraft)
		})
	})

	return r
}
