package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/konsultti/kokoro-tts/internal/api/middleware"
	"github.com/konsultti/kokoro-tts/internal/api/shared"
)

// NewRouter builds the HTTP routing tree over the job handlers.
func NewRouter(h *JobHandler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.TraceMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		shared.RespondWithJSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.SubmitJob)
			r.Get("/", h.ListJobs)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetJob)
				r.Delete("/", h.DeleteJob)
				r.Post("/cancel", h.CancelJob)
				r.Post("/resume", h.ResumeJob)
				r.Get("/logs", h.GetJobLogs)
			})
		})

		r.Get("/stats", h.GetStats)
	})

	return r
}
