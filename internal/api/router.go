package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/RichardoC/pawtrack/internal/httpmw"
)

// NewRouter wires the handler routes. metrics and logger may be nil.
func NewRouter(h *Handler, logger *zap.Logger, metrics http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmw.Logger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/conversations", func(r chi.Router) {
		r.Delete("/purge", h.PurgeConversation)
		r.Get("/purges", h.ListPurges)
	})

	return r
}
