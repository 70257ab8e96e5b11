package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/askbook-ai/askbook/internal/api"
	"github.com/askbook-ai/askbook/internal/api/handlers"
	"github.com/askbook-ai/askbook/internal/api/middleware"
)

type RouterConfig struct {
	QueryHandler  *handlers.QueryHandler
	IngestHandler *handlers.IngestHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/ai", func(r chi.Router) {
		r.Post("/query", cfg.QueryHandler.Submit)
		r.Post("/query/sync", cfg.QueryHandler.SubmitSync)
		r.Get("/tasks/{id}", cfg.QueryHandler.TaskStatus)
		r.Get("/queue/stats", cfg.QueryHandler.QueueStats)
		r.Post("/validate", cfg.QueryHandler.Validate)
	})

	r.Route("/chapters", func(r chi.Router) {
		r.Post("/{id}/ingest", cfg.IngestHandler.Ingest)
		r.Delete("/{id}/embeddings", cfg.IngestHandler.DeleteEmbeddings)
	})

	return r
}
