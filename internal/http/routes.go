package httpx

import (
	"log/slog"
	"net/http"
)

// RouterServices holds the services the HTTP router needs.
type RouterServices struct {
	Runs   JobRunAPI
	Logger *slog.Logger // Optional: request logging and panic recovery
}

// NewRouter builds the HTTP handler tree.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	h := &JobRunHandlers{Svc: services.Runs}
	mux.HandleFunc("POST /api/jobs", h.EnqueueRun)
	mux.HandleFunc("GET /api/jobs", h.ListRuns)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetRun)
	mux.HandleFunc("GET /api/dealers/{id}/stats", h.DealerStats)

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
