package httpx

import (
	"log/slog"
	"net/http"

	"github.com/insightlab/insightd/internal/core"
	"github.com/insightlab/insightd/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Batch   *service.BatchService
	Analyze *service.AnalyzeService
	Store   core.BatchJobStore
	Logger  *slog.Logger // Logger for request logging and panic recovery (optional)
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	batchHandlers := &BatchHandlers{Svc: services.Batch}
	analyzeHandlers := &AnalyzeHandlers{Svc: services.Analyze}
	readyHandlers := &ReadyHandlers{Store: services.Store}

	mux.HandleFunc("POST /api/v1/batch/analyze", batchHandlers.SubmitBatch)
	mux.HandleFunc("GET /api/v1/batch/{id}/status", batchHandlers.JobStatus)
	mux.HandleFunc("GET /api/v1/batch/jobs", batchHandlers.ListJobs)
	mux.HandleFunc("POST /api/v1/analyze", analyzeHandlers.Analyze)
	mux.HandleFunc("GET /api/v1/health", healthHandler)
	mux.HandleFunc("HEAD /api/v1/health", healthHandler)
	mux.HandleFunc("GET /api/v1/ready", readyHandlers.Ready)

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
