package httpx

import (
	"io"
	"net/http"

	"github.com/insightlab/insightd/internal/core"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// ReadyHandlers probes the job store so readiness reflects whether batches
// can actually be accepted.
type ReadyHandlers struct {
	Store core.BatchJobStore
}

// Ready handles the readiness check: 200 when the store answers, 503 otherwise.
func (h *ReadyHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Health(r.Context()); err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "store_unavailable",
			Err:     err,
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
