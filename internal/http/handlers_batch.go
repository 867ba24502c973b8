// Package httpx provides the HTTP handlers and routing for the insight
// analysis API.
package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/insightlab/insightd/internal/domain/model"
	"github.com/insightlab/insightd/internal/service"
)

const defaultJobsLimit = 50

// BatchHandlers provides HTTP handlers for batch job operations.
type BatchHandlers struct {
	Svc *service.BatchService
}

// SubmitBatch handles batch submission. The batch is accepted with 202 and
// processed in the background; clients poll JobStatus for progress.
func (h *BatchHandlers) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req model.BatchSubmitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		if service.IsInvalid(err) {
			WriteError(w, ErrorParams{
				Code:    http.StatusUnprocessableEntity,
				ErrCode: "invalid_batch",
				Err:     err,
			})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "submit_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusAccepted, resp)
}

// JobStatus handles status polling for one job.
func (h *BatchHandlers) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("job id is required"),
		})
		return
	}

	status, err := h.Svc.Status(r.Context(), jobID)
	if err != nil {
		if service.IsNotFound(err) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "status_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// ListJobs handles the job listing endpoint.
func (h *BatchHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultJobsLimit)

	list, err := h.Svc.ListJobs(r.Context(), limit)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, list)
}

// parseIntQuery reads an integer query parameter, falling back to def when
// the parameter is absent or malformed.
func parseIntQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}
