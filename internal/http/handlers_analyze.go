package httpx

import (
	"net/http"

	"github.com/insightlab/insightd/internal/domain/model"
	"github.com/insightlab/insightd/internal/service"
)

// AnalyzeHandlers provides HTTP handlers for single-record analysis.
type AnalyzeHandlers struct {
	Svc *service.AnalyzeService
}

// analyzeEnvelope wraps the analysis response with the cache outcome.
type analyzeEnvelope struct {
	*model.AnalyzeResponse
	Cached bool `json:"cached"`
}

// Analyze handles synchronous analysis of one record.
func (h *AnalyzeHandlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var req model.AnalyzeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	resp, cached, err := h.Svc.Analyze(r.Context(), req)
	if err != nil {
		if service.IsInvalid(err) {
			WriteError(w, ErrorParams{
				Code:    http.StatusUnprocessableEntity,
				ErrCode: "invalid_request",
				Err:     err,
			})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadGateway, ErrCode: "analysis_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, analyzeEnvelope{AnalyzeResponse: resp, Cached: cached})
}
