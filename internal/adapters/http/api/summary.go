package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// SummaryHandler serves the confusion summary of the recent window.
type SummaryHandler struct {
	deps Dependencies
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(deps Dependencies) *SummaryHandler {
	return &SummaryHandler{deps: deps}
}

// HandleSummary handles GET /metrics/summary?window= requests. The window
// defaults to the configured size; the service clamps it.
func (h *SummaryHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.summary"

	window := h.deps.WindowSize()
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, fmt.Errorf("window %q: %w", raw, err)))
			return
		}
		window = n
	}

	summary, err := h.deps.Summary(r.Context(), window)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
