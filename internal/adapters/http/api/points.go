package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/visiontags/internal/domain/types"
)

// PointsHandler serves the embedding map of the recent window.
type PointsHandler struct {
	deps Dependencies
}

// NewPointsHandler creates a new points handler.
func NewPointsHandler(deps Dependencies) *PointsHandler {
	return &PointsHandler{deps: deps}
}

// HandlePoints handles GET /embeddings/points?limit= requests. Without a
// limit the whole window is returned.
func (h *PointsHandler) HandlePoints(w http.ResponseWriter, r *http.Request) {
	const op = "api.points"

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeFailure(w, WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be a positive integer, got %q", raw)))
			return
		}
		limit = n
	}

	points, err := h.deps.Points(r.Context(), limit)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if points.Points == nil {
		points.Points = []types.Point{}
	}
	writeJSON(w, http.StatusOK, points)
}
