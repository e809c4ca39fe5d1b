package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/visiontags/internal/domain/types"
)

// NeighborsHandler serves the nearest records of a prediction.
type NeighborsHandler struct {
	deps Dependencies
}

// NewNeighborsHandler creates a new neighbors handler.
func NewNeighborsHandler(deps Dependencies) *NeighborsHandler {
	return &NeighborsHandler{deps: deps}
}

// HandleNeighbors handles GET /neighbors/{id}?k= requests. An unknown id
// yields an empty list.
func (h *NeighborsHandler) HandleNeighbors(w http.ResponseWriter, r *http.Request) {
	const op = "api.neighbors"

	id := r.PathValue("id")
	if id == "" {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}

	// 0 selects the service default.
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeFailure(w, WrapKind(op, ErrBadRequest, fmt.Errorf("k must be a positive integer, got %q", raw)))
			return
		}
		k = n
	}

	neighbors, err := h.deps.Neighbors(r.Context(), id, k)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if neighbors == nil {
		neighbors = []types.Neighbor{}
	}
	writeJSON(w, http.StatusOK, neighbors)
}
