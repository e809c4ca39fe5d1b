package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/visiontags/internal/domain/types"
	"github.com/okian/visiontags/internal/validation"
)

// maxFeedbackBytes caps the JSON body of /feedback.
const maxFeedbackBytes = 16 << 10

// FeedbackHandler attaches ground-truth labels to stored predictions.
type FeedbackHandler struct {
	deps Dependencies
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(deps Dependencies) *FeedbackHandler {
	return &FeedbackHandler{deps: deps}
}

// HandleFeedback handles POST /feedback requests. Both fields are required
// (400) and the body is capped (413). An id that is not stored answers 404,
// including ids that have aged out of a bounded memory store.
func (h *FeedbackHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	const op = "api.feedback"

	r.Body = http.MaxBytesReader(w, r.Body, maxFeedbackBytes)
	var req types.Feedback
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, WrapKind(op, ErrTooLarge, err))
			return
		}
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	req.PredictionID = strings.TrimSpace(req.PredictionID)
	req.TrueLabel = strings.TrimSpace(req.TrueLabel)
	if err := validation.Struct(req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	if err := h.deps.SubmitFeedback(r.Context(), req); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
