package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/visiontags/internal/adapters/imaging"
)

// Request fields read by /analyze.
const (
	imageField      = "image"
	userHeader      = "X-User"
	modelParam      = "model"
	multipartMemory = 1 << 20
)

// AnalyzeHandler handles image uploads.
type AnalyzeHandler struct {
	deps           Dependencies
	maxUploadBytes int64
	maxPixels      int
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(deps Dependencies, maxUploadBytes int64, maxPixels int) *AnalyzeHandler {
	return &AnalyzeHandler{deps: deps, maxUploadBytes: maxUploadBytes, maxPixels: maxPixels}
}

// HandleAnalyze handles POST /analyze and its /classify alias. Bodies over
// the upload cap and images over the pixel cap are answered with 413.
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze"

	if r.ContentLength > h.maxUploadBytes {
		writeFailure(w, NewKind(op, ErrTooLarge))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, WrapKind(op, ErrTooLarge, err))
			return
		}
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile(imageField)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, fmt.Errorf("missing %q field: %w", imageField, err)))
		return
	}
	defer func() { _ = file.Close() }()

	img, _, err := imaging.Decode(file, h.maxPixels)
	if errors.Is(err, imaging.ErrTooLarge) {
		writeFailure(w, WrapKind(op, ErrTooLarge, err))
		return
	}
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	user := strings.TrimSpace(r.Header.Get(userHeader))
	model := strings.TrimSpace(r.URL.Query().Get(modelParam))
	analysis, err := h.deps.Analyze(r.Context(), img, user, model)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
