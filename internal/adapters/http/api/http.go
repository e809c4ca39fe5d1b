// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"

	"github.com/okian/visiontags/internal/domain/faults"
	"github.com/okian/visiontags/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Analyze classifies img, explains the top label and places the new
	// record among its neighbors.
	Analyze(ctx context.Context, img image.Image, user, model string) (types.Analysis, error)
	SubmitFeedback(ctx context.Context, fb types.Feedback) error

	// Read operations over the analytics window.
	Summary(ctx context.Context, window int) (types.Summary, error)
	Neighbors(ctx context.Context, id string, k int) ([]types.Neighbor, error)
	Points(ctx context.Context, limit int) (types.Points, error)
	WindowSize() int
}

// Default transport limits.
const (
	DefaultMaxUploadBytes = 10 << 20
	DefaultMaxImagePixels = 1 << 24
	limiterCacheSize      = 4096
)

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes caps the multipart body accepted by /analyze.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithMaxImagePixels caps width*height of images accepted by /analyze.
func WithMaxImagePixels(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxImagePixels = n
		}
	}
}

// WithRateLimit enables per-client limiting on the write endpoints.
// A non-positive rate disables it.
func WithRateLimit(perSec float64, burst int) Option {
	return func(s *Server) {
		s.ratePerSec = perSec
		s.rateBurst = burst
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	maxUploadBytes int64
	maxImagePixels int
	ratePerSec     float64
	rateBurst      int

	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	analyzeHandler   *AnalyzeHandler
	feedbackHandler  *FeedbackHandler
	summaryHandler   *SummaryHandler
	neighborsHandler *NeighborsHandler
	pointsHandler    *PointsHandler
	limiter          *RateLimiter
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) (*Server, error) {
	s := &Server{maxUploadBytes: DefaultMaxUploadBytes, maxImagePixels: DefaultMaxImagePixels}
	for _, opt := range opts {
		opt(s)
	}

	if s.ratePerSec > 0 {
		limiter, err := NewRateLimiter(s.ratePerSec, s.rateBurst, limiterCacheSize)
		if err != nil {
			return nil, err
		}
		s.limiter = limiter
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.analyzeHandler = NewAnalyzeHandler(deps, s.maxUploadBytes, s.maxImagePixels)
	s.feedbackHandler = NewFeedbackHandler(deps)
	s.summaryHandler = NewSummaryHandler(deps)
	s.neighborsHandler = NewNeighborsHandler(deps)
	s.pointsHandler = NewPointsHandler(deps)
	return s, nil
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.healthHandler.HandleBanner)
	mux.HandleFunc("GET /health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleMetrics, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	analyze := s.limited(s.analyzeHandler.HandleAnalyze)
	mux.HandleFunc("POST /analyze", MetricsMiddleware(analyze, "analyze"))
	mux.HandleFunc("POST /classify", MetricsMiddleware(analyze, "analyze"))
	mux.HandleFunc("POST /feedback", MetricsMiddleware(s.limited(s.feedbackHandler.HandleFeedback), "feedback"))

	mux.HandleFunc("GET /metrics/summary", MetricsMiddleware(s.summaryHandler.HandleSummary, "summary"))
	mux.HandleFunc("GET /neighbors/{id}", MetricsMiddleware(s.neighborsHandler.HandleNeighbors, "neighbors"))
	mux.HandleFunc("GET /embeddings/points", MetricsMiddleware(s.pointsHandler.HandlePoints, "points"))
}

func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Middleware(next)
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err to its response class and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrBadRequest), errors.Is(err, faults.ErrInvalidInput):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, faults.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, faults.ErrIntegrity):
		return http.StatusInternalServerError, "integrity_fault"
	case errors.Is(err, faults.ErrCollaborator):
		return http.StatusBadGateway, "collaborator_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
