// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/visiontags/internal/adapters/imaging"
	repository "github.com/okian/visiontags/internal/adapters/repository"
	"github.com/okian/visiontags/internal/domain/classifier"
	"github.com/okian/visiontags/internal/domain/confusion"
	"github.com/okian/visiontags/internal/domain/faults"
	"github.com/okian/visiontags/internal/domain/model"
	"github.com/okian/visiontags/internal/domain/neighbors"
	"github.com/okian/visiontags/internal/domain/projection"
	"github.com/okian/visiontags/internal/domain/saliency"
	"github.com/okian/visiontags/internal/domain/types"
	"github.com/okian/visiontags/internal/validation"
	"github.com/okian/visiontags/pkg/logger"
	"github.com/okian/visiontags/pkg/metrics"
)

// DefaultUser is recorded when a request names no user.
const DefaultUser = "demo"

// Default service settings.
const (
	defaultWindowSize     = 200
	defaultNeighborCount  = neighbors.DefaultK
	defaultTopK           = 5
	defaultOverlayOpacity = 0.9
	defaultModelKey       = "tinycnn"
)

// Models resolves a model key to a ready model.
type Models interface {
	Get(ctx context.Context, key string) (classifier.Model, error)
	Keys() []string
	Loaded() int
}

// Service implements the API dependencies for the analytics engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	models    Models
	projector *projection.Projector
	finder    *neighbors.Finder

	// Configuration
	backend       string
	windowSize    int
	neighborCount int
	topK          int
	opacity       float64
	defaultModel  string

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWindowSize sets how many recent records feed projections and summaries.
func WithWindowSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.windowSize = n
		}
	}
}

// WithNeighborCount sets the default neighbor count.
func WithNeighborCount(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.neighborCount = k
		}
	}
}

// WithTopK sets how many scores an analysis reports.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithOverlayOpacity sets the heatmap alpha scale, in [0, 1].
func WithOverlayOpacity(o float64) Option {
	return func(s *Service) {
		if o >= 0 && o <= 1 {
			s.opacity = o
		}
	}
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(key string) Option {
	return func(s *Service) {
		if key != "" {
			s.defaultModel = key
		}
	}
}

// WithBackend names the store backend in stats and logs.
func WithBackend(name string) Option {
	return func(s *Service) {
		s.backend = name
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store and models.
func New(store repository.Store, models Models, opts ...Option) *Service {
	s := &Service{
		store:         store,
		models:        models,
		backend:       repository.BackendMemory,
		windowSize:    defaultWindowSize,
		neighborCount: defaultNeighborCount,
		topK:          defaultTopK,
		opacity:       defaultOverlayOpacity,
		defaultModel:  defaultModelKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the projection and neighbor components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.projector = projection.New(s.store,
		projection.WithWindowSize(s.windowSize),
		projection.WithLogger(s.logger.Named("projection")),
	)
	s.finder = neighbors.New(s.store, s.projector)

	s.started = true
	s.logger.Info(ctx, "analytics service started",
		logger.String("store", s.backend),
		logger.Int("window", s.windowSize),
		logger.String("defaultModel", s.defaultModel),
	)
	return nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(context.Background(), "store close failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "analytics service stopped")
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Analyze classifies img with the named model (default when empty),
// renders the saliency overlay for the top label, stores the record and
// places it among its dimension group.
func (s *Service) Analyze(ctx context.Context, img image.Image, user, modelKey string) (types.Analysis, error) {
	if err := s.running(); err != nil {
		return types.Analysis{}, err
	}
	if img == nil || img.Bounds().Empty() {
		return types.Analysis{}, faults.Invalid(ErrNoImage)
	}
	if modelKey == "" {
		modelKey = s.defaultModel
	}

	m, err := s.models.Get(ctx, modelKey)
	if err != nil {
		if errors.Is(err, classifier.ErrUnknownModel) {
			return types.Analysis{}, faults.Invalid(err)
		}
		return types.Analysis{}, faults.Collaborator("service: load model", err)
	}

	rec, heatmap, topk, err := s.infer(ctx, m, img)
	if err != nil {
		metrics.RecordClassification(m.Name(), "error")
		s.logger.Warn(ctx, "classification failed", logger.String("model", m.Name()), logger.Error(err))
		return types.Analysis{}, err
	}
	metrics.RecordClassification(m.Name(), "ok")

	if strings.TrimSpace(user) == "" {
		user = DefaultUser
	}
	rec.User = user
	rec, err = s.store.Insert(ctx, rec)
	if err != nil {
		return types.Analysis{}, faults.Collaborator("service: insert record", err)
	}

	group, err := s.projector.EnsureProjected(ctx, rec.Dim())
	if err != nil {
		s.logger.Warn(ctx, "projection failed",
			logger.String("id", rec.ID), logger.Int("dim", rec.Dim()), logger.Error(err))
		return types.Analysis{}, err
	}

	out := types.Analysis{
		ID:        rec.ID,
		Model:     rec.Model,
		TopK:      topk,
		Heatmap:   heatmap,
		Neighbors: neighbors.Nearest(group, rec.ID, s.neighborCount),
	}
	if i := model.Find(group, rec.ID); i >= 0 && group[i].Coords != nil {
		out.Embedding = types.Coordinates{X: group[i].Coords.X, Y: group[i].Coords.Y}
	}

	s.logger.Debug(ctx, "image analyzed",
		logger.String("id", rec.ID),
		logger.String("label", rec.Label),
		logger.Int("dim", rec.Dim()),
		logger.Int("group", len(group)),
	)
	return out, nil
}

// infer runs the model calls and encodes the overlay and thumbnail. The
// returned record is not stored yet.
func (s *Service) infer(ctx context.Context, m classifier.Model, img image.Image) (model.Record, string, []types.Score, error) {
	x := imaging.ToTensor(img, m.InputSize())

	scores, err := m.Classify(ctx, x)
	if err != nil {
		return model.Record{}, "", nil, faults.Collaborator("service: classify", err)
	}
	if len(scores) == 0 {
		return model.Record{}, "", nil, faults.Collaborator("service: classify", ErrNoScores)
	}
	emb, err := m.Embed(ctx, x)
	if err != nil {
		return model.Record{}, "", nil, faults.Collaborator("service: embed", err)
	}
	exp, err := m.Explain(ctx, x, scores[0].Label)
	if err != nil {
		return model.Record{}, "", nil, faults.Collaborator("service: explain", err)
	}

	b := img.Bounds()
	start := time.Now()
	overlay, err := saliency.Render(exp.Activations, exp.Gradients, b.Dy(), b.Dx(), s.opacity)
	if err != nil {
		return model.Record{}, "", nil, faults.Collaborator("service: saliency", err)
	}
	metrics.RecordSaliencyLatency(metrics.Since(start))

	var heatmap, thumb string
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		heatmap, err = imaging.PNGDataURI(overlay)
		return err
	})
	g.Go(func() error {
		var err error
		thumb, err = imaging.ThumbnailDataURI(img)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Record{}, "", nil, faults.Collaborator("service: encode images", err)
	}

	n := min(s.topK, len(scores))
	rec := model.Record{
		ID:        model.NewRecordID(),
		Label:     scores[0].Label,
		Prob:      scores[0].P,
		CreatedAt: time.Now().UTC(),
		Embedding: emb,
		Thumb:     thumb,
		Model:     m.Name(),
	}
	return rec, heatmap, append([]types.Score(nil), scores[:n]...), nil
}

// SubmitFeedback records the ground-truth label of a stored prediction. An
// unknown id is a not-found error.
func (s *Service) SubmitFeedback(ctx context.Context, fb types.Feedback) error {
	if err := s.running(); err != nil {
		return err
	}
	fb.PredictionID = strings.TrimSpace(fb.PredictionID)
	fb.TrueLabel = strings.TrimSpace(fb.TrueLabel)
	if err := validation.Struct(fb); err != nil {
		return faults.Invalid(fmt.Errorf("%w: %w", ErrInvalidFeedback, err))
	}
	id, label := fb.PredictionID, fb.TrueLabel

	if err := s.store.UpdateGroundTruth(ctx, id, label); err != nil {
		s.logger.Warn(ctx, "feedback rejected", logger.String("id", id), logger.Error(err))
		if errors.Is(err, repository.ErrNotFound) {
			return faults.NotFound(fmt.Errorf("%s: %w", id, err))
		}
		return faults.Collaborator("service: update ground truth", err)
	}
	metrics.RecordFeedback()
	s.logger.Debug(ctx, "feedback recorded", logger.String("id", id), logger.String("trueLabel", label))
	return nil
}

// Summary returns label counts and the confusion matrix of the most recent
// window records. window is clamped to [1, WindowSize()].
func (s *Service) Summary(ctx context.Context, window int) (types.Summary, error) {
	if err := s.running(); err != nil {
		return types.Summary{}, err
	}
	window = max(1, min(window, s.windowSize))

	records, err := s.store.LastN(ctx, window)
	if err != nil {
		return types.Summary{}, faults.Collaborator("service: read window", err)
	}
	metrics.RecordSummaryQuery()
	metrics.UpdateWindowSize(len(records))
	return confusion.Summarize(records), nil
}

// Neighbors returns up to k records nearest to id. k <= 0 selects the
// configured count.
func (s *Service) Neighbors(ctx context.Context, id string, k int) ([]types.Neighbor, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = s.neighborCount
	}
	out, err := s.finder.Neighbors(ctx, id, k)
	if err != nil {
		s.logger.Warn(ctx, "neighbor query failed", logger.String("id", id), logger.Error(err))
		return nil, err
	}
	return out, nil
}

// Points returns the embedding map of the last limit window records, oldest
// first. Every dimension group present in the window is brought up to date
// first; groups are independent and refresh concurrently. limit <= 0 or
// above WindowSize() selects the whole window.
func (s *Service) Points(ctx context.Context, limit int) (types.Points, error) {
	if err := s.running(); err != nil {
		return types.Points{}, err
	}
	if limit <= 0 || limit > s.windowSize {
		limit = s.windowSize
	}

	window, err := s.store.LastN(ctx, s.windowSize)
	if err != nil {
		return types.Points{}, faults.Collaborator("service: read window", err)
	}
	if len(window) > limit {
		window = window[len(window)-limit:]
	}

	var (
		mu     sync.Mutex
		coords = make(map[string]model.Point, len(window))
		seen   = make(map[int]bool)
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := range window {
		dim := window[i].Dim()
		if seen[dim] {
			continue
		}
		seen[dim] = true
		g.Go(func() error {
			group, err := s.projector.EnsureProjected(gctx, dim)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for j := range group {
				if group[j].Coords != nil {
					coords[group[j].ID] = *group[j].Coords
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn(ctx, "embedding map failed", logger.Error(err))
		return types.Points{}, err
	}

	out := types.Points{Points: make([]types.Point, 0, len(window))}
	for i := range window {
		pt, ok := coords[window[i].ID]
		if !ok {
			continue
		}
		out.Points = append(out.Points, types.Point{
			ID:    window[i].ID,
			X:     pt.X,
			Y:     pt.Y,
			Label: window[i].Label,
			Thumb: window[i].Thumb,
			Dim:   window[i].Dim(),
		})
	}
	s.logger.Debug(ctx, "embedding map served",
		logger.Int("points", len(out.Points)), logger.Int("groups", len(seen)))
	return out, nil
}

// WindowSize returns the analytics window length.
func (s *Service) WindowSize() int { return s.windowSize }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"store":         s.backend,
		"windowSize":    s.windowSize,
		"neighborCount": s.neighborCount,
		"defaultModel":  s.defaultModel,
		"models":        s.models.Keys(),
		"modelsLoaded":  s.models.Loaded(),
	}

	if s.started {
		total, err := s.store.Count(context.Background())
		if err == nil {
			stats["totalRecords"] = total
			metrics.UpdateTotalRecords(total)
		}
	}
	return stats
}
