// Package projection maintains 2D PCA coordinates for the recent window of
// prediction embeddings, one dimension group at a time.
package projection

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/okian/visiontags/internal/domain/faults"
	"github.com/okian/visiontags/internal/domain/model"
	"github.com/okian/visiontags/pkg/logger"
	"github.com/okian/visiontags/pkg/metrics"
)

const defaultWindowSize = 200

// Store is the slice of the record store the projector needs.
type Store interface {
	LastN(ctx context.Context, n int) ([]model.Record, error)
	UpdateCoordinates(ctx context.Context, coords map[string]model.Point) error
}

// Option applies a configuration option to the Projector.
type Option func(*Projector)

// WithWindowSize sets how many recent records form the window.
func WithWindowSize(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.window = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Projector) {
		if l != nil {
			p.log = l
		}
	}
}

// Projector recomputes a dimension group's coordinates whenever any member
// lacks them. Recompute and persist run under the group's lock; different
// groups proceed concurrently.
type Projector struct {
	store  Store
	window int
	log    logger.Logger

	mu     sync.Mutex
	groups map[int]*sync.Mutex
}

// New creates a Projector over store.
func New(store Store, opts ...Option) *Projector {
	p := &Projector{
		store:  store,
		window: defaultWindowSize,
		groups: make(map[int]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Named("projection")
	}
	return p
}

// WindowSize returns the configured window length.
func (p *Projector) WindowSize() int { return p.window }

func (p *Projector) lock(dim int) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.groups[dim]
	if !ok {
		l = &sync.Mutex{}
		p.groups[dim] = l
	}
	return l
}

// EnsureProjected returns the window members with embedding length dim, in
// window order, each carrying coordinates. When any member lacks coordinates
// the whole group is recomputed and persisted in one store call.
func (p *Projector) EnsureProjected(ctx context.Context, dim int) ([]model.Record, error) {
	l := p.lock(dim)
	l.Lock()
	defer l.Unlock()

	window, err := p.store.LastN(ctx, p.window)
	if err != nil {
		return nil, faults.Collaborator("projection: read window", err)
	}
	group := model.Group(window, dim)
	dimLabel := strconv.Itoa(dim)
	metrics.UpdateProjectionGroupSize(dimLabel, len(group))
	if len(group) == 0 {
		return group, nil
	}
	if complete(group) {
		metrics.RecordProjectionRefresh("cached")
		return group, nil
	}

	start := time.Now()
	points, err := Project(group, dim)
	if err != nil {
		metrics.RecordIntegrityFault()
		metrics.RecordProjectionRefresh("error")
		p.log.Error(ctx, "projection matrix rejected", logger.Int("dim", dim), logger.Error(err))
		return nil, err
	}

	coords := make(map[string]model.Point, len(group))
	for i := range group {
		pt := points[i]
		group[i].Coords = &pt
		coords[group[i].ID] = pt
	}
	if err := p.store.UpdateCoordinates(ctx, coords); err != nil {
		metrics.RecordProjectionRefresh("error")
		return nil, faults.Collaborator("projection: persist coordinates", err)
	}

	metrics.RecordProjectionRefresh("recomputed")
	metrics.RecordProjectionLatency(dimLabel, metrics.Since(start))
	p.log.Debug(ctx, "group recomputed",
		logger.Int("dim", dim),
		logger.Int("size", len(group)),
		logger.Duration("took", time.Since(start)))
	return group, nil
}

func complete(group []model.Record) bool {
	for i := range group {
		if group[i].Coords == nil {
			return false
		}
	}
	return true
}
