package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/visiontags/internal/domain/model"
	"github.com/okian/visiontags/pkg/metrics"
)

// MemoryStore keeps records in memory, ordered by (CreatedAt, Seq).
type MemoryStore struct {
	mu      sync.RWMutex
	ordered []*model.Record // chronological
	byID    map[string]*model.Record
	seq     int64

	retention             int
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a memory store with configuration options. The
// background metrics updater stops when ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:                  make(map[string]*model.Record),
		retention:             defaultRetention,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

func observe(backend, op string, start time.Time, err *error) {
	metrics.RecordStoreLatency(backend, op, metrics.Since(start))
	if *err != nil {
		metrics.RecordStoreError(backend, op)
	}
}

// Insert implements Store.
func (s *MemoryStore) Insert(ctx context.Context, r model.Record) (out model.Record, err error) {
	defer observe(BackendMemory, "insert", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}

	c := r.Clone()
	s.mu.Lock()
	if _, ok := s.byID[c.ID]; ok {
		s.mu.Unlock()
		return model.Record{}, fmt.Errorf("%w: %s", ErrDuplicate, c.ID)
	}
	s.seq++
	c.Seq = s.seq

	i := sort.Search(len(s.ordered), func(i int) bool { return after(s.ordered[i], &c) })
	s.ordered = append(s.ordered, nil)
	copy(s.ordered[i+1:], s.ordered[i:])
	s.ordered[i] = &c
	s.byID[c.ID] = &c

	if over := len(s.ordered) - s.retention; over > 0 {
		for _, old := range s.ordered[:over] {
			delete(s.byID, old.ID)
		}
		s.ordered = append([]*model.Record(nil), s.ordered[over:]...)
	}
	out = c.Clone()
	s.mu.Unlock()
	return out, nil
}

// after reports whether a sorts strictly after b.
func after(a, b *model.Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Seq > b.Seq
}

// UpdateCoordinates implements Store.
func (s *MemoryStore) UpdateCoordinates(ctx context.Context, coords map[string]model.Point) (err error) {
	defer observe(BackendMemory, "update_coordinates", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pt := range coords {
		if r, ok := s.byID[id]; ok {
			p := pt
			r.Coords = &p
		}
	}
	return nil
}

// UpdateGroundTruth implements Store.
func (s *MemoryStore) UpdateGroundTruth(ctx context.Context, id, label string) (err error) {
	defer observe(BackendMemory, "update_ground_truth", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.TrueLabel = label
	return nil
}

// LastN implements Store.
func (s *MemoryStore) LastN(ctx context.Context, n int) (out []model.Record, err error) {
	defer observe(BackendMemory, "last_n", time.Now(), &err)
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	from := max(0, len(s.ordered)-n)
	out = make([]model.Record, 0, len(s.ordered)-from)
	for _, r := range s.ordered[from:] {
		out = append(out, r.Clone())
	}
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (out model.Record, err error) {
	defer observe(BackendMemory, "get", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return model.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.Clone(), nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered), nil
}

// Close stops the background metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// startMetricsUpdater starts a background goroutine that publishes the record count.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				n, _ := s.Count(ctx)
				metrics.UpdateTotalRecords(n)
			}
		}
	}()
}
