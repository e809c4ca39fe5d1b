package classifier

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/okian/visiontags/internal/domain/saliency"
	"github.com/okian/visiontags/internal/domain/types"
	"github.com/okian/visiontags/pkg/logger"
	"github.com/okian/visiontags/pkg/metrics"
)

// Factory builds a model for key from spec.
type Factory func(key string, spec Spec) (Model, error)

var factories = map[string]Factory{
	KindBuiltin: func(key string, spec Spec) (Model, error) { return NewBuiltin(key, spec) },
	KindRemote:  func(key string, spec Spec) (Model, error) { return NewRemote(key, spec) },
}

// RegistryOption applies a configuration option to the Registry.
type RegistryOption func(*Registry)

// WithMaxConcurrent bounds the number of inference calls in flight across
// all models.
func WithMaxConcurrent(n int64) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// Registry resolves model keys to models. Each model is built on first use,
// concurrent first uses share one build, and the result lives as long as
// the registry.
type Registry struct {
	specs map[string]Spec
	log   logger.Logger
	sem   *semaphore.Weighted

	mu     sync.RWMutex
	models map[string]Model
	group  singleflight.Group
}

// NewRegistry creates a registry over specs.
func NewRegistry(specs map[string]Spec, opts ...RegistryOption) *Registry {
	r := &Registry{
		specs:  make(map[string]Spec, len(specs)),
		models: make(map[string]Model),
		sem:    semaphore.NewWeighted(int64(runtime.NumCPU())),
	}
	for k, s := range specs {
		r.specs[k] = s
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Named("classifier")
	}
	return r
}

// Keys returns the registered model keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.specs))
	for k := range r.specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Loaded returns how many models have been built.
func (r *Registry) Loaded() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Get returns the model for key, building it on first use.
func (r *Registry) Get(ctx context.Context, key string) (Model, error) {
	r.mu.RLock()
	m, ok := r.models[key]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	spec, ok := r.specs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, key)
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.RLock()
		m, ok := r.models[key]
		r.mu.RUnlock()
		if ok {
			return m, nil
		}

		factory, ok := factories[spec.Kind]
		if !ok {
			return nil, fmt.Errorf("%w: %q for model %q", ErrUnknownKind, spec.Kind, key)
		}
		start := time.Now()
		built, err := factory(key, spec)
		if err != nil {
			return nil, err
		}
		m = &bounded{Model: built, sem: r.sem}

		r.mu.Lock()
		r.models[key] = m
		n := len(r.models)
		r.mu.Unlock()

		metrics.UpdateModelsLoaded(n)
		r.log.Info(ctx, "model loaded",
			logger.String("model", built.Name()),
			logger.Duration("took", time.Since(start)))
		return m, nil
	})
	if err != nil {
		r.log.Error(ctx, "model load failed", logger.String("model", key), logger.Error(err))
		return nil, err
	}
	return v.(Model), nil
}

// bounded gates every inference call on the registry semaphore and records
// its latency.
type bounded struct {
	Model
	sem *semaphore.Weighted
}

func (b *bounded) run(ctx context.Context, call string, fn func() error) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)

	start := time.Now()
	err := fn()
	metrics.RecordInferenceLatency(b.Name(), call, metrics.Since(start))
	if err != nil {
		metrics.RecordInferenceError(b.Name(), call)
	}
	return err
}

func (b *bounded) Classify(ctx context.Context, x saliency.Tensor) (scores []types.Score, err error) {
	err = b.run(ctx, "classify", func() error {
		scores, err = b.Model.Classify(ctx, x)
		return err
	})
	return scores, err
}

func (b *bounded) Embed(ctx context.Context, x saliency.Tensor) (emb []float64, err error) {
	err = b.run(ctx, "embed", func() error {
		emb, err = b.Model.Embed(ctx, x)
		return err
	})
	return emb, err
}

func (b *bounded) Explain(ctx context.Context, x saliency.Tensor, label string) (exp Explanation, err error) {
	err = b.run(ctx, "explain", func() error {
		exp, err = b.Model.Explain(ctx, x, label)
		return err
	})
	return exp, err
}
