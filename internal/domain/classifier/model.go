// Package classifier defines the image model contract and the registry that
// resolves model keys to lazily built implementations.
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/visiontags/internal/domain/saliency"
	"github.com/okian/visiontags/internal/domain/types"
)

// Model kinds.
const (
	KindBuiltin = "builtin"
	KindRemote  = "remote"
)

// InputChannels is the channel count of every model input (RGB).
const InputChannels = 3

// DefaultLabels is the label set used when a spec does not name one.
var DefaultLabels = []string{"cat", "dog", "bird", "car", "tree", "flower", "boat", "house"}

// Model classifies, embeds and explains CHW image tensors of size
// InputChannels x InputSize x InputSize.
type Model interface {
	// Name identifies the model as key@kind.
	Name() string
	// InputSize is the square side length expected by the model.
	InputSize() int
	// Classify returns every label with its probability, most likely first.
	Classify(ctx context.Context, x saliency.Tensor) ([]types.Score, error)
	// Embed returns the penultimate-layer feature vector.
	Embed(ctx context.Context, x saliency.Tensor) ([]float64, error)
	// Explain returns the target layer activations and the gradient of the
	// label's score with respect to them. Every call starts from zeroed
	// gradient state.
	Explain(ctx context.Context, x saliency.Tensor, label string) (Explanation, error)
}

// Explanation pairs a layer's activations with a class-score gradient.
type Explanation struct {
	Activations saliency.Tensor
	Gradients   saliency.Tensor
}

// Spec describes how to build a model.
type Spec struct {
	Kind         string
	URL          string
	Labels       []string
	Channels     int
	EmbeddingDim int
	InputSize    int
	Seed         int64
	Timeout      time.Duration
	RatePerSec   float64
}

func (s Spec) labels() []string {
	if len(s.Labels) > 0 {
		return s.Labels
	}
	return DefaultLabels
}

func checkInput(x saliency.Tensor, size int) error {
	if x.C != InputChannels || x.H != size || x.W != size || len(x.Data) != x.C*x.H*x.W {
		return fmt.Errorf("%w: got %dx%dx%d, want %dx%dx%d",
			ErrInvalidInput, x.C, x.H, x.W, InputChannels, size, size)
	}
	return nil
}
