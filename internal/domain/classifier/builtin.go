package classifier

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/okian/visiontags/internal/domain/saliency"
	"github.com/okian/visiontags/internal/domain/types"
)

const (
	kernelSize  = 3
	convStride  = 2
	convPadding = 1
)

// Builtin is a small seeded CPU network:
//
//	conv3x3/2 -> ReLU (explained layer) -> global average pool
//	-> dense -> ReLU (embedding) -> dense (logits) -> softmax
//
// Weights are deterministic for a given seed.
type Builtin struct {
	name   string
	labels []string
	size   int
	outHW  int

	channels int
	embDim   int

	kernel []float64 // channels x InputChannels x k x k
	bias   []float64 // channels
	w1     []float64 // embDim x channels
	b1     []float64 // embDim
	w2     []float64 // labels x embDim
	b2     []float64 // labels
}

// NewBuiltin builds the reference network described by spec.
func NewBuiltin(key string, spec Spec) (*Builtin, error) {
	if spec.Channels <= 0 || spec.EmbeddingDim <= 0 || spec.InputSize < kernelSize {
		return nil, fmt.Errorf("%w: %s needs channels, embedding_dim and input_size >= %d",
			ErrInvalidSpec, key, kernelSize)
	}
	labels := spec.labels()
	m := &Builtin{
		name:     key + "@" + KindBuiltin,
		labels:   append([]string(nil), labels...),
		size:     spec.InputSize,
		outHW:    (spec.InputSize+2*convPadding-kernelSize)/convStride + 1,
		channels: spec.Channels,
		embDim:   spec.EmbeddingDim,
	}

	rng := rand.New(rand.NewSource(spec.Seed)) //nolint:gosec // deterministic weights
	fanIn := InputChannels * kernelSize * kernelSize
	m.kernel = he(rng, m.channels*fanIn, fanIn)
	m.bias = make([]float64, m.channels)
	m.w1 = he(rng, m.embDim*m.channels, m.channels)
	m.b1 = make([]float64, m.embDim)
	for i := range m.b1 {
		m.b1[i] = 0.01
	}
	m.w2 = he(rng, len(labels)*m.embDim, m.embDim)
	m.b2 = make([]float64, len(labels))
	return m, nil
}

func he(rng *rand.Rand, n, fanIn int) []float64 {
	std := math.Sqrt(2 / float64(fanIn))
	w := make([]float64, n)
	for i := range w {
		w[i] = rng.NormFloat64() * std
	}
	return w
}

// Name implements Model.
func (m *Builtin) Name() string { return m.name }

// InputSize implements Model.
func (m *Builtin) InputSize() int { return m.size }

// Labels returns the label order of the output layer.
func (m *Builtin) Labels() []string { return append([]string(nil), m.labels...) }

type pass struct {
	act    saliency.Tensor
	pooled []float64
	hidden []float64
	logits []float64
}

func (m *Builtin) forward(ctx context.Context, x saliency.Tensor) (*pass, error) {
	if err := checkInput(x, m.size); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &pass{act: saliency.NewTensor(m.channels, m.outHW, m.outHW)}
	for f := 0; f < m.channels; f++ {
		for oy := 0; oy < m.outHW; oy++ {
			for ox := 0; ox < m.outHW; ox++ {
				sum := m.bias[f]
				for c := 0; c < InputChannels; c++ {
					for ky := 0; ky < kernelSize; ky++ {
						iy := oy*convStride + ky - convPadding
						if iy < 0 || iy >= m.size {
							continue
						}
						for kx := 0; kx < kernelSize; kx++ {
							ix := ox*convStride + kx - convPadding
							if ix < 0 || ix >= m.size {
								continue
							}
							k := ((f*InputChannels+c)*kernelSize+ky)*kernelSize + kx
							sum += x.At(c, iy, ix) * m.kernel[k]
						}
					}
				}
				p.act.Set(f, oy, ox, math.Max(0, sum))
			}
		}
	}

	plane := float64(m.outHW * m.outHW)
	p.pooled = make([]float64, m.channels)
	for f := range p.pooled {
		var s float64
		for _, v := range p.act.Channel(f) {
			s += v
		}
		p.pooled[f] = s / plane
	}

	p.hidden = dense(m.w1, m.b1, p.pooled)
	for i, v := range p.hidden {
		p.hidden[i] = math.Max(0, v)
	}
	p.logits = dense(m.w2, m.b2, p.hidden)
	return p, nil
}

func dense(w, b, in []float64) []float64 {
	out := make([]float64, len(b))
	for o := range out {
		s := b[o]
		row := w[o*len(in) : (o+1)*len(in)]
		for i, v := range in {
			s += row[i] * v
		}
		out[o] = s
	}
	return out
}

// Classify implements Model.
func (m *Builtin) Classify(ctx context.Context, x saliency.Tensor) ([]types.Score, error) {
	p, err := m.forward(ctx, x)
	if err != nil {
		return nil, err
	}
	probs := softmax(p.logits)
	scores := make([]types.Score, len(probs))
	for i, v := range probs {
		scores[i] = types.Score{Label: m.labels[i], P: v}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].P > scores[j].P })
	return scores, nil
}

func softmax(z []float64) []float64 {
	peak := math.Inf(-1)
	for _, v := range z {
		peak = math.Max(peak, v)
	}
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Embed implements Model.
func (m *Builtin) Embed(ctx context.Context, x saliency.Tensor) ([]float64, error) {
	p, err := m.forward(ctx, x)
	if err != nil {
		return nil, err
	}
	return p.hidden, nil
}

// Explain implements Model. The gradient is the derivative of the label's
// logit with respect to the conv activations, computed in closed form from a
// fresh forward pass.
func (m *Builtin) Explain(ctx context.Context, x saliency.Tensor, label string) (Explanation, error) {
	k := -1
	for i, l := range m.labels {
		if l == label {
			k = i
			break
		}
	}
	if k < 0 {
		return Explanation{}, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	p, err := m.forward(ctx, x)
	if err != nil {
		return Explanation{}, err
	}

	// d logit_k / d hidden_e, masked by the hidden ReLU.
	dHidden := make([]float64, m.embDim)
	for e := range dHidden {
		if p.hidden[e] > 0 {
			dHidden[e] = m.w2[k*m.embDim+e]
		}
	}
	// d logit_k / d pooled_c, spread evenly over the pooled plane.
	plane := float64(m.outHW * m.outHW)
	grad := saliency.NewTensor(m.channels, m.outHW, m.outHW)
	for c := 0; c < m.channels; c++ {
		var d float64
		for e, g := range dHidden {
			d += g * m.w1[e*m.channels+c]
		}
		d /= plane
		ch := grad.Channel(c)
		for i := range ch {
			ch[i] = d
		}
	}
	return Explanation{Activations: p.act, Gradients: grad}, nil
}
