// Package saliency computes gradient-weighted class activation maps.
//
// Given the activations A of a convolutional layer and the gradient G of a
// class score with respect to A, each channel is weighted by the spatial
// mean of its gradient, the weighted channels are summed, negatives are
// clamped, the map is resized bilinearly to the target resolution and
// min-max normalized into [0, 1).
package saliency

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Epsilon guards the min-max normalization against a uniform map.
const Epsilon = 1e-8

// Heatmap computes the normalized saliency map of size h x w.
// A uniform raw map normalizes to all zeros.
func Heatmap(a, g Tensor, h, w int) (Map, error) {
	if h <= 0 || w <= 0 {
		return Map{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, h, w)
	}
	if err := a.validate(); err != nil {
		return Map{}, err
	}
	if err := g.validate(); err != nil {
		return Map{}, err
	}
	if a.C != g.C || a.H != g.H || a.W != g.W {
		return Map{}, fmt.Errorf("%w: activations %dx%dx%d, gradients %dx%dx%d",
			ErrShapeMismatch, a.C, a.H, a.W, g.C, g.H, g.W)
	}

	raw := Map{H: a.H, W: a.W, Data: make([]float64, a.H*a.W)}
	plane := float64(a.H * a.W)
	for c := 0; c < a.C; c++ {
		var sum float64
		for _, v := range g.Channel(c) {
			sum += v
		}
		weight := sum / plane
		if weight == 0 {
			continue
		}
		for i, v := range a.Channel(c) {
			raw.Data[i] += weight * v
		}
	}
	for i, v := range raw.Data {
		if v < 0 {
			raw.Data[i] = 0
		}
	}

	out := Resize(raw, h, w)
	normalize(out.Data)
	return out, nil
}

// Resize scales m to h x w with bilinear interpolation on half-pixel
// centers (align_corners=false).
func Resize(m Map, h, w int) Map {
	out := Map{H: h, W: w, Data: make([]float64, h*w)}
	ys := axis(m.H, h)
	xs := axis(m.W, w)
	for y := 0; y < h; y++ {
		ty := ys[y]
		for x := 0; x < w; x++ {
			tx := xs[x]
			top := m.At(ty.lo, tx.lo)*(1-tx.frac) + m.At(ty.lo, tx.hi)*tx.frac
			bottom := m.At(ty.hi, tx.lo)*(1-tx.frac) + m.At(ty.hi, tx.hi)*tx.frac
			out.Data[y*w+x] = top*(1-ty.frac) + bottom*ty.frac
		}
	}
	return out
}

type tap struct {
	lo, hi int
	frac   float64
}

func axis(in, out int) []tap {
	taps := make([]tap, out)
	scale := float64(in) / float64(out)
	for i := range taps {
		src := (float64(i)+0.5)*scale - 0.5
		if src < 0 {
			src = 0
		}
		lo := int(math.Floor(src))
		if lo > in-1 {
			lo = in - 1
		}
		hi := lo + 1
		if hi > in-1 {
			hi = in - 1
		}
		taps[i] = tap{lo: lo, hi: hi, frac: src - float64(lo)}
	}
	return taps
}

func normalize(data []float64) {
	if len(data) == 0 {
		return
	}
	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo + Epsilon
	for i, v := range data {
		data[i] = (v - lo) / span
	}
}

// Overlay renders a normalized map as a red overlay whose alpha scales with
// opacity. Opacity is clamped into [0, 1].
func Overlay(m Map, opacity float64) *image.NRGBA {
	opacity = math.Max(0, math.Min(1, opacity))
	img := image.NewNRGBA(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			v := m.At(y, x)
			img.SetNRGBA(x, y, color.NRGBA{R: channel(v), A: channel(v * opacity)})
		}
	}
	return img
}

func channel(v float64) uint8 {
	v = math.Floor(v * 255)
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}

// Render runs Heatmap and Overlay in one step.
func Render(a, g Tensor, h, w int, opacity float64) (*image.NRGBA, error) {
	m, err := Heatmap(a, g, h, w)
	if err != nil {
		return nil, err
	}
	return Overlay(m, opacity), nil
}
