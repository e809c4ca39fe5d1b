package saliency

import "fmt"

// Tensor is a dense channel-major (C, H, W) float64 tensor.
type Tensor struct {
	C, H, W int
	Data    []float64
}

// NewTensor allocates a zeroed tensor.
func NewTensor(c, h, w int) Tensor {
	return Tensor{C: c, H: h, W: w, Data: make([]float64, c*h*w)}
}

// At returns the value at (c, y, x).
func (t Tensor) At(c, y, x int) float64 { return t.Data[(c*t.H+y)*t.W+x] }

// Set stores v at (c, y, x).
func (t Tensor) Set(c, y, x int, v float64) { t.Data[(c*t.H+y)*t.W+x] = v }

// Channel returns the H*W plane of channel c. The slice aliases Data.
func (t Tensor) Channel(c int) []float64 {
	n := t.H * t.W
	return t.Data[c*n : (c+1)*n]
}

func (t Tensor) validate() error {
	if t.C <= 0 || t.H <= 0 || t.W <= 0 {
		return fmt.Errorf("%w: empty tensor %dx%dx%d", ErrShapeMismatch, t.C, t.H, t.W)
	}
	if len(t.Data) != t.C*t.H*t.W {
		return fmt.Errorf("%w: %d values for shape %dx%dx%d", ErrShapeMismatch, len(t.Data), t.C, t.H, t.W)
	}
	return nil
}

// Map is a row-major H*W grid of saliency values.
type Map struct {
	H, W int
	Data []float64
}

// At returns the value at (y, x).
func (m Map) At(y, x int) float64 { return m.Data[y*m.W+x] }
