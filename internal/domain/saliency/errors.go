package saliency

import "errors"

var (
	// ErrShapeMismatch is returned when activations and gradients differ in shape
	// or the tensor is empty.
	ErrShapeMismatch = errors.New("saliency: activation and gradient shapes differ")
	// ErrInvalidSize is returned for a non-positive target size.
	ErrInvalidSize = errors.New("saliency: target size must be positive")
)
