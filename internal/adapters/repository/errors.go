package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("prediction not found")
	ErrDuplicate    = errors.New("prediction already exists")
	ErrInvalidLimit = errors.New("invalid window limit")
	ErrCorrupt      = errors.New("corrupt stored record")
)
