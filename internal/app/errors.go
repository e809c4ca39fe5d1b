package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrNoImage        = errors.New("no image")
	ErrNoScores       = errors.New("model returned no scores")
	ErrInvalidFeedback = errors.New("invalid feedback")
)
