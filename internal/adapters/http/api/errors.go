package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrServe       = errors.New("http serve failed")
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limited")
	ErrTooLarge    = errors.New("upload too large")
)

// opError carries the handler operation, an optional kind and an optional
// cause. errors.Is matches both the kind and anything in the cause chain.
type opError struct {
	op   string
	kind error
	err  error
}

func (e *opError) Error() string {
	switch {
	case e.kind != nil && e.err != nil:
		return e.op + ": " + e.kind.Error() + ": " + e.err.Error()
	case e.kind != nil:
		return e.op + ": " + e.kind.Error()
	default:
		return e.op + ": " + e.err.Error()
	}
}

func (e *opError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.err != nil {
		errs = append(errs, e.err)
	}
	return errs
}

// Wrap prefixes err with op. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{op: op, err: err}
}

// NewKind returns an error of the given kind observed by op.
func NewKind(op string, kind error) error {
	return &opError{op: op, kind: kind}
}

// WrapKind tags err with kind and op.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return NewKind(op, kind)
	}
	return &opError{op: op, kind: kind, err: err}
}
