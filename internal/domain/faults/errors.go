// Package faults defines the error kinds shared across layers. Transports map
// each kind to a response class.
package faults

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Match with errors.Is.
var (
	ErrIntegrity    = errors.New("data integrity fault")
	ErrCollaborator = errors.New("collaborator failure")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Kinded reports whether err already carries one of the kinds above.
func Kinded(err error) bool {
	for _, kind := range []error{ErrIntegrity, ErrCollaborator, ErrNotFound, ErrInvalidInput} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Invalid marks err as a caller error.
func Invalid(err error) error {
	if err == nil || Kinded(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// NotFound marks err as a missing resource.
func NotFound(err error) error {
	if err == nil || Kinded(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNotFound, err)
}

// IntegrityError reports a record whose embedding length does not match the
// dimension group it was placed in.
type IntegrityError struct {
	Dim      int
	RecordID string
	Got      int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: record %q has embedding length %d in dimension group %d",
		ErrIntegrity, e.RecordID, e.Got, e.Dim)
}

// Is makes errors.Is(err, ErrIntegrity) hold for any IntegrityError.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// CollaboratorError wraps a failure of an external collaborator (store,
// model, codec) with the operation that observed it.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrCollaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCollaborator) hold for any CollaboratorError.
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaborator
}

// Collaborator wraps err as a collaborator failure observed by op. Errors that
// already carry a fault kind are returned as-is so kinds are never stacked.
func Collaborator(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kinded(err) {
		return err
	}
	return &CollaboratorError{Op: op, Err: err}
}
