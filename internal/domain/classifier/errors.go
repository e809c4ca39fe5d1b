package classifier

import "errors"

var (
	// ErrUnknownModel is returned when a key has no registered spec.
	ErrUnknownModel = errors.New("unknown model")
	// ErrUnknownKind is returned when a spec names an unsupported kind.
	ErrUnknownKind = errors.New("unknown model kind")
	// ErrInvalidSpec is returned when a spec cannot build a model.
	ErrInvalidSpec = errors.New("invalid model spec")
	// ErrInvalidInput is returned when an input tensor has the wrong shape.
	ErrInvalidInput = errors.New("invalid model input")
	// ErrUnknownLabel is returned when an explanation targets a label the
	// model does not produce.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrRemote is returned when the inference server answers with a failure.
	ErrRemote = errors.New("remote inference failed")
)
