package imaging

import "errors"

var (
	// ErrDecode is returned when an upload is not a supported image.
	ErrDecode = errors.New("imaging: cannot decode image")
	// ErrTooLarge is returned when an image has more pixels than allowed.
	ErrTooLarge = errors.New("imaging: image too large")
	// ErrEncode is returned when an image cannot be encoded.
	ErrEncode = errors.New("imaging: cannot encode image")
)
