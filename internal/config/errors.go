package config

import "errors"

// Sentinel kinds. Load wraps file and env failures in ErrLoadConfig and
// Validate wraps rejected settings in ErrInvalidConfig.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
