package config

import "errors"

// ErrInvalidConfig is returned by Load and Validate for unusable settings.
var ErrInvalidConfig = errors.New("invalid config")
