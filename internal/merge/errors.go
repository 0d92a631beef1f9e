package merge

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is the root of every error ValidateParams and
	// NewRegionTable return. Callers map it to "bad input".
	ErrInvalidConfig = errors.New("invalid merge configuration")

	ErrWeightCount     = errors.New("wrong number of block weights")
	ErrWeightRange     = errors.New("weight out of range")
	ErrDuplicateRegion = errors.New("duplicate region prefix")

	// Causes for rejected merge jobs, raised by callers that resolve model
	// paths and decode requests.
	ErrMalformedInput = errors.New("malformed input")
	ErrModelPath      = errors.New("invalid model path")
)

// ConfigError describes one rejected input. It matches both ErrInvalidConfig
// and its specific cause under errors.Is.
type ConfigError struct {
	Field string
	Cause error
	msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Field, e.Cause, e.msg)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrInvalidConfig, e.Cause}
}

// NewConfigError returns a ConfigError for field. cause should be one of the
// sentinels above so errors.Is can classify it.
func NewConfigError(field string, cause error, format string, args ...any) error {
	return configError(field, cause, format, args...)
}

func configError(field string, cause error, format string, args ...any) error {
	return &ConfigError{Field: field, Cause: cause, msg: fmt.Sprintf(format, args...)}
}
