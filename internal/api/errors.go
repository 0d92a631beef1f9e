package api

import (
	"errors"

	"github.com/samcharles93/blockmerge/internal/merge"
)

// Request errors are merge ConfigErrors, so one errors.Is check against
// merge.ErrInvalidConfig classifies every bad input as a 400.
func malformedRequest(field, format string, args ...any) error {
	return merge.NewConfigError(field, merge.ErrMalformedInput, format, args...)
}

func badModelPath(field, format string, args ...any) error {
	return merge.NewConfigError(field, merge.ErrModelPath, format, args...)
}

func isInvalidInput(err error) bool {
	return errors.Is(err, merge.ErrInvalidConfig)
}

func errorType(err error) string {
	if isInvalidInput(err) {
		return "invalid_request_error"
	}
	return "server_error"
}
