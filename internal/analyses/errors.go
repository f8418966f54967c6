package analyses

import "errors"

var (
	ErrNotFound    = errors.New("analysis not found")
	ErrNotExplored = errors.New("analysis has not been explored yet")
	ErrInvalidMime = errors.New("unsupported document type")
)

// ValidationError lists request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "invalid analysis request"
}
