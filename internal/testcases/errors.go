package testcases

import "errors"

var (
	ErrNotFound = errors.New("test case not found")
	// ErrForeignStepReference means a submitted step id belongs to another test case.
	ErrForeignStepReference = errors.New("step does not belong to this test case")
	ErrDuplicate            = errors.New("test case batch already created")
)

// ValidationError lists request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "invalid test case update"
}
