package pipeline

import (
	"errors"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/artifacts"
	"smartqa-backend/internal/llmoutput"
	"smartqa-backend/internal/queue"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as terminal: redelivering the job cannot succeed.
func Permanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked terminal.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// classify marks the failures no redelivery can fix. Everything else is
// left to the queue's retry budget.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, analyses.ErrNotFound),
		errors.Is(err, analyses.ErrNotExplored),
		errors.Is(err, artifacts.ErrIntegrity),
		errors.Is(err, queue.ErrUnknownStage),
		errors.Is(err, queue.ErrMissingJobField),
		llmoutput.IsValidationFailure(err):
		return Permanent(err)
	default:
		return err
	}
}

// failureReason is the metrics label for a failed stage.
func failureReason(err error) string {
	var pe *llmoutput.ParseError
	var se *llmoutput.SchemaError
	switch {
	case errors.As(err, &pe):
		return "unparsable_output"
	case errors.As(err, &se):
		return "schema_violation"
	case errors.Is(err, analyses.ErrNotFound):
		return "not_found"
	case errors.Is(err, analyses.ErrNotExplored):
		return "not_explored"
	case errors.Is(err, artifacts.ErrIntegrity):
		return "integrity"
	case IsPermanent(err):
		return "invalid_job"
	default:
		return "transient"
	}
}
