package artifacts

import "errors"

var (
	ErrNotFound = errors.New("artifact not found")
	// ErrDuplicate means an artifact with the same idempotency key exists.
	ErrDuplicate   = errors.New("artifact already created for this job")
	ErrIntegrity   = errors.New("artifact integrity violation")
	ErrInvalidEdit = errors.New("invalid artifact edit")
	ErrUnknownKind = errors.New("unknown artifact kind")
)
