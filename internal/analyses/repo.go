package analyses

import (
	"context"
	"database/sql"
)

// ReserveFunc consumes quota inside the creation transaction. tx is nil for
// repositories without SQL transactions.
type ReserveFunc func(ctx context.Context, tx *sql.Tx) error

// Repo defines persistence operations for analyses.
type Repo interface {
	Create(ctx context.Context, na NewAnalysis, reserve ReserveFunc) error
	GetForOwner(ctx context.Context, analysisID, ownerID string) (Analysis, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Analysis, error)
	ListDocuments(ctx context.Context, analysisID string) ([]Document, error)
	ListCredentials(ctx context.Context, analysisID string, withValues bool) ([]Credential, error)
	UpdateDescriptions(ctx context.Context, analysisID string, d Descriptions) error
	// AdvanceStatus moves status forward. It reports false when the stored
	// status already ranks at or above the target.
	AdvanceStatus(ctx context.Context, analysisID string, to Status) (bool, error)
}
