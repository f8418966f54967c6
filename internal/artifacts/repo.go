package artifacts

import "context"

// Repo persists versioned documentation and scripts.
//
// Create* allocate version = max(version)+1 over all rows of the analysis,
// tombstoned rows included, inside the inserting transaction. A repeated
// idempotency key returns ErrDuplicate. List and Latest exclude tombstoned
// rows unless includeDeleted is set.
type Repo interface {
	CreateDocumentation(ctx context.Context, in NewDocumentation) (Documentation, error)
	ListDocumentation(ctx context.Context, analysisID string, includeDeleted bool) ([]Documentation, error)
	LatestDocumentation(ctx context.Context, analysisID string) (Documentation, error)
	UpdateDocumentation(ctx context.Context, analysisID string, edit DocumentationEdit) (Documentation, error)

	CreateScript(ctx context.Context, in NewScript) (Script, error)
	ListScripts(ctx context.Context, analysisID string, includeDeleted bool) ([]Script, error)
	LatestScript(ctx context.Context, analysisID string) (Script, error)

	SoftDelete(ctx context.Context, kind Kind, analysisID, id string) error
	Restore(ctx context.Context, kind Kind, analysisID, id string) error
}
