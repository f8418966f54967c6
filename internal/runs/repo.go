package runs

import "context"

// Repo stores stage runs keyed by job id. Starting an existing job counts a
// new attempt on the same row.
type Repo interface {
	Start(ctx context.Context, in NewRun) (Run, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID, message string) error
	ListByAnalysis(ctx context.Context, analysisID string) ([]Run, error)
}
