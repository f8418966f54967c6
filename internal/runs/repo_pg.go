package runs

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	upsertRun = `
INSERT INTO stage_runs (id, job_id, analysis_id, owner_id, stage, status, attempt, started_at)
VALUES ($1, $2, $3, $4, $5, 'running', 1, $6)
ON CONFLICT (job_id) DO UPDATE
SET status = 'running', attempt = stage_runs.attempt + 1, error_message = NULL, finished_at = NULL
RETURNING id, job_id, analysis_id, owner_id, stage, status, attempt, COALESCE(error_message, ''), started_at, finished_at`

	runColumns = `
SELECT id, job_id, analysis_id, owner_id, stage, status, attempt, COALESCE(error_message, ''), started_at, finished_at
FROM stage_runs`
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

// NewPGRepo constructs a PGRepo.
func NewPGRepo(database *sql.DB) *PGRepo {
	return &PGRepo{DB: database, Now: time.Now}
}

func (r *PGRepo) Start(ctx context.Context, in NewRun) (Run, error) {
	row := r.DB.QueryRowContext(ctx, upsertRun,
		uuid.NewString(), in.JobID, in.AnalysisID, in.OwnerID, in.Stage, r.now())
	return scanRun(row)
}

func (r *PGRepo) Complete(ctx context.Context, jobID string) error {
	return r.finish(ctx, jobID, StatusCompleted, nil)
}

func (r *PGRepo) Fail(ctx context.Context, jobID, message string) error {
	return r.finish(ctx, jobID, StatusFailed, truncate(message))
}

func (r *PGRepo) finish(ctx context.Context, jobID, status string, message any) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE stage_runs SET status = $2, error_message = $3, finished_at = $4
WHERE job_id = $1`, jobID, status, message, r.now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ListByAnalysis(ctx context.Context, analysisID string) ([]Run, error) {
	rows, err := r.DB.QueryContext(ctx, runColumns+`
WHERE analysis_id = $1
ORDER BY started_at DESC`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *PGRepo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var finishedAt sql.NullTime
	if err := row.Scan(
		&run.ID, &run.JobID, &run.AnalysisID, &run.OwnerID, &run.Stage, &run.Status, &run.Attempt,
		&run.ErrorMessage, &run.StartedAt, &finishedAt,
	); err != nil {
		return Run{}, err
	}
	run.StartedAt = run.StartedAt.UTC()
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		run.FinishedAt = &t
	}
	return run, nil
}

var _ Repo = (*PGRepo)(nil)
