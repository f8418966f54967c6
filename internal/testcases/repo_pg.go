package testcases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartqa-backend/internal/shared/storage/db"
)

const (
	caseColumns = `
SELECT id, analysis_id, title, description, objective, preconditions, expected_result, test_type,
       scenario_type, priority, risk_level, status, automation_status, position, generated_by,
       prompt_hash, created_at, updated_at, deleted_at
FROM test_cases`

	stepColumns = `
SELECT id, test_case_id, step_order, action, expected_result, step_type, created_at, updated_at, deleted_at
FROM test_case_steps`

	insertCase = `
INSERT INTO test_cases (id, analysis_id, title, description, objective, preconditions, expected_result, test_type,
                        scenario_type, priority, risk_level, status, automation_status, position, batch_key,
                        generated_by, prompt_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)`

	insertStep = `
INSERT INTO test_case_steps (id, test_case_id, step_order, action, expected_result, step_type, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	updateCase = `
UPDATE test_cases
SET title = $2, description = $3, objective = $4, preconditions = $5, expected_result = $6, test_type = $7,
    scenario_type = $8, priority = $9, risk_level = $10, status = $11, automation_status = $12, updated_at = $13
WHERE id = $1`

	updateStep = `
UPDATE test_case_steps
SET step_order = $2, action = $3, expected_result = $4, step_type = $5, updated_at = $6, deleted_at = NULL
WHERE id = $1`
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB    *sql.DB
	Now   func() time.Time
	NewID func() string
}

// NewPGRepo constructs a PGRepo.
func NewPGRepo(database *sql.DB) *PGRepo {
	return &PGRepo{DB: database, Now: time.Now, NewID: uuid.NewString}
}

// CreateBatch inserts a generated batch after the analysis' last position.
func (r *PGRepo) CreateBatch(ctx context.Context, batch NewBatch) ([]TestCase, error) {
	var out []TestCase
	err := db.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := db.LockAnalysis(ctx, tx, batch.AnalysisID); err != nil {
			return fmt.Errorf("lock analysis: %w", err)
		}
		if batch.BatchKey != "" {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM test_cases WHERE analysis_id = $1 AND batch_key = $2)`,
				batch.AnalysisID, batch.BatchKey,
			).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return ErrDuplicate
			}
		}
		var position int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) FROM test_cases WHERE analysis_id = $1`, batch.AnalysisID,
		).Scan(&position); err != nil {
			return err
		}

		out = make([]TestCase, 0, len(batch.Cases))
		for _, in := range batch.Cases {
			position++
			tc := prepareCase(in, batch, position, r.newID)
			if _, err := tx.ExecContext(ctx, insertCase,
				tc.ID, tc.AnalysisID, tc.Title, tc.Description, tc.Objective, tc.Preconditions, tc.ExpectedResult,
				tc.TestType, tc.ScenarioType, tc.Priority, tc.RiskLevel, tc.Status, tc.AutomationStatus,
				tc.Position, batch.BatchKey, tc.GeneratedBy, tc.PromptHash, tc.CreatedAt,
			); err != nil {
				return err
			}
			for _, s := range tc.Steps {
				if err := execInsertStep(ctx, tx, s); err != nil {
					return err
				}
			}
			out = append(out, tc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func execInsertStep(ctx context.Context, tx *sql.Tx, s Step) error {
	_, err := tx.ExecContext(ctx, insertStep,
		s.ID, s.TestCaseID, s.Order, s.Action, s.ExpectedResult, s.StepType, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *PGRepo) List(ctx context.Context, analysisID string, includeDeleted bool) ([]TestCase, error) {
	query := caseColumns + ` WHERE analysis_id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY position, created_at`, analysisID)
	if err != nil {
		return nil, err
	}
	cases := []TestCase{}
	index := map[string]int{}
	for rows.Next() {
		tc, err := scanCase(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tc.Steps = []Step{}
		index[tc.ID] = len(cases)
		cases = append(cases, tc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return cases, nil
	}

	stepRows, err := r.DB.QueryContext(ctx, stepColumns+`
WHERE deleted_at IS NULL
  AND test_case_id IN (SELECT id FROM test_cases WHERE analysis_id = $1)
ORDER BY test_case_id, step_order`, analysisID)
	if err != nil {
		return nil, err
	}
	defer stepRows.Close()
	for stepRows.Next() {
		s, err := scanStep(stepRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[s.TestCaseID]; ok {
			cases[i].Steps = append(cases[i].Steps, s)
		}
	}
	return cases, stepRows.Err()
}

func (r *PGRepo) Get(ctx context.Context, analysisID, id string) (TestCase, error) {
	tc, err := getCase(ctx, r.DB, analysisID, id, "")
	if err != nil {
		return TestCase{}, err
	}
	steps, err := loadSteps(ctx, r.DB, id, false)
	if err != nil {
		return TestCase{}, err
	}
	tc.Steps = steps
	return tc, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getCase(ctx context.Context, q querier, analysisID, id, suffix string) (TestCase, error) {
	row := q.QueryRowContext(ctx, caseColumns+` WHERE id = $1 AND analysis_id = $2`+suffix, id, analysisID)
	tc, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TestCase{}, ErrNotFound
	}
	return tc, err
}

func loadSteps(ctx context.Context, q querier, testCaseID string, includeDeleted bool) ([]Step, error) {
	query := stepColumns + ` WHERE test_case_id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY step_order`, testCaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	steps := []Step{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// Update applies field edits and the step sync plan in one transaction. A
// plan error leaves the test case untouched.
func (r *PGRepo) Update(ctx context.Context, analysisID, id string, upd Update) (TestCase, error) {
	var out TestCase
	err := db.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		tc, err := getCase(ctx, tx, analysisID, id, ` FOR UPDATE`)
		if err != nil {
			return err
		}
		now := r.now()

		var plan *SyncPlan
		if upd.Steps != nil {
			existing, err := loadSteps(ctx, tx, id, true)
			if err != nil {
				return err
			}
			p, err := PlanSync(id, existing, *upd.Steps, now, r.newID)
			if err != nil {
				return err
			}
			plan = &p
		}

		applyUpdate(&tc, upd)
		tc.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, updateCase,
			tc.ID, tc.Title, tc.Description, tc.Objective, tc.Preconditions, tc.ExpectedResult, tc.TestType,
			tc.ScenarioType, tc.Priority, tc.RiskLevel, tc.Status, tc.AutomationStatus, tc.UpdatedAt,
		); err != nil {
			return err
		}

		if plan == nil {
			steps, err := loadSteps(ctx, tx, id, false)
			if err != nil {
				return err
			}
			tc.Steps = steps
			out = tc
			return nil
		}
		if len(plan.Deletes) > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE test_case_steps SET deleted_at = $2, updated_at = $2 WHERE id = ANY(string_to_array($1, ','))`,
				strings.Join(plan.Deletes, ","), now,
			); err != nil {
				return err
			}
		}
		for _, s := range plan.Updates {
			if _, err := tx.ExecContext(ctx, updateStep,
				s.ID, s.Order, s.Action, s.ExpectedResult, s.StepType, s.UpdatedAt); err != nil {
				return err
			}
		}
		for _, s := range plan.Inserts {
			if err := execInsertStep(ctx, tx, s); err != nil {
				return err
			}
		}
		tc.Steps = plan.Result
		out = tc
		return nil
	})
	if err != nil {
		return TestCase{}, mapWriteErr(err)
	}
	return out, nil
}

// SetAutomationStatus marks every live test case of an analysis.
func (r *PGRepo) SetAutomationStatus(ctx context.Context, analysisID, status string) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
UPDATE test_cases SET automation_status = $2, updated_at = $3
WHERE analysis_id = $1 AND deleted_at IS NULL`, analysisID, status, r.now())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *PGRepo) SoftDelete(ctx context.Context, analysisID, id string) error {
	return r.setDeleted(ctx, analysisID, id, `deleted_at = COALESCE(deleted_at, $3)`)
}

func (r *PGRepo) Restore(ctx context.Context, analysisID, id string) error {
	return r.setDeleted(ctx, analysisID, id, `deleted_at = NULL, updated_at = $3`)
}

func (r *PGRepo) setDeleted(ctx context.Context, analysisID, id, set string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE test_cases SET `+set+` WHERE id = $1 AND analysis_id = $2`, id, analysisID, r.now())
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

func (r *PGRepo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func (r *PGRepo) newID() string {
	if r.NewID == nil {
		return uuid.NewString()
	}
	return r.NewID()
}

func mapWriteErr(err error) error {
	if db.IsIntegrityViolation(err) {
		return &ValidationError{Fields: map[string]string{"steps": "constraint " + db.ConstraintName(err)}}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (TestCase, error) {
	var tc TestCase
	var deletedAt sql.NullTime
	if err := row.Scan(
		&tc.ID, &tc.AnalysisID, &tc.Title, &tc.Description, &tc.Objective, &tc.Preconditions, &tc.ExpectedResult,
		&tc.TestType, &tc.ScenarioType, &tc.Priority, &tc.RiskLevel, &tc.Status, &tc.AutomationStatus,
		&tc.Position, &tc.GeneratedBy, &tc.PromptHash, &tc.CreatedAt, &tc.UpdatedAt, &deletedAt,
	); err != nil {
		return TestCase{}, err
	}
	tc.CreatedAt = tc.CreatedAt.UTC()
	tc.UpdatedAt = tc.UpdatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		tc.DeletedAt = &t
	}
	return tc, nil
}

func scanStep(row rowScanner) (Step, error) {
	var s Step
	var deletedAt sql.NullTime
	if err := row.Scan(
		&s.ID, &s.TestCaseID, &s.Order, &s.Action, &s.ExpectedResult, &s.StepType, &s.CreatedAt, &s.UpdatedAt, &deletedAt,
	); err != nil {
		return Step{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		s.DeletedAt = &t
	}
	return s, nil
}

var _ Repo = (*PGRepo)(nil)
