package analyses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smartqa-backend/internal/shared/storage/db"
)

const (
	insertAnalysis = `
INSERT INTO analyses (id, owner_id, name, target_url, objective, screen_context, status, status_rank, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	insertDocument = `
INSERT INTO analysis_documents (id, analysis_id, file_name, media_type, storage_key, size_bytes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertCredential = `
INSERT INTO access_credentials (id, analysis_id, field_name, value, created_at)
VALUES ($1, $2, $3, $4, $5)`

	selectAnalysisColumns = `
SELECT id, owner_id, name, target_url, objective, screen_context,
       tests_description, playwright_description, documentation_description, uiux_description,
       status, created_at, updated_at
FROM analyses`

	updateDescriptions = `
UPDATE analyses
SET tests_description = $2, playwright_description = $3, documentation_description = $4, uiux_description = $5, updated_at = now()
WHERE id = $1`

	advanceStatus = `
UPDATE analyses
SET status = $2, status_rank = $3, updated_at = now()
WHERE id = $1 AND status_rank < $3`
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create reserves quota and inserts the analysis with its documents and
// credentials in one transaction.
func (r *PGRepo) Create(ctx context.Context, na NewAnalysis, reserve ReserveFunc) error {
	return db.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		if reserve != nil {
			if err := reserve(ctx, tx); err != nil {
				return err
			}
		}
		a := na.Analysis
		if _, err := tx.ExecContext(ctx, insertAnalysis,
			a.ID, a.OwnerID, a.Name, a.TargetURL, a.Objective, a.ScreenContext,
			string(a.Status), a.Status.Rank(), a.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		for _, d := range na.Documents {
			if _, err := tx.ExecContext(ctx, insertDocument,
				d.ID, a.ID, d.FileName, d.MediaType, d.StorageKey, d.SizeBytes, d.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert document: %w", err)
			}
		}
		for _, c := range na.Credentials {
			if _, err := tx.ExecContext(ctx, insertCredential,
				c.ID, a.ID, c.FieldName, c.Value, c.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert credential: %w", err)
			}
		}
		return nil
	})
}

// GetForOwner returns the analysis only when ownerID owns it.
func (r *PGRepo) GetForOwner(ctx context.Context, analysisID, ownerID string) (Analysis, error) {
	row := r.DB.QueryRowContext(ctx, selectAnalysisColumns+` WHERE id = $1 AND owner_id = $2`, analysisID, ownerID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

// ListByOwner returns analyses newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx, selectAnalysisColumns+`
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PGRepo) ListDocuments(ctx context.Context, analysisID string) ([]Document, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT id, analysis_id, file_name, media_type, storage_key, size_bytes, created_at
FROM analysis_documents
WHERE analysis_id = $1
ORDER BY created_at, id`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.AnalysisID, &d.FileName, &d.MediaType, &d.StorageKey, &d.SizeBytes, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListCredentials returns credentials; values are blanked unless withValues.
func (r *PGRepo) ListCredentials(ctx context.Context, analysisID string, withValues bool) ([]Credential, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT id, analysis_id, field_name, value, created_at
FROM access_credentials
WHERE analysis_id = $1
ORDER BY created_at, id`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Credential{}
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.AnalysisID, &c.FieldName, &c.Value, &c.CreatedAt); err != nil {
			return nil, err
		}
		if !withValues {
			c.Value = ""
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateDescriptions(ctx context.Context, analysisID string, d Descriptions) error {
	res, err := r.DB.ExecContext(ctx, updateDescriptions, analysisID, d.Tests, d.Playwright, d.Documentation, d.UIUX)
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

func (r *PGRepo) AdvanceStatus(ctx context.Context, analysisID string, to Status) (bool, error) {
	if to.Rank() < 0 {
		return false, fmt.Errorf("unknown status %q", to)
	}
	res, err := r.DB.ExecContext(ctx, advanceStatus, analysisID, string(to), to.Rank())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var status string
	var createdAt, updatedAt time.Time
	if err := row.Scan(
		&a.ID, &a.OwnerID, &a.Name, &a.TargetURL, &a.Objective, &a.ScreenContext,
		&a.Descriptions.Tests, &a.Descriptions.Playwright, &a.Descriptions.Documentation, &a.Descriptions.UIUX,
		&status, &createdAt, &updatedAt,
	); err != nil {
		return Analysis{}, err
	}
	a.Status = Status(status)
	a.CreatedAt = createdAt.UTC()
	a.UpdatedAt = updatedAt.UTC()
	return a, nil
}

var _ Repo = (*PGRepo)(nil)
