package artifacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartqa-backend/internal/shared/storage/db"
)

const (
	documentationColumns = `
SELECT id, analysis_id, title, version, status, content, content_format, generated_by,
       generator_model, prompt_hash, meta, created_at, updated_at, deleted_at
FROM documentations`

	scriptColumns = `
SELECT id, analysis_id, title, version, language, framework, status, script, generated_by,
       generator_model, prompt_hash, meta, created_at, updated_at, deleted_at
FROM playwright_scripts`

	insertDocumentation = `
INSERT INTO documentations (id, analysis_id, title, version, status, content, content_format, generated_by,
                            generator_model, prompt_hash, idempotency_key, meta, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`

	insertScript = `
INSERT INTO playwright_scripts (id, analysis_id, title, version, language, framework, status, script, generated_by,
                                generator_model, prompt_hash, idempotency_key, meta, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`

	updateDocumentation = `
UPDATE documentations
SET title = $2, content = $3, status = $4, content_format = $5, version = $6, generated_by = $7, updated_at = $8
WHERE id = $1`
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

func tableFor(kind Kind) (string, error) {
	switch kind {
	case KindDocumentation:
		return "documentations", nil
	case KindScript:
		return "playwright_scripts", nil
	default:
		return "", ErrUnknownKind
	}
}

// allocateVersion locks the analysis, rejects a repeated idempotency key and
// returns the next version number.
func allocateVersion(ctx context.Context, tx *sql.Tx, table, analysisID, idempotencyKey string) (int, error) {
	if err := db.LockAnalysis(ctx, tx, analysisID); err != nil {
		return 0, fmt.Errorf("lock analysis: %w", err)
	}
	if idempotencyKey != "" {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE idempotency_key = $1)`, idempotencyKey,
		).Scan(&exists); err != nil {
			return 0, err
		}
		if exists {
			return 0, ErrDuplicate
		}
	}
	var maxVersion int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM `+table+` WHERE analysis_id = $1`, analysisID,
	).Scan(&maxVersion); err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

func (r *PGRepo) CreateDocumentation(ctx context.Context, in NewDocumentation) (Documentation, error) {
	meta, err := encodeMeta(in.Meta)
	if err != nil {
		return Documentation{}, err
	}
	format := in.ContentFormat
	if format == "" {
		format = FormatMarkdown
	}
	d := Documentation{
		ID: in.ID, AnalysisID: in.AnalysisID, Title: in.Title, Status: StatusGenerated,
		Content: in.Content, ContentFormat: format, GeneratedBy: GeneratedByAI,
		GeneratorModel: in.GeneratorModel, PromptHash: in.PromptHash, Meta: in.Meta,
		CreatedAt: in.CreatedAt, UpdatedAt: in.CreatedAt,
	}
	err = db.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		version, err := allocateVersion(ctx, tx, "documentations", in.AnalysisID, in.IdempotencyKey)
		if err != nil {
			return err
		}
		d.Version = version
		_, err = tx.ExecContext(ctx, insertDocumentation,
			d.ID, d.AnalysisID, d.Title, d.Version, d.Status, d.Content, d.ContentFormat, d.GeneratedBy,
			d.GeneratorModel, d.PromptHash, nullable(in.IdempotencyKey), meta, d.CreatedAt,
		)
		return err
	})
	if err != nil {
		return Documentation{}, mapWriteErr(err)
	}
	return d, nil
}

func (r *PGRepo) ListDocumentation(ctx context.Context, analysisID string, includeDeleted bool) ([]Documentation, error) {
	query := documentationColumns + ` WHERE analysis_id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY version DESC`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Documentation{}
	for rows.Next() {
		d, err := scanDocumentation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PGRepo) LatestDocumentation(ctx context.Context, analysisID string) (Documentation, error) {
	row := r.DB.QueryRowContext(ctx, documentationColumns+`
WHERE analysis_id = $1 AND deleted_at IS NULL
ORDER BY version DESC
LIMIT 1`, analysisID)
	d, err := scanDocumentation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Documentation{}, ErrNotFound
	}
	return d, err
}

// UpdateDocumentation edits the latest live documentation in place and moves
// it to the next version number, attributing it to the user.
func (r *PGRepo) UpdateDocumentation(ctx context.Context, analysisID string, edit DocumentationEdit) (Documentation, error) {
	var out Documentation
	err := db.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		version, err := allocateVersion(ctx, tx, "documentations", analysisID, "")
		if err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, documentationColumns+`
WHERE analysis_id = $1 AND deleted_at IS NULL
ORDER BY version DESC
LIMIT 1
FOR UPDATE`, analysisID)
		d, err := scanDocumentation(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		applyEdit(&d, edit)
		d.Version = version
		d.GeneratedBy = GeneratedByUser
		d.UpdatedAt = r.now()
		if _, err := tx.ExecContext(ctx, updateDocumentation,
			d.ID, d.Title, d.Content, d.Status, d.ContentFormat, d.Version, d.GeneratedBy, d.UpdatedAt,
		); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return Documentation{}, mapWriteErr(err)
	}
	return out, nil
}

func (r *PGRepo) CreateScript(ctx context.Context, in NewScript) (Script, error) {
	meta, err := encodeMeta(in.Meta)
	if err != nil {
		return Script{}, err
	}
	s := Script{
		ID: in.ID, AnalysisID: in.AnalysisID, Title: in.Title, Language: in.Language, Framework: in.Framework,
		Status: StatusGenerated, Script: in.Script, GeneratedBy: GeneratedByAI,
		GeneratorModel: in.GeneratorModel, PromptHash: in.PromptHash, Meta: in.Meta,
		CreatedAt: in.CreatedAt, UpdatedAt: in.CreatedAt,
	}
	err = db.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		version, err := allocateVersion(ctx, tx, "playwright_scripts", in.AnalysisID, in.IdempotencyKey)
		if err != nil {
			return err
		}
		s.Version = version
		_, err = tx.ExecContext(ctx, insertScript,
			s.ID, s.AnalysisID, s.Title, s.Version, s.Language, s.Framework, s.Status, s.Script, s.GeneratedBy,
			s.GeneratorModel, s.PromptHash, nullable(in.IdempotencyKey), meta, s.CreatedAt,
		)
		return err
	})
	if err != nil {
		return Script{}, mapWriteErr(err)
	}
	return s, nil
}

func (r *PGRepo) ListScripts(ctx context.Context, analysisID string, includeDeleted bool) ([]Script, error) {
	query := scriptColumns + ` WHERE analysis_id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY version DESC`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Script{}
	for rows.Next() {
		s, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PGRepo) LatestScript(ctx context.Context, analysisID string) (Script, error) {
	row := r.DB.QueryRowContext(ctx, scriptColumns+`
WHERE analysis_id = $1 AND deleted_at IS NULL
ORDER BY version DESC
LIMIT 1`, analysisID)
	s, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Script{}, ErrNotFound
	}
	return s, err
}

// SoftDelete tombstones an artifact. Deleting a tombstoned row is a no-op.
func (r *PGRepo) SoftDelete(ctx context.Context, kind Kind, analysisID, id string) error {
	return r.setDeleted(ctx, kind, analysisID, id, `deleted_at = COALESCE(deleted_at, $3)`)
}

// Restore clears the tombstone.
func (r *PGRepo) Restore(ctx context.Context, kind Kind, analysisID, id string) error {
	return r.setDeleted(ctx, kind, analysisID, id, `deleted_at = NULL, updated_at = $3`)
}

func (r *PGRepo) setDeleted(ctx context.Context, kind Kind, analysisID, id, set string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE `+table+` SET `+set+` WHERE id = $1 AND analysis_id = $2`, id, analysisID, r.now())
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

func mapWriteErr(err error) error {
	switch {
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrNotFound):
		return err
	case db.IsUniqueViolation(err) && strings.Contains(db.ConstraintName(err), "idempotency"):
		return ErrDuplicate
	case db.IsIntegrityViolation(err):
		return fmt.Errorf("%w: %s: %w", ErrIntegrity, db.ConstraintName(err), err)
	default:
		return err
	}
}

func applyEdit(d *Documentation, edit DocumentationEdit) {
	if edit.Title != nil {
		d.Title = strings.TrimSpace(*edit.Title)
	}
	if edit.Content != nil {
		d.Content = *edit.Content
	}
	if edit.Status != nil {
		d.Status = *edit.Status
	}
	if edit.ContentFormat != nil {
		d.ContentFormat = *edit.ContentFormat
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func encodeMeta(meta map[string]any) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	return b, nil
}

func decodeMeta(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil
	}
	return meta
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocumentation(row rowScanner) (Documentation, error) {
	var d Documentation
	var meta []byte
	var deletedAt sql.NullTime
	if err := row.Scan(
		&d.ID, &d.AnalysisID, &d.Title, &d.Version, &d.Status, &d.Content, &d.ContentFormat, &d.GeneratedBy,
		&d.GeneratorModel, &d.PromptHash, &meta, &d.CreatedAt, &d.UpdatedAt, &deletedAt,
	); err != nil {
		return Documentation{}, err
	}
	d.Meta = decodeMeta(meta)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		d.DeletedAt = &t
	}
	return d, nil
}

func scanScript(row rowScanner) (Script, error) {
	var s Script
	var meta []byte
	var deletedAt sql.NullTime
	if err := row.Scan(
		&s.ID, &s.AnalysisID, &s.Title, &s.Version, &s.Language, &s.Framework, &s.Status, &s.Script, &s.GeneratedBy,
		&s.GeneratorModel, &s.PromptHash, &meta, &s.CreatedAt, &s.UpdatedAt, &deletedAt,
	); err != nil {
		return Script{}, err
	}
	s.Meta = decodeMeta(meta)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		s.DeletedAt = &t
	}
	return s, nil
}

var _ Repo = (*PGRepo)(nil)
