package analyses

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoCreateRunsReserveInsideTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	na := NewAnalysis{
		Analysis: Analysis{ID: "a-1", OwnerID: "o-1", Name: "Login", TargetURL: "https://x.test", Status: StatusDraft, CreatedAt: now},
		Documents: []Document{
			{ID: "d-1", FileName: "flow.md", MediaType: "text/markdown", StorageKey: "documents/k/a-1/x_flow.md", SizeBytes: 12, CreatedAt: now},
		},
		Credentials: []Credential{{ID: "c-1", FieldName: "password", Value: "secret", CreatedAt: now}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE billing_accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO analyses").
		WithArgs("a-1", "o-1", "Login", "https://x.test", "", "", "draft", 0, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO analysis_documents").
		WithArgs("d-1", "a-1", "flow.md", "text/markdown", "documents/k/a-1/x_flow.md", int64(12), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO access_credentials").
		WithArgs("c-1", "a-1", "password", "secret", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := &PGRepo{DB: db}
	reserve := func(ctx context.Context, tx *sql.Tx) error {
		if tx == nil {
			t.Fatalf("expected reserve to receive the creation tx")
		}
		_, err := tx.ExecContext(ctx, "UPDATE billing_accounts SET used_this_cycle = used_this_cycle + 1")
		return err
	}
	if err := repo.Create(context.Background(), na, reserve); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateRollsBackWhenReserveFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectRollback()

	quota := errors.New("quota exceeded")
	repo := &PGRepo{DB: db}
	err = repo.Create(context.Background(), NewAnalysis{Analysis: Analysis{ID: "a-1", Status: StatusDraft}}, func(context.Context, *sql.Tx) error {
		return quota
	})
	if !errors.Is(err, quota) {
		t.Fatalf("expected reserve error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoAdvanceStatusGuardsRank(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(`UPDATE analyses\s+SET status = \$2, status_rank = \$3, updated_at = now\(\)\s+WHERE id = \$1 AND status_rank < \$3`).
		WithArgs("a-1", "generating_docs", 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &PGRepo{DB: db}
	moved, err := repo.AdvanceStatus(context.Background(), "a-1", StatusGeneratingDocs)
	if err != nil {
		t.Fatalf("AdvanceStatus: %v", err)
	}
	if moved {
		t.Fatalf("expected no-op when stored rank is already higher")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetForOwnerNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("FROM analyses WHERE id = \\$1 AND owner_id = \\$2").
		WithArgs("a-1", "intruder").
		WillReturnError(sql.ErrNoRows)

	repo := &PGRepo{DB: db}
	if _, err := repo.GetForOwner(context.Background(), "a-1", "intruder"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
