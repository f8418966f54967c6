package runs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/shared/server/middleware"
)

var testNow = time.Date(2026, 4, 3, 8, 0, 0, 0, time.UTC)

func TestMemoryRedeliveryCountsAttempts(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Now = func() time.Time { return testNow }
	ctx := context.Background()
	in := NewRun{JobID: "job-1", AnalysisID: "a-1", OwnerID: "owner-1", Stage: "explore"}

	if _, err := repo.Start(ctx, in); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := repo.Fail(ctx, "job-1", strings.Repeat("x", 5000)); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	run, err := repo.Start(ctx, in)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if run.Attempt != 2 || run.Status != StatusRunning || run.ErrorMessage != "" {
		t.Fatalf("unexpected run after redelivery: %+v", run)
	}
	if err := repo.Fail(ctx, "job-1", strings.Repeat("x", 5000)); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	items, err := repo.ListByAnalysis(ctx, "a-1")
	if err != nil {
		t.Fatalf("ListByAnalysis: %v", err)
	}
	if len(items) != 1 || items[0].Status != StatusFailed || len(items[0].ErrorMessage) != maxErrorRunes {
		t.Fatalf("unexpected runs: %+v", items)
	}
	if err := repo.Complete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStartUpsertsByJobID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("ON CONFLICT \\(job_id\\) DO UPDATE").
		WithArgs(sqlmock.AnyArg(), "job-1", "a-1", "owner-1", "explore", testNow).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "job_id", "analysis_id", "owner_id", "stage", "status", "attempt", "error_message", "started_at", "finished_at",
		}).AddRow("r-1", "job-1", "a-1", "owner-1", "explore", StatusRunning, 3, "", testNow, nil))

	repo := &PGRepo{DB: db, Now: func() time.Time { return testNow }}
	run, err := repo.Start(context.Background(), NewRun{JobID: "job-1", AnalysisID: "a-1", OwnerID: "owner-1", Stage: "explore"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.Attempt != 3 || run.FinishedAt != nil {
		t.Fatalf("unexpected run: %+v", run)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGFailUnknownJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("UPDATE stage_runs SET status").
		WithArgs("job-x", StatusFailed, "boom", testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &PGRepo{DB: db, Now: func() time.Time { return testNow }}
	if err := repo.Fail(context.Background(), "job-x", "boom"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestHandlerListsOwnedRuns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ar := analyses.NewMemoryRepo()
	if err := ar.Create(context.Background(), analyses.NewAnalysis{Analysis: analyses.Analysis{
		ID: "a-1", OwnerID: "owner-1", Name: "Login", Status: analyses.StatusDraft, CreatedAt: testNow,
	}}, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	repo := NewMemoryRepo()
	if _, err := repo.Start(context.Background(), NewRun{JobID: "job-1", AnalysisID: "a-1", OwnerID: "owner-1", Stage: "explore"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	router := gin.New()
	router.Use(middleware.Auth(nil, true))
	NewHandler(repo, ar).RegisterRoutes(router.Group("/api/v1"))

	for _, tc := range []struct {
		user string
		want int
	}{
		{"owner-1", http.StatusOK},
		{"intruder", http.StatusNotFound},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/a-1/runs", nil)
		req.Header.Set("X-User-Id", tc.user)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.user, tc.want, resp.Code)
		}
		if tc.want == http.StatusOK && !strings.Contains(resp.Body.String(), `"jobId":"job-1"`) {
			t.Fatalf("expected run in body: %s", resp.Body.String())
		}
	}
}
