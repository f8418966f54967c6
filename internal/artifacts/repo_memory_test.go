package artifacts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newDoc(id, key string) NewDocumentation {
	return NewDocumentation{
		ID: id, AnalysisID: "a-1", Title: "Login", Content: "# Login",
		PromptHash: "hash", IdempotencyKey: key, CreatedAt: testNow,
	}
}

func TestMemoryVersionsAreContiguousUnderConcurrency(t *testing.T) {
	repo := NewMemoryRepo()
	var g errgroup.Group
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			_, err := repo.CreateDocumentation(context.Background(), newDoc(fmt.Sprintf("d-%d", i), fmt.Sprintf("k-%d", i)))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("CreateDocumentation: %v", err)
	}
	docs, err := repo.ListDocumentation(context.Background(), "a-1", false)
	if err != nil {
		t.Fatalf("ListDocumentation: %v", err)
	}
	versions := make([]int, 0, len(docs))
	for _, d := range docs {
		versions = append(versions, d.Version)
	}
	sort.Ints(versions)
	for i, v := range versions {
		if v != i+1 {
			t.Fatalf("expected versions 1..25 without gaps, got %v", versions)
		}
	}
}

func TestMemoryCreateRejectsRepeatedIdempotencyKey(t *testing.T) {
	repo := NewMemoryRepo()
	if _, err := repo.CreateDocumentation(context.Background(), newDoc("d-1", "job-1")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := repo.CreateDocumentation(context.Background(), newDoc("d-2", "job-1")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	second, err := repo.CreateDocumentation(context.Background(), newDoc("d-3", "job-2"))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("duplicate must not consume a version, got %d", second.Version)
	}
}

func TestMemoryTombstonedVersionsAreNeverReused(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	first, _ := repo.CreateDocumentation(ctx, newDoc("d-1", ""))
	if err := repo.SoftDelete(ctx, KindDocumentation, "a-1", first.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := repo.LatestDocumentation(ctx, "a-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no live documentation, got %v", err)
	}
	next, _ := repo.CreateDocumentation(ctx, newDoc("d-2", ""))
	if next.Version != 2 {
		t.Fatalf("expected version 2 after tombstone, got %d", next.Version)
	}

	all, _ := repo.ListDocumentation(ctx, "a-1", true)
	if len(all) != 2 || all[1].DeletedAt == nil {
		t.Fatalf("expected tombstoned row with includeDeleted, got %+v", all)
	}
	if err := repo.Restore(ctx, KindDocumentation, "a-1", first.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	live, _ := repo.ListDocumentation(ctx, "a-1", false)
	if len(live) != 2 {
		t.Fatalf("expected restored row to be live, got %d", len(live))
	}
	if err := repo.SoftDelete(ctx, KindScript, "a-1", first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong kind, got %v", err)
	}
}

func TestMemoryUpdateDocumentationBumpsVersionInPlace(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Now = func() time.Time { return testNow.Add(time.Hour) }
	ctx := context.Background()
	_, _ = repo.CreateDocumentation(ctx, newDoc("d-1", ""))
	_, _ = repo.CreateDocumentation(ctx, newDoc("d-2", ""))

	content := "# Edited"
	updated, err := repo.UpdateDocumentation(ctx, "a-1", DocumentationEdit{Content: &content})
	if err != nil {
		t.Fatalf("UpdateDocumentation: %v", err)
	}
	if updated.ID != "d-2" || updated.Version != 3 || updated.GeneratedBy != GeneratedByUser || updated.Content != content {
		t.Fatalf("unexpected edit result: %+v", updated)
	}
	docs, _ := repo.ListDocumentation(ctx, "a-1", true)
	if len(docs) != 2 {
		t.Fatalf("edit must not branch a new row, got %d rows", len(docs))
	}
}

func TestMemoryScriptsVersioning(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		s, err := repo.CreateScript(ctx, NewScript{
			ID: fmt.Sprintf("s-%d", i), AnalysisID: "a-1", Title: "Playwright Script",
			Language: "typescript", Framework: "playwright", Script: "test()", IdempotencyKey: fmt.Sprintf("k-%d", i),
		})
		if err != nil || s.Version != i {
			t.Fatalf("CreateScript #%d: version %d err %v", i, s.Version, err)
		}
	}
	latest, err := repo.LatestScript(ctx, "a-1")
	if err != nil || latest.Version != 3 {
		t.Fatalf("LatestScript: %+v %v", latest, err)
	}
	if _, err := repo.CreateScript(ctx, NewScript{ID: "s-x", AnalysisID: "a-1", IdempotencyKey: "k-2"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
