package testcases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func newBatch(key string, titles ...string) NewBatch {
	b := NewBatch{AnalysisID: "a-1", BatchKey: key, PromptHash: "hash", CreatedAt: testNow}
	for _, title := range titles {
		b.Cases = append(b.Cases, TestCase{
			Title:        title,
			ScenarioType: "Negative",
			Priority:     "urgent",
			Steps: []Step{
				{Order: 2, Action: "Submit", ExpectedResult: "Error shown"},
				{Order: 1, Action: "Open form", ExpectedResult: "Form shown"},
			},
		})
	}
	return b
}

func newTestRepo() *MemoryRepo {
	repo := NewMemoryRepo()
	repo.Now = func() time.Time { return testNow }
	repo.NewID = sequentialIDs("id")
	return repo
}

func TestMemoryCreateBatchIsIdempotentPerKey(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()

	created, err := repo.CreateBatch(ctx, newBatch("job-1", "Empty password", "Wrong password"))
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Equal(t, 1, created[0].Position)
	require.Equal(t, "negative", created[0].ScenarioType)
	require.Equal(t, "medium", created[0].Priority)
	require.Equal(t, StatusGenerated, created[0].Status)
	require.Equal(t, AutomationNotGenerated, created[0].AutomationStatus)
	require.Equal(t, "Open form", created[0].Steps[0].Action)

	_, err = repo.CreateBatch(ctx, newBatch("job-1", "Empty password", "Wrong password"))
	require.ErrorIs(t, err, ErrDuplicate)

	more, err := repo.CreateBatch(ctx, newBatch("job-2", "Locked account"))
	require.NoError(t, err)
	require.Equal(t, 3, more[0].Position)

	all, err := repo.List(ctx, "a-1", false)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestMemoryUpdateSyncsSteps(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()
	created, err := repo.CreateBatch(ctx, newBatch("job-1", "Empty password"))
	require.NoError(t, err)
	tc := created[0]

	title := "Empty password is rejected"
	steps := []StepInput{
		{ID: tc.Steps[0].ID, Order: 1, Action: "Open login form", ExpectedResult: "Form shown"},
		{Action: "Press enter", ExpectedResult: "Validation message"},
	}
	updated, err := repo.Update(ctx, "a-1", tc.ID, Update{Title: &title, Steps: &steps})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.Len(t, updated.Steps, 2)
	require.Equal(t, "Open login form", updated.Steps[0].Action)
	require.Equal(t, 2, updated.Steps[1].Order)

	again, err := repo.Update(ctx, "a-1", tc.ID, Update{Steps: &steps})
	require.NoError(t, err)
	require.Equal(t, updated.Steps[1].ID, again.Steps[1].ID)
}

func TestMemoryUpdateForeignStepLeavesCaseUntouched(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()
	created, err := repo.CreateBatch(ctx, newBatch("job-1", "Empty password", "Wrong password"))
	require.NoError(t, err)

	title := "changed"
	steps := []StepInput{{ID: created[1].Steps[0].ID, Order: 1, Action: "Borrowed"}}
	_, err = repo.Update(ctx, "a-1", created[0].ID, Update{Title: &title, Steps: &steps})
	require.ErrorIs(t, err, ErrForeignStepReference)

	got, err := repo.Get(ctx, "a-1", created[0].ID)
	require.NoError(t, err)
	require.Equal(t, "Empty password", got.Title)
	require.Len(t, got.Steps, 2)
}

func TestMemorySoftDeleteRestoreAndAutomation(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()
	created, err := repo.CreateBatch(ctx, newBatch("job-1", "Empty password", "Wrong password"))
	require.NoError(t, err)

	require.NoError(t, repo.SoftDelete(ctx, "a-1", created[0].ID))
	live, err := repo.List(ctx, "a-1", false)
	require.NoError(t, err)
	require.Len(t, live, 1)

	n, err := repo.SetAutomationStatus(ctx, "a-1", AutomationGenerated)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, repo.Restore(ctx, "a-1", created[0].ID))
	all, err := repo.List(ctx, "a-1", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, AutomationNotGenerated, all[0].AutomationStatus)
	require.Equal(t, AutomationGenerated, all[1].AutomationStatus)

	require.ErrorIs(t, repo.SoftDelete(ctx, "a-2", created[0].ID), ErrNotFound)
}
