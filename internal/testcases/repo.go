package testcases

import (
	"context"

	"smartqa-backend/internal/llmoutput"
)

var (
	testTypes     = llmoutput.TestTypes
	scenarioTypes = llmoutput.ScenarioTypes
	priorities    = llmoutput.Priorities
	riskLevels    = llmoutput.RiskLevels
	stepTypes     = llmoutput.StepTypes
)

// Repo persists test cases and their steps.
//
// CreateBatch is idempotent per (analysis, batch key): a second call with
// the same key returns ErrDuplicate and inserts nothing. List and Get
// return steps ordered and without tombstones.
type Repo interface {
	CreateBatch(ctx context.Context, batch NewBatch) ([]TestCase, error)
	List(ctx context.Context, analysisID string, includeDeleted bool) ([]TestCase, error)
	Get(ctx context.Context, analysisID, id string) (TestCase, error)
	Update(ctx context.Context, analysisID, id string, upd Update) (TestCase, error)
	SetAutomationStatus(ctx context.Context, analysisID, status string) (int, error)
	SoftDelete(ctx context.Context, analysisID, id string) error
	Restore(ctx context.Context, analysisID, id string) error
}

// applyUpdate copies set fields of upd onto tc. Steps are handled by the caller.
func applyUpdate(tc *TestCase, upd Update) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&tc.Title, upd.Title)
	set(&tc.Description, upd.Description)
	set(&tc.Objective, upd.Objective)
	set(&tc.Preconditions, upd.Preconditions)
	set(&tc.ExpectedResult, upd.ExpectedResult)
	set(&tc.TestType, upd.TestType)
	set(&tc.ScenarioType, upd.ScenarioType)
	set(&tc.Priority, upd.Priority)
	set(&tc.RiskLevel, upd.RiskLevel)
	set(&tc.Status, upd.Status)
	set(&tc.AutomationStatus, upd.AutomationStatus)
}
