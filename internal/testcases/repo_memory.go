package testcases

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo stores test cases in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu      sync.Mutex
	cases   map[string]*TestCase
	steps   map[string][]Step
	batches map[string]struct{}
	Now     func() time.Time
	NewID   func() string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		cases:   make(map[string]*TestCase),
		steps:   make(map[string][]Step),
		batches: make(map[string]struct{}),
		Now:     time.Now,
		NewID:   uuid.NewString,
	}
}

func (r *MemoryRepo) CreateBatch(ctx context.Context, batch NewBatch) ([]TestCase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := batch.AnalysisID + "|" + batch.BatchKey
	if batch.BatchKey != "" {
		if _, ok := r.batches[key]; ok {
			return nil, ErrDuplicate
		}
		r.batches[key] = struct{}{}
	}

	position := 0
	for _, tc := range r.cases {
		if tc.AnalysisID == batch.AnalysisID && tc.Position > position {
			position = tc.Position
		}
	}
	out := make([]TestCase, 0, len(batch.Cases))
	for _, in := range batch.Cases {
		position++
		tc := prepareCase(in, batch, position, r.NewID)
		stored := tc
		stored.Steps = nil
		r.cases[tc.ID] = &stored
		r.steps[tc.ID] = append([]Step(nil), tc.Steps...)
		out = append(out, tc)
	}
	return out, nil
}

// prepareCase fills ids, defaults and timestamps of a new generated case.
func prepareCase(in TestCase, batch NewBatch, position int, newID func() string) TestCase {
	tc := in
	if tc.ID == "" {
		tc.ID = newID()
	}
	tc.AnalysisID = batch.AnalysisID
	tc.Position = position
	tc.PromptHash = batch.PromptHash
	tc.Status = StatusGenerated
	tc.AutomationStatus = AutomationNotGenerated
	if tc.GeneratedBy == "" {
		tc.GeneratedBy = "ai"
	}
	tc.TestType = testTypes.Normalize(tc.TestType)
	tc.ScenarioType = scenarioTypes.Normalize(tc.ScenarioType)
	tc.Priority = priorities.Normalize(tc.Priority)
	tc.RiskLevel = riskLevels.Normalize(tc.RiskLevel)
	tc.CreatedAt = batch.CreatedAt
	tc.UpdatedAt = batch.CreatedAt
	steps := make([]Step, 0, len(in.Steps))
	for i, s := range in.Steps {
		if s.ID == "" {
			s.ID = newID()
		}
		if s.Order <= 0 {
			s.Order = i + 1
		}
		s.TestCaseID = tc.ID
		s.StepType = stepTypes.Normalize(s.StepType)
		s.CreatedAt = batch.CreatedAt
		s.UpdatedAt = batch.CreatedAt
		steps = append(steps, s)
	}
	sortSteps(steps)
	tc.Steps = steps
	return tc
}

func (r *MemoryRepo) List(ctx context.Context, analysisID string, includeDeleted bool) ([]TestCase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []TestCase{}
	for _, tc := range r.cases {
		if tc.AnalysisID != analysisID || (tc.DeletedAt != nil && !includeDeleted) {
			continue
		}
		out = append(out, r.withSteps(*tc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *MemoryRepo) withSteps(tc TestCase) TestCase {
	tc.Steps = []Step{}
	for _, s := range r.steps[tc.ID] {
		if s.DeletedAt == nil {
			tc.Steps = append(tc.Steps, s)
		}
	}
	sortSteps(tc.Steps)
	return tc
}

func (r *MemoryRepo) Get(ctx context.Context, analysisID, id string) (TestCase, error) {
	if err := ctx.Err(); err != nil {
		return TestCase{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tc, ok := r.cases[id]
	if !ok || tc.AnalysisID != analysisID {
		return TestCase{}, ErrNotFound
	}
	return r.withSteps(*tc), nil
}

func (r *MemoryRepo) Update(ctx context.Context, analysisID, id string, upd Update) (TestCase, error) {
	if err := ctx.Err(); err != nil {
		return TestCase{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.cases[id]
	if !ok || cur.AnalysisID != analysisID {
		return TestCase{}, ErrNotFound
	}
	now := r.Now().UTC()

	var plan *SyncPlan
	if upd.Steps != nil {
		p, err := PlanSync(id, r.steps[id], *upd.Steps, now, r.NewID)
		if err != nil {
			return TestCase{}, err
		}
		plan = &p
	}

	tc := *cur
	applyUpdate(&tc, upd)
	tc.UpdatedAt = now
	*cur = tc

	if plan != nil {
		steps := r.steps[id]
		index := make(map[string]int, len(steps))
		for i, s := range steps {
			index[s.ID] = i
		}
		for _, s := range plan.Updates {
			steps[index[s.ID]] = s
		}
		for _, sid := range plan.Deletes {
			deletedAt := now
			steps[index[sid]].DeletedAt = &deletedAt
			steps[index[sid]].UpdatedAt = now
		}
		r.steps[id] = append(steps, plan.Inserts...)
	}
	return r.withSteps(tc), nil
}

func (r *MemoryRepo) SetAutomationStatus(ctx context.Context, analysisID, status string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, tc := range r.cases {
		if tc.AnalysisID == analysisID && tc.DeletedAt == nil {
			tc.AutomationStatus = status
			tc.UpdatedAt = r.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) SoftDelete(ctx context.Context, analysisID, id string) error {
	return r.setDeleted(ctx, analysisID, id, true)
}

func (r *MemoryRepo) Restore(ctx context.Context, analysisID, id string) error {
	return r.setDeleted(ctx, analysisID, id, false)
}

func (r *MemoryRepo) setDeleted(ctx context.Context, analysisID, id string, deleted bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tc, ok := r.cases[id]
	if !ok || tc.AnalysisID != analysisID {
		return ErrNotFound
	}
	now := r.Now().UTC()
	switch {
	case deleted && tc.DeletedAt == nil:
		tc.DeletedAt = &now
	case !deleted:
		tc.DeletedAt = nil
		tc.UpdatedAt = now
	}
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
