package runs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps runs in memory.
type MemoryRepo struct {
	mu    sync.Mutex
	byJob map[string]*Run
	Now   func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byJob: make(map[string]*Run), Now: time.Now}
}

func (r *MemoryRepo) Start(ctx context.Context, in NewRun) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.byJob[in.JobID]; ok {
		run.Status = StatusRunning
		run.Attempt++
		run.ErrorMessage = ""
		run.FinishedAt = nil
		return *run, nil
	}
	run := &Run{
		ID: uuid.NewString(), JobID: in.JobID, AnalysisID: in.AnalysisID, OwnerID: in.OwnerID,
		Stage: in.Stage, Status: StatusRunning, Attempt: 1, StartedAt: r.Now().UTC(),
	}
	r.byJob[in.JobID] = run
	return *run, nil
}

func (r *MemoryRepo) Complete(ctx context.Context, jobID string) error {
	return r.finish(ctx, jobID, StatusCompleted, "")
}

func (r *MemoryRepo) Fail(ctx context.Context, jobID, message string) error {
	return r.finish(ctx, jobID, StatusFailed, truncate(message))
}

func (r *MemoryRepo) finish(ctx context.Context, jobID, status, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byJob[jobID]
	if !ok {
		return ErrNotFound
	}
	now := r.Now().UTC()
	run.Status = status
	run.ErrorMessage = message
	run.FinishedAt = &now
	return nil
}

func (r *MemoryRepo) ListByAnalysis(ctx context.Context, analysisID string) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Run{}
	for _, run := range r.byJob {
		if run.AnalysisID == analysisID {
			out = append(out, *run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
