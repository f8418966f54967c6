package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores analyses in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu          sync.RWMutex
	byID        map[string]Analysis
	documents   map[string][]Document
	credentials map[string][]Credential
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:        make(map[string]Analysis),
		documents:   make(map[string][]Document),
		credentials: make(map[string][]Credential),
	}
}

// Create reserves quota, then stores the analysis. The lock is held across
// both so a rejected reservation leaves nothing behind.
func (r *MemoryRepo) Create(ctx context.Context, na NewAnalysis, reserve ReserveFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if reserve != nil {
		if err := reserve(ctx, nil); err != nil {
			return err
		}
	}
	a := na.Analysis
	a.UpdatedAt = a.CreatedAt
	r.byID[a.ID] = a
	r.documents[a.ID] = append([]Document(nil), na.Documents...)
	r.credentials[a.ID] = append([]Credential(nil), na.Credentials...)
	return nil
}

func (r *MemoryRepo) GetForOwner(ctx context.Context, analysisID, ownerID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[analysisID]
	if !ok || a.OwnerID != ownerID {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

// ListByOwner returns analyses for an owner, newest first, with limit/offset.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	r.mu.RLock()
	owned := make([]Analysis, 0)
	for _, a := range r.byID {
		if a.OwnerID == ownerID {
			owned = append(owned, a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	if offset >= len(owned) {
		return []Analysis{}, nil
	}
	end := len(owned)
	if offset+limit < end {
		end = offset + limit
	}
	return owned[offset:end], nil
}

func (r *MemoryRepo) ListDocuments(ctx context.Context, analysisID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Document{}, r.documents[analysisID]...), nil
}

func (r *MemoryRepo) ListCredentials(ctx context.Context, analysisID string, withValues bool) ([]Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]Credential{}, r.credentials[analysisID]...)
	if !withValues {
		for i := range out {
			out[i].Value = ""
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpdateDescriptions(ctx context.Context, analysisID string, d Descriptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[analysisID]
	if !ok {
		return ErrNotFound
	}
	a.Descriptions = d
	a.UpdatedAt = time.Now().UTC()
	r.byID[analysisID] = a
	return nil
}

func (r *MemoryRepo) AdvanceStatus(ctx context.Context, analysisID string, to Status) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[analysisID]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status.Rank() >= to.Rank() {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	r.byID[analysisID] = a
	return true, nil
}

var _ Repo = (*MemoryRepo)(nil)
