package artifacts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores artifacts in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu      sync.Mutex
	docs    map[string][]Documentation
	scripts map[string][]Script
	keys    map[string]struct{}
	Now     func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:    make(map[string][]Documentation),
		scripts: make(map[string][]Script),
		keys:    make(map[string]struct{}),
		Now:     time.Now,
	}
}

func (r *MemoryRepo) claimKey(kind Kind, key string) bool {
	if key == "" {
		return true
	}
	k := string(kind) + "|" + key
	if _, ok := r.keys[k]; ok {
		return false
	}
	r.keys[k] = struct{}{}
	return true
}

func (r *MemoryRepo) nextDocVersion(analysisID string) int {
	highest := 0
	for _, d := range r.docs[analysisID] {
		if d.Version > highest {
			highest = d.Version
		}
	}
	return highest + 1
}

func (r *MemoryRepo) CreateDocumentation(ctx context.Context, in NewDocumentation) (Documentation, error) {
	if err := ctx.Err(); err != nil {
		return Documentation{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.claimKey(KindDocumentation, in.IdempotencyKey) {
		return Documentation{}, ErrDuplicate
	}
	format := in.ContentFormat
	if format == "" {
		format = FormatMarkdown
	}
	d := Documentation{
		ID: in.ID, AnalysisID: in.AnalysisID, Title: in.Title, Version: r.nextDocVersion(in.AnalysisID),
		Status: StatusGenerated, Content: in.Content, ContentFormat: format, GeneratedBy: GeneratedByAI,
		GeneratorModel: in.GeneratorModel, PromptHash: in.PromptHash, Meta: in.Meta,
		CreatedAt: in.CreatedAt, UpdatedAt: in.CreatedAt,
	}
	r.docs[in.AnalysisID] = append(r.docs[in.AnalysisID], d)
	return d, nil
}

func (r *MemoryRepo) ListDocumentation(ctx context.Context, analysisID string, includeDeleted bool) ([]Documentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Documentation{}
	for _, d := range r.docs[analysisID] {
		if d.DeletedAt == nil || includeDeleted {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (r *MemoryRepo) latestDocIndex(analysisID string) int {
	idx := -1
	for i, d := range r.docs[analysisID] {
		if d.DeletedAt != nil {
			continue
		}
		if idx < 0 || d.Version > r.docs[analysisID][idx].Version {
			idx = i
		}
	}
	return idx
}

func (r *MemoryRepo) LatestDocumentation(ctx context.Context, analysisID string) (Documentation, error) {
	if err := ctx.Err(); err != nil {
		return Documentation{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.latestDocIndex(analysisID)
	if idx < 0 {
		return Documentation{}, ErrNotFound
	}
	return r.docs[analysisID][idx], nil
}

func (r *MemoryRepo) UpdateDocumentation(ctx context.Context, analysisID string, edit DocumentationEdit) (Documentation, error) {
	if err := ctx.Err(); err != nil {
		return Documentation{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.latestDocIndex(analysisID)
	if idx < 0 {
		return Documentation{}, ErrNotFound
	}
	d := r.docs[analysisID][idx]
	applyEdit(&d, edit)
	d.Version = r.nextDocVersion(analysisID)
	d.GeneratedBy = GeneratedByUser
	d.UpdatedAt = r.Now().UTC()
	r.docs[analysisID][idx] = d
	return d, nil
}

func (r *MemoryRepo) CreateScript(ctx context.Context, in NewScript) (Script, error) {
	if err := ctx.Err(); err != nil {
		return Script{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.claimKey(KindScript, in.IdempotencyKey) {
		return Script{}, ErrDuplicate
	}
	highest := 0
	for _, s := range r.scripts[in.AnalysisID] {
		if s.Version > highest {
			highest = s.Version
		}
	}
	s := Script{
		ID: in.ID, AnalysisID: in.AnalysisID, Title: in.Title, Version: highest + 1,
		Language: in.Language, Framework: in.Framework, Status: StatusGenerated, Script: in.Script,
		GeneratedBy: GeneratedByAI, GeneratorModel: in.GeneratorModel, PromptHash: in.PromptHash, Meta: in.Meta,
		CreatedAt: in.CreatedAt, UpdatedAt: in.CreatedAt,
	}
	r.scripts[in.AnalysisID] = append(r.scripts[in.AnalysisID], s)
	return s, nil
}

func (r *MemoryRepo) ListScripts(ctx context.Context, analysisID string, includeDeleted bool) ([]Script, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Script{}
	for _, s := range r.scripts[analysisID] {
		if s.DeletedAt == nil || includeDeleted {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (r *MemoryRepo) LatestScript(ctx context.Context, analysisID string) (Script, error) {
	live, err := r.ListScripts(ctx, analysisID, false)
	if err != nil {
		return Script{}, err
	}
	if len(live) == 0 {
		return Script{}, ErrNotFound
	}
	return live[0], nil
}

func (r *MemoryRepo) SoftDelete(ctx context.Context, kind Kind, analysisID, id string) error {
	now := r.Now().UTC()
	return r.mutate(ctx, kind, analysisID, id, func(deletedAt **time.Time, _ *time.Time) {
		if *deletedAt == nil {
			*deletedAt = &now
		}
	})
}

func (r *MemoryRepo) Restore(ctx context.Context, kind Kind, analysisID, id string) error {
	now := r.Now().UTC()
	return r.mutate(ctx, kind, analysisID, id, func(deletedAt **time.Time, updatedAt *time.Time) {
		*deletedAt = nil
		*updatedAt = now
	})
}

func (r *MemoryRepo) mutate(ctx context.Context, kind Kind, analysisID, id string, fn func(deletedAt **time.Time, updatedAt *time.Time)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case KindDocumentation:
		for i := range r.docs[analysisID] {
			if d := &r.docs[analysisID][i]; d.ID == id {
				fn(&d.DeletedAt, &d.UpdatedAt)
				return nil
			}
		}
	case KindScript:
		for i := range r.scripts[analysisID] {
			if s := &r.scripts[analysisID][i]; s.ID == id {
				fn(&s.DeletedAt, &s.UpdatedAt)
				return nil
			}
		}
	default:
		return ErrUnknownKind
	}
	return ErrNotFound
}

var _ Repo = (*MemoryRepo)(nil)
