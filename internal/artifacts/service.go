package artifacts

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"smartqa-backend/internal/analyses"
)

// AnalysisReader enforces ownership before artifacts are touched.
type AnalysisReader interface {
	GetForOwner(ctx context.Context, analysisID, ownerID string) (analyses.Analysis, error)
}

// Service exposes artifact reads and user edits scoped to an owner.
type Service struct {
	Repo     Repo
	Analyses AnalysisReader
}

// NewService constructs a Service.
func NewService(repo Repo, reader AnalysisReader) *Service {
	return &Service{Repo: repo, Analyses: reader}
}

func (s *Service) owned(ctx context.Context, ownerID, analysisID string) error {
	_, err := s.Analyses.GetForOwner(ctx, analysisID, ownerID)
	return err
}

func (s *Service) ListDocumentation(ctx context.Context, ownerID, analysisID string, includeDeleted bool) ([]Documentation, error) {
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return nil, err
	}
	return s.Repo.ListDocumentation(ctx, analysisID, includeDeleted)
}

func (s *Service) LatestDocumentation(ctx context.Context, ownerID, analysisID string) (Documentation, error) {
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return Documentation{}, err
	}
	return s.Repo.LatestDocumentation(ctx, analysisID)
}

// UpdateDocumentation applies a manual edit to the latest documentation.
func (s *Service) UpdateDocumentation(ctx context.Context, ownerID, analysisID string, edit DocumentationEdit) (Documentation, error) {
	if err := validateEdit(edit); err != nil {
		return Documentation{}, err
	}
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return Documentation{}, err
	}
	return s.Repo.UpdateDocumentation(ctx, analysisID, edit)
}

func (s *Service) ListScripts(ctx context.Context, ownerID, analysisID string, includeDeleted bool) ([]Script, error) {
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return nil, err
	}
	return s.Repo.ListScripts(ctx, analysisID, includeDeleted)
}

func (s *Service) LatestScript(ctx context.Context, ownerID, analysisID string) (Script, error) {
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return Script{}, err
	}
	return s.Repo.LatestScript(ctx, analysisID)
}

func (s *Service) SoftDelete(ctx context.Context, ownerID string, kind Kind, analysisID, id string) error {
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return err
	}
	return s.Repo.SoftDelete(ctx, kind, analysisID, id)
}

func (s *Service) Restore(ctx context.Context, ownerID string, kind Kind, analysisID, id string) error {
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return err
	}
	return s.Repo.Restore(ctx, kind, analysisID, id)
}

func validateEdit(edit DocumentationEdit) error {
	if edit.Title == nil && edit.Content == nil && edit.Status == nil && edit.ContentFormat == nil {
		return fmt.Errorf("%w: nothing to update", ErrInvalidEdit)
	}
	if edit.Title != nil && strings.TrimSpace(*edit.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidEdit)
	}
	if edit.Status != nil && !slices.Contains(editableStatuses, *edit.Status) {
		return fmt.Errorf("%w: status %q", ErrInvalidEdit, *edit.Status)
	}
	if edit.ContentFormat != nil && !slices.Contains([]string{FormatMarkdown, FormatText, FormatHTML}, *edit.ContentFormat) {
		return fmt.Errorf("%w: contentFormat %q", ErrInvalidEdit, *edit.ContentFormat)
	}
	return nil
}
