package testcases

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/llmoutput"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

// AnalysisReader enforces ownership before test cases are touched.
type AnalysisReader interface {
	GetForOwner(ctx context.Context, analysisID, ownerID string) (analyses.Analysis, error)
}

// Service exposes test case reads and user edits scoped to an owner.
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

func (s *Service) List(ctx context.Context, ownerID, analysisID string, includeDeleted bool) ([]TestCase, error) {
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return nil, err
	}
	return s.Repo.List(ctx, analysisID, includeDeleted)
}

func (s *Service) Get(ctx context.Context, ownerID, analysisID, id string) (TestCase, error) {
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return TestCase{}, err
	}
	return s.Repo.Get(ctx, analysisID, id)
}

// Update validates and applies a user edit. Steps, when present, are synced
// declaratively: the submitted list becomes the full live step list.
func (s *Service) Update(ctx context.Context, ownerID, analysisID, id string, upd Update) (TestCase, error) {
	if err := validateUpdate(upd); err != nil {
		return TestCase{}, err
	}
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return TestCase{}, err
	}
	return s.Repo.Update(ctx, analysisID, id, upd)
}

func (s *Service) SoftDelete(ctx context.Context, ownerID, analysisID, id string) error {
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return err
	}
	return s.Repo.SoftDelete(ctx, analysisID, id)
}

func (s *Service) Restore(ctx context.Context, ownerID, analysisID, id string) error {
	if err := s.owned(ctx, ownerID, analysisID); err != nil {
		return err
	}
	return s.Repo.Restore(ctx, analysisID, id)
}

func validateUpdate(upd Update) error {
	fields := map[string]string{}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		fields["title"] = "required"
	}
	checkVocab(fields, "testType", upd.TestType, testTypes)
	checkVocab(fields, "scenarioType", upd.ScenarioType, scenarioTypes)
	checkVocab(fields, "priority", upd.Priority, priorities)
	checkVocab(fields, "riskLevel", upd.RiskLevel, riskLevels)
	if upd.Status != nil && !slices.Contains(statuses, *upd.Status) {
		fields["status"] = "oneof=" + strings.Join(statuses, " ")
	}
	if upd.AutomationStatus != nil && !slices.Contains(automationStatuses, *upd.AutomationStatus) {
		fields["automationStatus"] = "oneof=" + strings.Join(automationStatuses, " ")
	}
	if upd.Steps != nil {
		for i, step := range *upd.Steps {
			path := fmt.Sprintf("steps[%d]", i)
			if err := validate.Struct(step); err != nil {
				var verrs validator.ValidationErrors
				if errors.As(err, &verrs) {
					for _, fe := range verrs {
						fields[path+"."+fe.Field()] = fe.Tag()
					}
				}
			} else if strings.TrimSpace(step.Action) == "" {
				fields[path+".action"] = "required"
			}
			if step.StepType != "" && !stepTypes.Contains(step.StepType) {
				fields[path+".stepType"] = "oneof=" + strings.Join(stepTypes.Values, " ")
			}
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkVocab(fields map[string]string, name string, value *string, vocab llmoutput.Vocabulary) {
	if value == nil {
		return
	}
	if !vocab.Contains(*value) {
		fields[name] = "oneof=" + strings.Join(vocab.Values, " ")
	}
}
