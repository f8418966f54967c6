package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/artifacts"
	"smartqa-backend/internal/explore"
	"smartqa-backend/internal/llmoutput"
	"smartqa-backend/internal/prompts"
	"smartqa-backend/internal/queue"
	"smartqa-backend/internal/shared/telemetry"
	"smartqa-backend/internal/shared/util"
	"smartqa-backend/internal/testcases"
)

const (
	defaultScriptTitle        = "Playwright Script"
	defaultDocumentationTitle = "Functional documentation - Analysis %s"
)

// idempotencyKey identifies the artifact one delivery of a job may create.
func idempotencyKey(msg queue.Message, promptHash string) string {
	return util.HashParts(msg.AnalysisID, string(msg.Stage), promptHash, msg.JobID)
}

// Explore describes the target screen, stores the four descriptions, marks
// the analysis explored and enqueues test-case generation with its prompt
// already rendered.
func (o *Orchestrator) Explore(ctx context.Context, msg queue.Message) error {
	detail, err := o.Analyses.Detail(ctx, msg.AnalysisID, msg.OwnerID)
	if err != nil {
		return err
	}
	view := viewFromDetail(detail)

	retries := o.ExploreRetries
	if retries <= 0 {
		retries = defaultExploreRetries
	}
	var exp llmoutput.Exploration
	for attempt := 0; ; attempt++ {
		resp, err := o.Explorer.Explore(ctx, explore.Request{View: view, Compact: attempt > 0})
		if err != nil {
			return err
		}
		exp, err = llmoutput.ParseExploration(resp.Raw)
		if err == nil {
			break
		}
		if !llmoutput.IsValidationFailure(err) || attempt >= retries {
			return err
		}
		fields := map[string]any{
			"analysis_id": msg.AnalysisID,
			"job_id":      msg.JobID,
			"attempt":     attempt + 1,
			"error":       err.Error(),
		}
		var pe *llmoutput.ParseError
		if errors.As(err, &pe) {
			fields["raw_prefix"] = pe.RawPrefix
		}
		telemetry.Warn("pipeline.explore.invalid_output", fields)
	}

	if err := o.Writer.UpdateDescriptions(ctx, msg.AnalysisID, analyses.Descriptions{
		Tests:         exp.TestsDescription,
		Playwright:    exp.PlaywrightDescription,
		Documentation: exp.DocumentationDescription,
		UIUX:          exp.UIUXDescription,
	}); err != nil {
		return fmt.Errorf("store descriptions: %w", err)
	}
	if _, err := o.Writer.AdvanceStatus(ctx, msg.AnalysisID, analyses.StatusExplored); err != nil {
		return fmt.Errorf("advance status: %w", err)
	}

	child := queue.Message{
		JobID:          queue.ChildJobID(msg.JobID, queue.StageGenerateTestCases),
		Stage:          queue.StageGenerateTestCases,
		AnalysisID:     msg.AnalysisID,
		OwnerID:        msg.OwnerID,
		RequestID:      msg.RequestID,
		RenderedPrompt: prompts.TestCases(exp.TestsDescription),
		Description:    exp.TestsDescription,
		EnqueuedAt:     o.now().Format(time.RFC3339),
		Version:        queue.MessageVersion,
	}
	if err := o.Queue.Send(ctx, child); err != nil {
		return fmt.Errorf("enqueue test cases: %w", err)
	}
	return nil
}

// GenerateTestCases runs the prompt carried on the job and stores the
// batch. A redelivered job finds its batch already stored.
func (o *Orchestrator) GenerateTestCases(ctx context.Context, msg queue.Message) error {
	if _, err := o.Analyses.Get(ctx, msg.AnalysisID, msg.OwnerID); err != nil {
		return err
	}
	res, err := o.TestCases.Generate(ctx, msg.RenderedPrompt)
	if err != nil {
		return err
	}

	cases := make([]testcases.TestCase, 0, len(res.Payload.Items))
	for _, item := range res.Payload.Items {
		tc := testcases.TestCase{
			Title:          item.Title,
			Description:    item.Description,
			Objective:      item.Objective,
			Preconditions:  item.Preconditions,
			ExpectedResult: item.ExpectedResult,
			TestType:       item.TestType,
			ScenarioType:   item.ScenarioType,
			Priority:       item.Priority,
			RiskLevel:      item.RiskLevel,
		}
		for _, s := range item.Steps {
			tc.Steps = append(tc.Steps, testcases.Step{
				Order: s.Order, Action: s.Action, ExpectedResult: s.ExpectedResult, StepType: s.StepType,
			})
		}
		cases = append(cases, tc)
	}

	created, err := o.Cases.CreateBatch(ctx, testcases.NewBatch{
		AnalysisID: msg.AnalysisID,
		BatchKey:   idempotencyKey(msg, res.PromptHash),
		PromptHash: res.PromptHash,
		Cases:      cases,
		CreatedAt:  o.now(),
	})
	if errors.Is(err, testcases.ErrDuplicate) {
		telemetry.Info("pipeline.test_cases.duplicate", map[string]any{"analysis_id": msg.AnalysisID, "job_id": msg.JobID})
		return nil
	}
	if err != nil {
		return fmt.Errorf("store test cases: %w", err)
	}
	telemetry.Info("pipeline.test_cases.stored", map[string]any{
		"analysis_id": msg.AnalysisID,
		"job_id":      msg.JobID,
		"count":       len(created),
		"model":       res.Model,
		"repaired":    res.Repaired,
	})
	return nil
}

// GenerateDocumentation stores a new documentation version and advances
// the analysis to docs_generated.
func (o *Orchestrator) GenerateDocumentation(ctx context.Context, msg queue.Message) error {
	detail, err := o.explored(ctx, msg)
	if err != nil {
		return err
	}
	if _, err := o.Writer.AdvanceStatus(ctx, msg.AnalysisID, analyses.StatusGeneratingDocs); err != nil {
		return err
	}
	res, err := o.Documentation.Generate(ctx, viewFromDetail(detail))
	if err != nil {
		return err
	}

	title := strings.TrimSpace(res.Payload.Title)
	if title == "" {
		title = strings.TrimSpace(detail.Analysis.Name)
	}
	if title == "" {
		title = fmt.Sprintf(defaultDocumentationTitle, msg.AnalysisID)
	}
	doc, err := o.Artifacts.CreateDocumentation(ctx, artifacts.NewDocumentation{
		ID:             newID(),
		AnalysisID:     msg.AnalysisID,
		Title:          title,
		Content:        res.Payload.Content,
		ContentFormat:  artifacts.FormatMarkdown,
		GeneratorModel: res.Model,
		PromptHash:     res.PromptHash,
		IdempotencyKey: idempotencyKey(msg, res.PromptHash),
		Meta:           jobMeta(msg, res.Repaired),
		CreatedAt:      o.now(),
	})
	switch {
	case errors.Is(err, artifacts.ErrDuplicate):
		telemetry.Info("pipeline.documentation.duplicate", map[string]any{"analysis_id": msg.AnalysisID, "job_id": msg.JobID})
	case err != nil:
		return fmt.Errorf("store documentation: %w", err)
	default:
		telemetry.Info("pipeline.documentation.stored", map[string]any{
			"analysis_id": msg.AnalysisID, "job_id": msg.JobID, "version": doc.Version,
		})
	}
	_, err = o.Writer.AdvanceStatus(ctx, msg.AnalysisID, analyses.StatusDocsGenerated)
	return err
}

// GenerateScripts stores a new Playwright script version covering the live
// test cases and marks them automated.
func (o *Orchestrator) GenerateScripts(ctx context.Context, msg queue.Message) error {
	detail, err := o.explored(ctx, msg)
	if err != nil {
		return err
	}
	if _, err := o.Writer.AdvanceStatus(ctx, msg.AnalysisID, analyses.StatusGeneratingScripts); err != nil {
		return err
	}
	live, err := o.Cases.List(ctx, msg.AnalysisID, false)
	if err != nil {
		return fmt.Errorf("load test cases: %w", err)
	}
	res, err := o.Scripts.Generate(ctx, viewFromDetail(detail), promptCases(live))
	if err != nil {
		return err
	}

	title := strings.TrimSpace(res.Payload.Title)
	if title == "" {
		title = defaultScriptTitle
	}
	script, err := o.Artifacts.CreateScript(ctx, artifacts.NewScript{
		ID:             newID(),
		AnalysisID:     msg.AnalysisID,
		Title:          title,
		Language:       res.Payload.Language,
		Framework:      res.Payload.Framework,
		Script:         res.Payload.Script,
		GeneratorModel: res.Model,
		PromptHash:     res.PromptHash,
		IdempotencyKey: idempotencyKey(msg, res.PromptHash),
		Meta:           jobMeta(msg, res.Repaired),
		CreatedAt:      o.now(),
	})
	switch {
	case errors.Is(err, artifacts.ErrDuplicate):
		telemetry.Info("pipeline.scripts.duplicate", map[string]any{"analysis_id": msg.AnalysisID, "job_id": msg.JobID})
	case err != nil:
		return fmt.Errorf("store script: %w", err)
	default:
		telemetry.Info("pipeline.scripts.stored", map[string]any{
			"analysis_id": msg.AnalysisID, "job_id": msg.JobID, "version": script.Version, "test_cases": len(live),
		})
	}
	if len(live) > 0 {
		if _, err := o.Cases.SetAutomationStatus(ctx, msg.AnalysisID, testcases.AutomationGenerated); err != nil {
			return fmt.Errorf("mark automated: %w", err)
		}
	}
	_, err = o.Writer.AdvanceStatus(ctx, msg.AnalysisID, analyses.StatusScriptsGenerated)
	return err
}

func (o *Orchestrator) explored(ctx context.Context, msg queue.Message) (analyses.Detail, error) {
	detail, err := o.Analyses.Detail(ctx, msg.AnalysisID, msg.OwnerID)
	if err != nil {
		return analyses.Detail{}, err
	}
	if !detail.Analysis.Descriptions.Explored() {
		return analyses.Detail{}, analyses.ErrNotExplored
	}
	return detail, nil
}

func jobMeta(msg queue.Message, repaired bool) map[string]any {
	meta := map[string]any{"job_id": msg.JobID}
	if msg.RequestID != "" {
		meta["request_id"] = msg.RequestID
	}
	if repaired {
		meta["repaired"] = true
	}
	return meta
}
