// Package pipeline runs the stage jobs that take an analysis from
// exploration to generated artifacts.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/artifacts"
	"smartqa-backend/internal/explore"
	"smartqa-backend/internal/generation"
	"smartqa-backend/internal/llmoutput"
	"smartqa-backend/internal/prompts"
	"smartqa-backend/internal/queue"
	"smartqa-backend/internal/runs"
	"smartqa-backend/internal/shared/metrics"
	"smartqa-backend/internal/shared/telemetry"
	"smartqa-backend/internal/testcases"
)

const defaultExploreRetries = 2

// AnalysisReader loads analyses scoped to their owner.
type AnalysisReader interface {
	Get(ctx context.Context, analysisID, ownerID string) (analyses.Analysis, error)
	Detail(ctx context.Context, analysisID, ownerID string) (analyses.Detail, error)
}

// AnalysisWriter applies stage results to the analysis row.
type AnalysisWriter interface {
	UpdateDescriptions(ctx context.Context, analysisID string, d analyses.Descriptions) error
	AdvanceStatus(ctx context.Context, analysisID string, to analyses.Status) (bool, error)
}

type Explorer interface {
	Explore(ctx context.Context, req explore.Request) (explore.Response, error)
}

type TestCaseGenerator interface {
	Generate(ctx context.Context, renderedPrompt string) (generation.Result[llmoutput.TestCaseBatch], error)
}

type DocumentationGenerator interface {
	Generate(ctx context.Context, view prompts.View) (generation.Result[llmoutput.Documentation], error)
}

type ScriptGenerator interface {
	Generate(ctx context.Context, view prompts.View, cases []prompts.TestCase) (generation.Result[llmoutput.Script], error)
}

// Orchestrator executes one stage per queue message. Each stage re-reads
// the analysis for its owner, persists its result in one transaction and
// only then enqueues the next stage.
type Orchestrator struct {
	Analyses       AnalysisReader
	Writer         AnalysisWriter
	Explorer       Explorer
	TestCases      TestCaseGenerator
	Documentation  DocumentationGenerator
	Scripts        ScriptGenerator
	Artifacts      artifacts.Repo
	Cases          testcases.Repo
	Runs           runs.Repo
	Queue          queue.Client
	ExploreRetries int
	Now            func() time.Time
}

// Handle runs the stage named by msg. Returned errors marked with
// Permanent must not be retried.
func (o *Orchestrator) Handle(ctx context.Context, msg queue.Message) error {
	if err := msg.Validate(); err != nil {
		return Permanent(err)
	}
	stage := string(msg.Stage)
	run, err := o.Runs.Start(ctx, runs.NewRun{
		JobID: msg.JobID, AnalysisID: msg.AnalysisID, OwnerID: msg.OwnerID, Stage: stage,
	})
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	fields := map[string]any{
		"analysis_id": msg.AnalysisID,
		"owner_id":    msg.OwnerID,
		"stage":       stage,
		"job_id":      msg.JobID,
		"request_id":  msg.RequestID,
		"attempt":     run.Attempt,
	}
	metrics.IncStageStarted(stage)
	telemetry.Info("pipeline.stage.started", fields)
	start := time.Now()

	err = classify(o.dispatch(ctx, msg))
	elapsed := time.Since(start)
	metrics.ObserveStageDuration(stage, elapsed)
	fields["duration_ms"] = elapsed.Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		if !IsPermanent(err) {
			telemetry.Warn("pipeline.stage.retryable", fields)
			return err
		}
		metrics.IncStageFailed(stage, failureReason(err))
		telemetry.Error("pipeline.stage.failed", fields)
		if ferr := o.Runs.Fail(ctx, msg.JobID, err.Error()); ferr != nil {
			telemetry.Error("pipeline.run.record_failed", map[string]any{"job_id": msg.JobID, "error": ferr.Error()})
		}
		return err
	}

	if cerr := o.Runs.Complete(ctx, msg.JobID); cerr != nil {
		telemetry.Error("pipeline.run.record_failed", map[string]any{"job_id": msg.JobID, "error": cerr.Error()})
	}
	metrics.IncStageCompleted(stage)
	telemetry.Info("pipeline.stage.completed", fields)
	return nil
}

// FailExhausted records a job whose retry budget is spent.
func (o *Orchestrator) FailExhausted(ctx context.Context, msg queue.Message, cause error) {
	stage := string(msg.Stage)
	message := "retry budget exhausted"
	if cause != nil {
		message += ": " + cause.Error()
	}
	metrics.IncStageFailed(stage, "exhausted")
	telemetry.Error("pipeline.stage.exhausted", map[string]any{
		"analysis_id": msg.AnalysisID,
		"owner_id":    msg.OwnerID,
		"stage":       stage,
		"job_id":      msg.JobID,
		"request_id":  msg.RequestID,
		"error":       message,
	})
	if o.Runs == nil || msg.JobID == "" {
		return
	}
	if err := o.Runs.Fail(ctx, msg.JobID, message); err != nil {
		telemetry.Error("pipeline.run.record_failed", map[string]any{"job_id": msg.JobID, "error": err.Error()})
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, msg queue.Message) error {
	switch msg.Stage {
	case queue.StageExplore:
		return o.Explore(ctx, msg)
	case queue.StageGenerateTestCases:
		return o.GenerateTestCases(ctx, msg)
	case queue.StageGenerateDocumentation:
		return o.GenerateDocumentation(ctx, msg)
	case queue.StageGenerateScripts:
		return o.GenerateScripts(ctx, msg)
	default:
		return fmt.Errorf("%w: %s", queue.ErrUnknownStage, msg.Stage)
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

func newID() string { return uuid.NewString() }
