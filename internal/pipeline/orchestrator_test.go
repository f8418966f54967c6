package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/artifacts"
	"smartqa-backend/internal/explore"
	"smartqa-backend/internal/generation"
	"smartqa-backend/internal/llm"
	"smartqa-backend/internal/llmoutput"
	"smartqa-backend/internal/prompts"
	"smartqa-backend/internal/queue"
	"smartqa-backend/internal/runs"
	"smartqa-backend/internal/testcases"
)

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

const validExploration = `{"tests_description":"Login form with email and password",
"playwright_description":"#email, #password, button[type=submit]",
"documentation_description":"Users sign in here",
"uiux_description":"Error messages are hard to read"}`

type fakeExplorer struct {
	mu       sync.Mutex
	answers  []string
	requests []explore.Request
}

func (f *fakeExplorer) Explore(_ context.Context, req explore.Request) (explore.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i >= len(f.answers) {
		i = len(f.answers) - 1
	}
	return explore.Response{Raw: f.answers[i], PromptHash: "explore-hash"}, nil
}

type fakeCases struct {
	err   error
	calls int
}

func (f *fakeCases) Generate(_ context.Context, renderedPrompt string) (generation.Result[llmoutput.TestCaseBatch], error) {
	f.calls++
	if f.err != nil {
		return generation.Result[llmoutput.TestCaseBatch]{}, f.err
	}
	return generation.Result[llmoutput.TestCaseBatch]{
		Payload: llmoutput.TestCaseBatch{Items: []llmoutput.TestCase{{
			Title: "Empty password", TestType: "functional", ScenarioType: "negative", Priority: "high", RiskLevel: "low",
			Steps: []llmoutput.Step{{Order: 1, Action: "Open", ExpectedResult: "Form", StepType: "action"}},
		}}},
		PromptHash: prompts.Hash(renderedPrompt),
		Model:      "test-model",
	}, nil
}

type fakeDocs struct {
	title string
	err   error
}

func (f *fakeDocs) Generate(_ context.Context, view prompts.View) (generation.Result[llmoutput.Documentation], error) {
	if f.err != nil {
		return generation.Result[llmoutput.Documentation]{}, f.err
	}
	return generation.Result[llmoutput.Documentation]{
		Payload:    llmoutput.Documentation{Title: f.title, Content: "# " + view.Name},
		PromptHash: prompts.Hash(prompts.Documentation(view)),
	}, nil
}

type fakeScripts struct {
	err   error
	cases []prompts.TestCase
}

func (f *fakeScripts) Generate(_ context.Context, view prompts.View, cases []prompts.TestCase) (generation.Result[llmoutput.Script], error) {
	f.cases = cases
	if f.err != nil {
		return generation.Result[llmoutput.Script]{}, f.err
	}
	return generation.Result[llmoutput.Script]{
		Payload:    llmoutput.Script{Language: "typescript", Framework: "playwright", Script: "import '@playwright/test'"},
		PromptHash: prompts.Hash(prompts.Scripts(view, cases)),
	}, nil
}

type fixture struct {
	orch      *Orchestrator
	analyses  *analyses.MemoryRepo
	explorer  *fakeExplorer
	cases     *fakeCases
	docs      *fakeDocs
	scripts   *fakeScripts
	artifacts *artifacts.MemoryRepo
	testCases *testcases.MemoryRepo
	runs      *runs.MemoryRepo
	queue     *queue.MemoryQueue
}

func newFixture(t *testing.T, explored bool) *fixture {
	t.Helper()
	ar := analyses.NewMemoryRepo()
	a := analyses.Analysis{
		ID: "a-1", OwnerID: "owner-1", Name: "Login", TargetURL: "https://x.test",
		Status: analyses.StatusDraft, CreatedAt: testNow,
	}
	require.NoError(t, ar.Create(context.Background(), analyses.NewAnalysis{
		Analysis:    a,
		Credentials: []analyses.Credential{{ID: "c-1", AnalysisID: "a-1", FieldName: "password", Value: "hunter2"}},
	}, nil))
	if explored {
		require.NoError(t, ar.UpdateDescriptions(context.Background(), "a-1", analyses.Descriptions{
			Tests: "t", Playwright: "p", Documentation: "d", UIUX: "u",
		}))
	}

	f := &fixture{
		analyses:  ar,
		explorer:  &fakeExplorer{answers: []string{validExploration}},
		cases:     &fakeCases{},
		docs:      &fakeDocs{title: "Login screen"},
		scripts:   &fakeScripts{},
		artifacts: artifacts.NewMemoryRepo(),
		testCases: testcases.NewMemoryRepo(),
		runs:      runs.NewMemoryRepo(),
		queue:     queue.NewMemoryQueue(1, 0),
	}
	f.orch = &Orchestrator{
		Analyses:      analyses.NewService(ar, nil, nil, f.queue),
		Writer:        ar,
		Explorer:      f.explorer,
		TestCases:     f.cases,
		Documentation: f.docs,
		Scripts:       f.scripts,
		Artifacts:     f.artifacts,
		Cases:         f.testCases,
		Runs:          f.runs,
		Queue:         f.queue,
		Now:           func() time.Time { return testNow },
	}
	return f
}

func job(id string, stage queue.Stage) queue.Message {
	return queue.Message{JobID: id, Stage: stage, AnalysisID: "a-1", OwnerID: "owner-1", Version: queue.MessageVersion}
}

func (f *fixture) analysis(t *testing.T) analyses.Analysis {
	t.Helper()
	a, err := f.analyses.GetForOwner(context.Background(), "a-1", "owner-1")
	require.NoError(t, err)
	return a
}

func (f *fixture) lastRun(t *testing.T, jobID string) runs.Run {
	t.Helper()
	items, err := f.runs.ListByAnalysis(context.Background(), "a-1")
	require.NoError(t, err)
	for _, r := range items {
		if r.JobID == jobID {
			return r
		}
	}
	t.Fatalf("no run for job %s", jobID)
	return runs.Run{}
}

func TestExploreRetriesCompactThenChainsTestCases(t *testing.T) {
	f := newFixture(t, false)
	missingUIUX := strings.Replace(validExploration, `"uiux_description"`, `"ux"`, 1)
	f.explorer.answers = []string{missingUIUX, validExploration}

	require.NoError(t, f.orch.Handle(context.Background(), job("job-1", queue.StageExplore)))

	require.Len(t, f.explorer.requests, 2)
	require.False(t, f.explorer.requests[0].Compact)
	require.True(t, f.explorer.requests[1].Compact)

	a := f.analysis(t)
	require.Equal(t, "Error messages are hard to read", a.Descriptions.UIUX)
	require.Equal(t, analyses.StatusExplored, a.Status)

	sent := f.queue.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, queue.StageGenerateTestCases, sent[0].Stage)
	require.Equal(t, queue.ChildJobID("job-1", queue.StageGenerateTestCases), sent[0].JobID)
	require.Contains(t, sent[0].RenderedPrompt, "Login form with email and password")
	require.Equal(t, runs.StatusCompleted, f.lastRun(t, "job-1").Status)
}

func TestExploreGivesUpAfterCompactRetries(t *testing.T) {
	f := newFixture(t, false)
	f.explorer.answers = []string{`{"tests_description": "only one"}`}

	err := f.orch.Handle(context.Background(), job("job-1", queue.StageExplore))
	require.True(t, IsPermanent(err))
	var se *llmoutput.SchemaError
	require.ErrorAs(t, err, &se)
	require.Len(t, f.explorer.requests, 3)
	require.Empty(t, f.queue.Sent())

	run := f.lastRun(t, "job-1")
	require.Equal(t, runs.StatusFailed, run.Status)
	require.Contains(t, run.ErrorMessage, "uiux_description")
	require.False(t, f.analysis(t).Descriptions.Explored())
}

func TestTestCaseJobRedeliveryStoresOneBatch(t *testing.T) {
	f := newFixture(t, true)
	msg := job("job-tc", queue.StageGenerateTestCases)
	msg.RenderedPrompt = prompts.TestCases("t")

	require.NoError(t, f.orch.Handle(context.Background(), msg))
	require.NoError(t, f.orch.Handle(context.Background(), msg))

	cases, err := f.testCases.List(context.Background(), "a-1", false)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, 2, f.lastRun(t, "job-tc").Attempt)
}

func TestDocumentationVersionsPerJob(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.orch.Handle(ctx, job("job-1", queue.StageGenerateDocumentation)))
	require.NoError(t, f.orch.Handle(ctx, job("job-1", queue.StageGenerateDocumentation)))
	f.docs.title = ""
	require.NoError(t, f.orch.Handle(ctx, job("job-2", queue.StageGenerateDocumentation)))

	docs, err := f.artifacts.ListDocumentation(ctx, "a-1", false)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, 2, docs[0].Version)
	require.Equal(t, "Login", docs[0].Title)
	require.Equal(t, "Login screen", docs[1].Title)
	require.Equal(t, analyses.StatusDocsGenerated, f.analysis(t).Status)
}

func TestScriptFailureKeepsStatusAndCreatesNoRow(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.orch.Handle(ctx, job("job-docs", queue.StageGenerateDocumentation)))

	f.scripts.err = &llmoutput.SchemaError{Invalid: map[string]string{"framework": "eq=playwright"}}
	err := f.orch.Handle(ctx, job("job-scripts", queue.StageGenerateScripts))
	require.True(t, IsPermanent(err))

	scripts, err := f.artifacts.ListScripts(ctx, "a-1", true)
	require.NoError(t, err)
	require.Empty(t, scripts)
	require.NotEqual(t, analyses.StatusDraft, f.analysis(t).Status)
	require.GreaterOrEqual(t, f.analysis(t).Status.Rank(), analyses.StatusDocsGenerated.Rank())
	require.Equal(t, runs.StatusFailed, f.lastRun(t, "job-scripts").Status)

	f.scripts.err = nil
	require.NoError(t, f.orch.Handle(ctx, job("job-docs-2", queue.StageGenerateDocumentation)))
	require.Equal(t, analyses.StatusGeneratingScripts, f.analysis(t).Status)
}

func TestScriptsUseLiveTestCasesAndMarkThemAutomated(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	msg := job("job-tc", queue.StageGenerateTestCases)
	msg.RenderedPrompt = prompts.TestCases("t")
	require.NoError(t, f.orch.Handle(ctx, msg))

	require.NoError(t, f.orch.Handle(ctx, job("job-scripts", queue.StageGenerateScripts)))

	require.Len(t, f.scripts.cases, 1)
	require.Equal(t, "Empty password", f.scripts.cases[0].Title)
	script, err := f.artifacts.LatestScript(ctx, "a-1")
	require.NoError(t, err)
	require.Equal(t, "Playwright Script", script.Title)

	cases, err := f.testCases.List(ctx, "a-1", false)
	require.NoError(t, err)
	require.Equal(t, testcases.AutomationGenerated, cases[0].AutomationStatus)
	require.Equal(t, analyses.StatusScriptsGenerated, f.analysis(t).Status)
}

func TestOwnershipAndPreconditionFailuresArePermanent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	foreign := job("job-x", queue.StageGenerateDocumentation)
	foreign.OwnerID = "intruder"
	err := f.orch.Handle(ctx, foreign)
	require.True(t, IsPermanent(err))
	require.ErrorIs(t, err, analyses.ErrNotFound)

	err = f.orch.Handle(ctx, job("job-y", queue.StageGenerateDocumentation))
	require.True(t, IsPermanent(err))
	require.ErrorIs(t, err, analyses.ErrNotExplored)

	err = f.orch.Handle(ctx, queue.Message{Stage: queue.StageExplore, AnalysisID: "a-1"})
	require.True(t, IsPermanent(err))
}

func TestTransientFailureIsLeftForRedelivery(t *testing.T) {
	f := newFixture(t, true)
	f.cases.err = llm.ErrTransient
	msg := job("job-tc", queue.StageGenerateTestCases)
	msg.RenderedPrompt = "prompt"

	err := f.orch.Handle(context.Background(), msg)
	require.Error(t, err)
	require.False(t, IsPermanent(err))
	require.Equal(t, runs.StatusRunning, f.lastRun(t, "job-tc").Status)

	f.orch.FailExhausted(context.Background(), msg, err)
	run := f.lastRun(t, "job-tc")
	require.Equal(t, runs.StatusFailed, run.Status)
	require.True(t, strings.HasPrefix(run.ErrorMessage, "retry budget exhausted"))
}

func TestPermanentWrapsOnce(t *testing.T) {
	base := errors.New("boom")
	err := Permanent(Permanent(base))
	require.True(t, IsPermanent(err))
	require.ErrorIs(t, err, base)
	require.Nil(t, Permanent(nil))
}
