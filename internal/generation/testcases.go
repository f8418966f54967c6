package generation

import (
	"context"

	"smartqa-backend/internal/llm"
	"smartqa-backend/internal/llmoutput"
	"smartqa-backend/internal/prompts"
)

// TestCaseGenerator produces functional test cases from a rendered prompt.
type TestCaseGenerator struct {
	Completer llm.Completer
}

// Generate runs the test-case prompt as carried on the job.
func (g *TestCaseGenerator) Generate(ctx context.Context, renderedPrompt string) (Result[llmoutput.TestCaseBatch], error) {
	batch, model, repaired, err := withRepair(ctx, g.Completer, llm.Prompt(testCasesSystem, renderedPrompt),
		"generate_test_case", llmoutput.ParseTestCases)
	if err != nil {
		return Result[llmoutput.TestCaseBatch]{}, err
	}
	return Result[llmoutput.TestCaseBatch]{
		Payload: batch, PromptHash: prompts.Hash(renderedPrompt), Model: model, Repaired: repaired,
	}, nil
}
