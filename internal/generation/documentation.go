package generation

import (
	"context"

	"smartqa-backend/internal/llm"
	"smartqa-backend/internal/llmoutput"
	"smartqa-backend/internal/prompts"
)

// DocumentationGenerator writes functional documentation of a screen.
type DocumentationGenerator struct {
	Completer llm.Completer
}

func (g *DocumentationGenerator) Generate(ctx context.Context, view prompts.View) (Result[llmoutput.Documentation], error) {
	prompt := prompts.Documentation(view)
	doc, model, repaired, err := withRepair(ctx, g.Completer, llm.Prompt(documentationSystem, prompt),
		"generate_documentation", llmoutput.ParseDocumentation)
	if err != nil {
		return Result[llmoutput.Documentation]{}, err
	}
	return Result[llmoutput.Documentation]{
		Payload: doc, PromptHash: prompts.Hash(prompt), Model: model, Repaired: repaired,
	}, nil
}
