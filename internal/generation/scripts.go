package generation

import (
	"context"

	"smartqa-backend/internal/llm"
	"smartqa-backend/internal/llmoutput"
	"smartqa-backend/internal/prompts"
)

// ScriptGenerator writes a Playwright script covering the given test cases.
// Credential values never reach the prompt; the script reads them from
// environment variables.
type ScriptGenerator struct {
	Completer llm.Completer
}

func (g *ScriptGenerator) Generate(ctx context.Context, view prompts.View, cases []prompts.TestCase) (Result[llmoutput.Script], error) {
	prompt := prompts.Scripts(view, cases)
	script, model, repaired, err := withRepair(ctx, g.Completer, llm.Prompt(scriptsSystem, prompt),
		"generate_scripts", llmoutput.ParseScript)
	if err != nil {
		return Result[llmoutput.Script]{}, err
	}
	return Result[llmoutput.Script]{
		Payload: script, PromptHash: prompts.Hash(prompt), Model: model, Repaired: repaired,
	}, nil
}
