// Package generation turns rendered prompts into validated test cases,
// documentation and automation scripts.
package generation

import (
	"context"
	"errors"

	"smartqa-backend/internal/llm"
	"smartqa-backend/internal/llmoutput"
	"smartqa-backend/internal/shared/telemetry"
)

const (
	testCasesSystem     = "You are a senior QA engineer. Respond with a single JSON object only."
	documentationSystem = "You are a technical writer documenting a web screen for QA. Respond with a single JSON object only."
	scriptsSystem       = "You are a test automation engineer writing Playwright tests. Respond with a single JSON object only. Never hardcode credential values."

	repairPrefix = "Your previous answer was rejected: "
	repairSuffix = ". Fix the JSON so it satisfies every required key and allowed value. Output JSON only."

	maxRepairErrorRunes = 500
)

// Result carries a parsed payload and the provenance of the answer.
type Result[T any] struct {
	Payload    T
	PromptHash string
	Model      string
	Repaired   bool
}

// withRepair completes req and parses the answer. A validation failure gets
// exactly one more attempt with a repair instruction naming the error.
func withRepair[T any](ctx context.Context, c llm.Completer, req llm.Request, stage string, parse func(string) (T, error)) (T, string, bool, error) {
	var zero T
	if c == nil {
		return zero, "", false, errors.New("generation: completer not configured")
	}
	out, err := c.Complete(ctx, req)
	if err != nil {
		return zero, "", false, err
	}
	payload, err := parse(out.Content)
	if err == nil {
		return payload, out.Model, false, nil
	}
	if !llmoutput.IsValidationFailure(err) {
		return zero, "", false, err
	}
	logValidation(stage, 1, err)

	retryCtx := llm.WithExtraSystemMessage(ctx, repairPrefix+bounded(err.Error())+repairSuffix)
	out, err = c.Complete(retryCtx, req)
	if err != nil {
		return zero, "", false, err
	}
	payload, err = parse(out.Content)
	if err != nil {
		logValidation(stage, 2, err)
		return zero, "", false, err
	}
	return payload, out.Model, true, nil
}

func logValidation(stage string, attempt int, err error) {
	fields := map[string]any{"stage": stage, "attempt": attempt, "error": bounded(err.Error())}
	var pe *llmoutput.ParseError
	if errors.As(err, &pe) {
		fields["raw_prefix"] = pe.RawPrefix
	}
	telemetry.Warn("generation.validation.failed", fields)
}

func bounded(s string) string {
	r := []rune(s)
	if len(r) <= maxRepairErrorRunes {
		return s
	}
	return string(r[:maxRepairErrorRunes])
}
