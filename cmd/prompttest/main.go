package main

// Render a stage prompt and optionally run it against the configured model:
//   go run ./cmd/prompttest -stage documentation -url https://app.example.com/login -doc brief.pdf
//   go run ./cmd/prompttest -stage test_cases -description "Login form with email and password" -render-only

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"smartqa-backend/internal/extract"
	"smartqa-backend/internal/generation"
	"smartqa-backend/internal/llm"
	openai "smartqa-backend/internal/llm/openai"
	"smartqa-backend/internal/prompts"
	"smartqa-backend/internal/shared/config"
)

type docFlags []string

func (d *docFlags) String() string     { return strings.Join(*d, ",") }
func (d *docFlags) Set(v string) error { *d = append(*d, v); return nil }

func main() {
	cfg := config.Load()

	var docs docFlags
	stage := flag.String("stage", "documentation", "Stage prompt: test_cases, documentation or scripts")
	name := flag.String("name", "Prompt test", "Analysis name")
	targetURL := flag.String("url", "", "Target screen URL")
	objective := flag.String("objective", "", "Analysis objective")
	screenContext := flag.String("context", "", "Screen context")
	description := flag.String("description", "", "Tests description used by every stage")
	renderOnly := flag.Bool("render-only", false, "Print the rendered prompt without calling the model")
	outPath := flag.String("out", "", "Path to write the JSON output (optional)")
	model := flag.String("model", cfg.DocsModel, "LLM model")
	flag.Var(&docs, "doc", "Supporting document (pdf, txt or md); repeatable")
	flag.Parse()

	ctx := context.Background()
	view := prompts.View{
		Name:          *name,
		TargetURL:     *targetURL,
		Objective:     *objective,
		ScreenContext: *screenContext,
		Descriptions:  prompts.Descriptions{Tests: *description},
	}
	for _, path := range docs {
		text, err := readDocument(ctx, path)
		if err != nil {
			exitErr(err.Error())
		}
		view.Documents = append(view.Documents, prompts.Document{FileName: filepath.Base(path), Text: text})
	}

	if *renderOnly {
		prompt, err := renderPrompt(*stage, view)
		if err != nil {
			exitErr(err.Error())
		}
		fmt.Println(prompt)
		return
	}

	client, err := openai.NewClient(cfg.OpenAIAPIKey, *model, "", cfg.OpenAITimeout)
	if err != nil {
		exitErr(err.Error())
	}
	completer := llm.NewRetrying(client, map[string]any{"stage": *stage, "model": *model})

	var payload any
	switch *stage {
	case "test_cases":
		res, err := (&generation.TestCaseGenerator{Completer: completer}).Generate(ctx, prompts.TestCases(*description))
		if err != nil {
			exitErr(fmt.Sprintf("generate test cases: %v", err))
		}
		payload = res
	case "documentation":
		res, err := (&generation.DocumentationGenerator{Completer: completer}).Generate(ctx, view)
		if err != nil {
			exitErr(fmt.Sprintf("generate documentation: %v", err))
		}
		payload = res
	case "scripts":
		res, err := (&generation.ScriptGenerator{Completer: completer}).Generate(ctx, view, nil)
		if err != nil {
			exitErr(fmt.Sprintf("generate scripts: %v", err))
		}
		payload = res
	default:
		exitErr(fmt.Sprintf("unsupported stage: %s", *stage))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		exitErr(fmt.Sprintf("encode output: %v", err))
	}
	pretty, err := prettyJSON(raw)
	if err != nil {
		exitErr(fmt.Sprintf("format json: %v", err))
	}
	if *outPath != "" {
		if err := os.WriteFile(*outPath, pretty, 0o644); err != nil {
			exitErr(fmt.Sprintf("write output: %v", err))
		}
	}
	if _, err := os.Stdout.Write(append(pretty, '\n')); err != nil {
		exitErr(fmt.Sprintf("write stdout: %v", err))
	}
}

func renderPrompt(stage string, view prompts.View) (string, error) {
	switch stage {
	case "test_cases":
		return prompts.TestCases(view.Descriptions.Tests), nil
	case "documentation":
		return prompts.Documentation(view), nil
	case "scripts":
		return prompts.Scripts(view, nil), nil
	case "explore":
		return prompts.Explorer(view, false), nil
	default:
		return "", fmt.Errorf("unsupported stage: %s", stage)
	}
}

func readDocument(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	name := filepath.Base(path)
	mimeType := extract.NormalizeMimeType("", name)
	if !extract.Supported(mimeType, name) {
		return "", fmt.Errorf("unsupported document type: %s", filepath.Ext(path))
	}
	text, err := extract.ExtractTextFromBytes(ctx, data, mimeType, name)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	return text, nil
}

func prettyJSON(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
