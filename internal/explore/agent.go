// Package explore drives a headless browser against a target screen and
// asks a model to describe what it saw.
package explore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"smartqa-backend/internal/llm"
	"smartqa-backend/internal/prompts"
)

const (
	systemPrompt = "You are a QA exploration agent. Respond with a single JSON object only. Never include credentials in the output."

	defaultSnapshotChars = 12000
	compactSnapshotChars = 4000
)

// Snapshotter captures a rendered page.
type Snapshotter interface {
	Snapshot(ctx context.Context, target Target) (Snapshot, error)
}

// Request is one exploration attempt.
type Request struct {
	View    prompts.View
	Compact bool
}

// Response is the raw model answer and the hash of the prompt that
// produced it.
type Response struct {
	Raw        string
	PromptHash string
	Model      string
}

// Agent combines a page snapshot with the explorer prompt.
type Agent struct {
	Snapshotter Snapshotter
	Completer   llm.Completer
}

// NewAgent builds an Agent.
func NewAgent(snapshotter Snapshotter, completer llm.Completer) *Agent {
	return &Agent{Snapshotter: snapshotter, Completer: completer}
}

// Explore snapshots the target and returns the model's raw description.
// Snapshot failures are transient; the page may simply be slow.
func (a *Agent) Explore(ctx context.Context, req Request) (Response, error) {
	if a.Completer == nil {
		return Response{}, errors.New("explore: completer not configured")
	}
	prompt := prompts.Explorer(req.View, req.Compact)

	snapshotBlock := prompts.NotProvided
	if a.Snapshotter != nil && strings.TrimSpace(req.View.TargetURL) != "" {
		snap, err := a.Snapshotter.Snapshot(ctx, Target{URL: req.View.TargetURL, Credentials: req.View.Credentials})
		if err != nil {
			return Response{}, fmt.Errorf("%w: snapshot: %w", llm.ErrTransient, err)
		}
		limit := defaultSnapshotChars
		if req.Compact {
			limit = compactSnapshotChars
		}
		snapshotBlock = snap.Render(limit)
	}

	user := prompt + "\n\nPage snapshot:\n" + snapshotBlock
	out, err := a.Completer.Complete(ctx, llm.Prompt(systemPrompt, user))
	if err != nil {
		return Response{}, err
	}
	return Response{Raw: out.Content, PromptHash: prompts.Hash(prompt), Model: out.Model}, nil
}
