package queue

import (
	"errors"
	"strings"
	"testing"
)

func TestMessageValidateRequiresPromptForTestCases(t *testing.T) {
	msg := Message{JobID: "job-1", Stage: StageGenerateTestCases, AnalysisID: "a-1", OwnerID: "o-1"}
	err := msg.Validate()
	if !errors.Is(err, ErrMissingJobField) {
		t.Fatalf("expected ErrMissingJobField, got %v", err)
	}
	if !strings.Contains(err.Error(), "renderedPrompt") {
		t.Fatalf("expected renderedPrompt to be named: %v", err)
	}

	msg.RenderedPrompt = "prompt"
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestMessageValidateRejectsUnknownStage(t *testing.T) {
	msg := Message{JobID: "job-1", Stage: "deploy", AnalysisID: "a-1", OwnerID: "o-1"}
	if err := msg.Validate(); !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
}

func TestDecodeMessageKeepsWireNames(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"jobId":"j","stage":"explore","analysisId":"a","ownerId":"o","version":1}`))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Stage != StageExplore || msg.AnalysisID != "a" || msg.OwnerID != "o" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestChildJobIDIsDeterministic(t *testing.T) {
	a := ChildJobID("job-1", StageGenerateTestCases)
	if a != ChildJobID("job-1", StageGenerateTestCases) {
		t.Fatalf("expected stable child id")
	}
	if a == ChildJobID("job-2", StageGenerateTestCases) {
		t.Fatalf("expected different parents to yield different ids")
	}
}
