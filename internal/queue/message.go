package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Stage names one step of the generation pipeline.
type Stage string

const (
	StageExplore               Stage = "explore"
	StageGenerateTestCases     Stage = "generate_test_case"
	StageGenerateDocumentation Stage = "generate_documentation"
	StageGenerateScripts       Stage = "generate_scripts"
)

// MessageVersion is bumped when the payload shape changes incompatibly.
const MessageVersion = 1

var (
	ErrUnknownStage    = errors.New("unknown stage")
	ErrMissingJobField = errors.New("missing required job field")
)

// Message is the payload sent to stage workers.
type Message struct {
	JobID          string `json:"jobId"`
	Stage          Stage  `json:"stage"`
	AnalysisID     string `json:"analysisId"`
	OwnerID        string `json:"ownerId"`
	RequestID      string `json:"requestId,omitempty"`
	RenderedPrompt string `json:"renderedPrompt,omitempty"`
	Description    string `json:"description,omitempty"`
	EnqueuedAt     string `json:"enqueuedAt"`
	Version        int    `json:"version"`
}

// ParseStage normalizes a stage name.
func ParseStage(s string) (Stage, error) {
	switch st := Stage(strings.ToLower(strings.TrimSpace(s))); st {
	case StageExplore, StageGenerateTestCases, StageGenerateDocumentation, StageGenerateScripts:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
	}
}

// Validate checks the per-stage required arguments.
func (m Message) Validate() error {
	if _, err := ParseStage(string(m.Stage)); err != nil {
		return err
	}
	missing := make([]string, 0, 3)
	if strings.TrimSpace(m.JobID) == "" {
		missing = append(missing, "jobId")
	}
	if strings.TrimSpace(m.AnalysisID) == "" {
		missing = append(missing, "analysisId")
	}
	if strings.TrimSpace(m.OwnerID) == "" {
		missing = append(missing, "ownerId")
	}
	if m.Stage == StageGenerateTestCases && strings.TrimSpace(m.RenderedPrompt) == "" {
		missing = append(missing, "renderedPrompt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingJobField, strings.Join(missing, ", "))
	}
	return nil
}

// ChildJobID derives the job id of a stage enqueued by parentJobID.
// Redelivery of the parent yields the same child id.
func ChildJobID(parentJobID string, stage Stage) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(parentJobID+"|"+string(stage))).String()
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
