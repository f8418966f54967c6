package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestInfoWritesJSONLineWithFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Info("pipeline.stage.completed", map[string]any{
		"analysis_id": "a-1",
		"attempt":     2,
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "pipeline.stage.completed" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if entry["analysis_id"] != "a-1" {
		t.Fatalf("missing analysis_id: %v", entry)
	}
	if entry["ts"] == nil {
		t.Fatalf("missing ts")
	}
}

func TestErrorFlattensErrorValues(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Error("worker.job.failed", map[string]any{"error": errors.New("boom")})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["error"] != "boom" {
		t.Fatalf("expected error string, got %v", entry["error"])
	}
	if entry["level"] != "error" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
}
