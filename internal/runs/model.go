package runs

import "time"

// Run status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run records one stage job and its outcome.
type Run struct {
	ID           string     `json:"id"`
	JobID        string     `json:"jobId"`
	AnalysisID   string     `json:"analysisId"`
	OwnerID      string     `json:"ownerId"`
	Stage        string     `json:"stage"`
	Status       string     `json:"status"`
	Attempt      int        `json:"attempt"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// NewRun identifies the job being started.
type NewRun struct {
	JobID      string
	AnalysisID string
	OwnerID    string
	Stage      string
}

// maxErrorRunes bounds stored failure messages.
const maxErrorRunes = 1000

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxErrorRunes {
		return s
	}
	return string(r[:maxErrorRunes])
}
