package artifacts

import "time"

// Kind selects the artifact table.
type Kind string

const (
	KindDocumentation Kind = "documentation"
	KindScript        Kind = "script"
)

// Artifact statuses. Failed generations never create rows; they are
// recorded on the stage run instead.
const (
	StatusGenerated = "generated"
	StatusDraft     = "draft"
	StatusReviewed  = "reviewed"
	StatusApproved  = "approved"
	StatusArchived  = "archived"
)

var editableStatuses = []string{StatusDraft, StatusGenerated, StatusReviewed, StatusApproved, StatusArchived}

// Generator attribution.
const (
	GeneratedByAI   = "ai"
	GeneratedByUser = "user"
)

const (
	FormatMarkdown = "markdown"
	FormatText     = "text"
	FormatHTML     = "html"
)

// Documentation is one version of an analysis' functional documentation.
type Documentation struct {
	ID             string         `json:"id"`
	AnalysisID     string         `json:"analysisId"`
	Title          string         `json:"title"`
	Version        int            `json:"version"`
	Status         string         `json:"status"`
	Content        string         `json:"content"`
	ContentFormat  string         `json:"contentFormat"`
	GeneratedBy    string         `json:"generatedBy"`
	GeneratorModel string         `json:"generatorModel"`
	PromptHash     string         `json:"promptHash"`
	Meta           map[string]any `json:"meta,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty"`
}

// Script is one version of an analysis' automation script.
type Script struct {
	ID             string         `json:"id"`
	AnalysisID     string         `json:"analysisId"`
	Title          string         `json:"title"`
	Version        int            `json:"version"`
	Language       string         `json:"language"`
	Framework      string         `json:"framework"`
	Status         string         `json:"status"`
	Script         string         `json:"script"`
	GeneratedBy    string         `json:"generatedBy"`
	GeneratorModel string         `json:"generatorModel"`
	PromptHash     string         `json:"promptHash"`
	Meta           map[string]any `json:"meta,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty"`
}

// NewDocumentation is a generated documentation awaiting a version number.
type NewDocumentation struct {
	ID             string
	AnalysisID     string
	Title          string
	Content        string
	ContentFormat  string
	GeneratorModel string
	PromptHash     string
	IdempotencyKey string
	Meta           map[string]any
	CreatedAt      time.Time
}

// NewScript is a generated script awaiting a version number.
type NewScript struct {
	ID             string
	AnalysisID     string
	Title          string
	Language       string
	Framework      string
	Script         string
	GeneratorModel string
	PromptHash     string
	IdempotencyKey string
	Meta           map[string]any
	CreatedAt      time.Time
}

// DocumentationEdit is a manual edit. Nil fields are left unchanged.
type DocumentationEdit struct {
	Title         *string `json:"title"`
	Content       *string `json:"content"`
	Status        *string `json:"status"`
	ContentFormat *string `json:"contentFormat"`
}
