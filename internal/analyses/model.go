package analyses

import (
	"strings"
	"time"
)

// Status is the pipeline position of an analysis. It only moves forward.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusExplored          Status = "explored"
	StatusGeneratingDocs    Status = "generating_docs"
	StatusDocsGenerated     Status = "docs_generated"
	StatusGeneratingScripts Status = "generating_scripts"
	StatusScriptsGenerated  Status = "scripts_generated"
)

var statusRanks = map[Status]int{
	StatusDraft:             0,
	StatusExplored:          1,
	StatusGeneratingDocs:    2,
	StatusDocsGenerated:     3,
	StatusGeneratingScripts: 4,
	StatusScriptsGenerated:  5,
}

// Rank orders statuses; unknown values rank below draft.
func (s Status) Rank() int {
	if r, ok := statusRanks[s]; ok {
		return r
	}
	return -1
}

// Descriptions are the four exploration outputs.
type Descriptions struct {
	Tests         string `json:"testsDescription"`
	Playwright    string `json:"playwrightDescription"`
	Documentation string `json:"documentationDescription"`
	UIUX          string `json:"uiuxDescription"`
}

// Explored reports whether exploration has produced descriptions.
func (d Descriptions) Explored() bool {
	return strings.TrimSpace(d.Tests) != "" &&
		strings.TrimSpace(d.Playwright) != "" &&
		strings.TrimSpace(d.Documentation) != "" &&
		strings.TrimSpace(d.UIUX) != ""
}

// Analysis is one screen under QA review.
type Analysis struct {
	ID            string       `json:"id"`
	OwnerID       string       `json:"ownerId"`
	Name          string       `json:"name"`
	TargetURL     string       `json:"targetUrl"`
	Objective     string       `json:"objective"`
	ScreenContext string       `json:"screenContext"`
	Descriptions  Descriptions `json:"descriptions"`
	Status        Status       `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Document is an uploaded file attached at creation. Immutable.
type Document struct {
	ID         string    `json:"id"`
	AnalysisID string    `json:"analysisId"`
	FileName   string    `json:"fileName"`
	MediaType  string    `json:"mediaType"`
	StorageKey string    `json:"-"`
	SizeBytes  int64     `json:"sizeBytes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Credential is an access secret for the target screen.
// Value is only populated in detail reads.
type Credential struct {
	ID         string    `json:"id"`
	AnalysisID string    `json:"analysisId"`
	FieldName  string    `json:"fieldName"`
	Value      string    `json:"value,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewAnalysis is everything inserted by one creation request.
type NewAnalysis struct {
	Analysis    Analysis
	Documents   []Document
	Credentials []Credential
}

// DocumentText is the extracted text of one document.
type DocumentText struct {
	FileName string
	Text     string
}

// Detail is the projection consumed by generation stages.
type Detail struct {
	Analysis      Analysis
	Documents     []Document
	Credentials   []Credential
	DocumentTexts []DocumentText
}
