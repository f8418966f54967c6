package testcases

import "time"

// Review status of a test case.
const (
	StatusGenerated  = "generated"
	StatusReviewed   = "reviewed"
	StatusApproved   = "approved"
	StatusDeprecated = "deprecated"
)

// Automation status of a test case.
const (
	AutomationNotGenerated = "not_generated"
	AutomationGenerated    = "generated"
	AutomationOutdated     = "outdated"
)

var (
	statuses           = []string{StatusGenerated, StatusReviewed, StatusApproved, StatusDeprecated}
	automationStatuses = []string{AutomationNotGenerated, AutomationGenerated, AutomationOutdated}
)

// TestCase is a functional test case of an analysis. Steps are always
// ordered by Order and exclude tombstoned steps.
type TestCase struct {
	ID               string     `json:"id"`
	AnalysisID       string     `json:"analysisId"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Objective        string     `json:"objective"`
	Preconditions    string     `json:"preconditions"`
	ExpectedResult   string     `json:"expectedResult"`
	TestType         string     `json:"testType"`
	ScenarioType     string     `json:"scenarioType"`
	Priority         string     `json:"priority"`
	RiskLevel        string     `json:"riskLevel"`
	Status           string     `json:"status"`
	AutomationStatus string     `json:"automationStatus"`
	Position         int        `json:"position"`
	GeneratedBy      string     `json:"generatedBy"`
	PromptHash       string     `json:"promptHash"`
	Steps            []Step     `json:"steps"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	DeletedAt        *time.Time `json:"deletedAt,omitempty"`
}

// Step is one ordered step of a test case.
type Step struct {
	ID             string     `json:"id"`
	TestCaseID     string     `json:"testCaseId"`
	Order          int        `json:"order"`
	Action         string     `json:"action"`
	ExpectedResult string     `json:"expectedResult"`
	StepType       string     `json:"stepType"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// NewBatch is one generation run's worth of test cases.
type NewBatch struct {
	AnalysisID string
	BatchKey   string
	PromptHash string
	Cases      []TestCase
	CreatedAt  time.Time
}

// StepInput is a step as submitted by a user. An empty ID means a new step;
// Order <= 0 places it after the last step.
type StepInput struct {
	ID             string `json:"id"`
	Order          int    `json:"order"`
	Action         string `json:"action" validate:"required"`
	ExpectedResult string `json:"expectedResult"`
	StepType       string `json:"stepType"`
}

// Update is a user edit. Nil fields are left unchanged; a non-nil Steps
// replaces the full step list.
type Update struct {
	Title            *string      `json:"title"`
	Description      *string      `json:"description"`
	Objective        *string      `json:"objective"`
	Preconditions    *string      `json:"preconditions"`
	ExpectedResult   *string      `json:"expectedResult"`
	TestType         *string      `json:"testType"`
	ScenarioType     *string      `json:"scenarioType"`
	Priority         *string      `json:"priority"`
	RiskLevel        *string      `json:"riskLevel"`
	Status           *string      `json:"status"`
	AutomationStatus *string      `json:"automationStatus"`
	Steps            *[]StepInput `json:"steps"`
}
