package llmoutput

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Exploration is the four-part description of an explored screen.
type Exploration struct {
	TestsDescription         string `json:"tests_description" validate:"required"`
	PlaywrightDescription    string `json:"playwright_description" validate:"required"`
	DocumentationDescription string `json:"documentation_description" validate:"required"`
	UIUXDescription          string `json:"uiux_description" validate:"required"`
}

var explorationKeys = []string{
	"tests_description",
	"playwright_description",
	"documentation_description",
	"uiux_description",
}

// ParseExploration extracts and validates an exploration payload.
func ParseExploration(raw string) (Exploration, error) {
	res, err := ExtractObject(raw, Options{})
	if err != nil {
		return Exploration{}, err
	}
	se := &SchemaError{Missing: requireKeys(res.Object, "", explorationKeys...)}
	if !se.empty() {
		return Exploration{}, se
	}
	out := Exploration{
		TestsDescription:         res.Object.text("tests_description"),
		PlaywrightDescription:    res.Object.text("playwright_description"),
		DocumentationDescription: res.Object.text("documentation_description"),
		UIUXDescription:          res.Object.text("uiux_description"),
	}
	checkStruct(out, se)
	if !se.empty() {
		return Exploration{}, se
	}
	return out, nil
}

// Step is one validated test step.
type Step struct {
	Order          int    `json:"order" validate:"min=1"`
	Action         string `json:"action" validate:"required"`
	ExpectedResult string `json:"expected_result" validate:"required"`
	StepType       string `json:"step_type"`
}

// TestCase is one validated, vocabulary-normalized test case.
type TestCase struct {
	Title          string `json:"title" validate:"required"`
	Description    string `json:"description"`
	Objective      string `json:"objective"`
	Preconditions  string `json:"preconditions"`
	ExpectedResult string `json:"expected_result"`
	TestType       string `json:"test_type"`
	ScenarioType   string `json:"scenario_type"`
	Priority       string `json:"priority"`
	RiskLevel      string `json:"risk_level"`
	Steps          []Step `json:"steps" validate:"dive"`
}

// TestCaseBatch is the test-case generation payload.
type TestCaseBatch struct {
	Items []TestCase `json:"items" validate:"min=1,dive"`
}

var (
	testCaseKeys = []string{
		"title", "description", "objective", "test_type", "scenario_type",
		"priority", "risk_level", "preconditions", "expected_result", "steps",
	}
	stepKeys = []string{"order", "action", "expected_result"}
)

// ParseTestCases extracts and validates a test-case batch. A bare array is
// accepted as the items list. Classification fields fall back to their
// vocabulary defaults; steps come back sorted and numbered from 1.
func ParseTestCases(raw string) (TestCaseBatch, error) {
	res, err := ExtractObject(raw, Options{WrapArrayKey: "items"})
	if err != nil {
		return TestCaseBatch{}, err
	}
	se := &SchemaError{Missing: requireKeys(res.Object, "", "items")}
	if !se.empty() {
		return TestCaseBatch{}, se
	}
	var items []Object
	if err := json.Unmarshal(res.Object["items"], &items); err != nil {
		se.invalid("items", "array of objects")
		return TestCaseBatch{}, se
	}

	batch := TestCaseBatch{Items: make([]TestCase, 0, len(items))}
	for i, item := range items {
		path := fmt.Sprintf("items[%d]", i)
		if item == nil {
			se.invalid(path, "object")
			continue
		}
		if missing := requireKeys(item, path, testCaseKeys...); len(missing) > 0 {
			se.Missing = append(se.Missing, missing...)
			continue
		}
		tc := TestCase{
			Title:          item.text("title"),
			Description:    item.text("description"),
			Objective:      item.text("objective"),
			Preconditions:  item.text("preconditions"),
			ExpectedResult: item.text("expected_result"),
			TestType:       TestTypes.Normalize(item.text("test_type")),
			ScenarioType:   ScenarioTypes.Normalize(item.text("scenario_type")),
			Priority:       Priorities.Normalize(item.text("priority")),
			RiskLevel:      RiskLevels.Normalize(item.text("risk_level")),
		}
		steps, ok := parseSteps(item["steps"], path, se)
		if !ok {
			continue
		}
		tc.Steps = steps
		batch.Items = append(batch.Items, tc)
	}
	if !se.empty() {
		return TestCaseBatch{}, se
	}
	checkStruct(batch, se)
	if !se.empty() {
		return TestCaseBatch{}, se
	}
	return batch, nil
}

func parseSteps(raw json.RawMessage, path string, se *SchemaError) ([]Step, bool) {
	var objs []Object
	if err := json.Unmarshal(raw, &objs); err != nil {
		se.invalid(path+".steps", "array of objects")
		return nil, false
	}
	steps := make([]Step, 0, len(objs))
	ok := true
	for j, obj := range objs {
		stepPath := fmt.Sprintf("%s.steps[%d]", path, j)
		if obj == nil {
			se.invalid(stepPath, "object")
			ok = false
			continue
		}
		if missing := requireKeys(obj, stepPath, stepKeys...); len(missing) > 0 {
			se.Missing = append(se.Missing, missing...)
			ok = false
			continue
		}
		order, err := strconv.Atoi(obj.text("order"))
		if err != nil || order < 1 {
			se.invalid(stepPath+".order", "positive integer")
			ok = false
			continue
		}
		steps = append(steps, Step{
			Order:          order,
			Action:         obj.text("action"),
			ExpectedResult: obj.text("expected_result"),
			StepType:       StepTypes.Normalize(obj.text("step_type")),
		})
	}
	if !ok {
		return nil, false
	}
	sort.SliceStable(steps, func(a, b int) bool { return steps[a].Order < steps[b].Order })
	for i := range steps {
		steps[i].Order = i + 1
	}
	return steps, true
}

// Script is a validated automation script payload.
type Script struct {
	Language  string `json:"language" validate:"oneof=typescript javascript"`
	Framework string `json:"framework" validate:"eq=playwright"`
	Title     string `json:"title" validate:"required"`
	Script    string `json:"script" validate:"required,playwright_script"`
}

// ParseScript extracts and validates a script payload. Language and
// framework are identity fields: they are lower-cased but never defaulted.
func ParseScript(raw string) (Script, error) {
	res, err := ExtractObject(raw, Options{})
	if err != nil {
		return Script{}, err
	}
	se := &SchemaError{Missing: requireKeys(res.Object, "", "language", "framework", "title", "script")}
	if !se.empty() {
		return Script{}, se
	}
	out := Script{
		Language:  strings.ToLower(res.Object.text("language")),
		Framework: strings.ToLower(res.Object.text("framework")),
		Title:     res.Object.text("title"),
		Script:    res.Object.text("script"),
	}
	checkStruct(out, se)
	if !se.empty() {
		return Script{}, se
	}
	return out, nil
}

// Documentation is a generated documentation payload. Title is optional.
type Documentation struct {
	Title   string `json:"title"`
	Content string `json:"content" validate:"required"`
}

// ParseDocumentation extracts and validates a documentation payload.
func ParseDocumentation(raw string) (Documentation, error) {
	res, err := ExtractObject(raw, Options{})
	if err != nil {
		return Documentation{}, err
	}
	se := &SchemaError{Missing: requireKeys(res.Object, "", "content")}
	if !se.empty() {
		return Documentation{}, se
	}
	out := Documentation{
		Title:   res.Object.text("title"),
		Content: res.Object.text("content"),
	}
	checkStruct(out, se)
	if !se.empty() {
		return Documentation{}, se
	}
	return out, nil
}
