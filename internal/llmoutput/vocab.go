package llmoutput

import (
	"slices"
	"strings"
)

// Vocabulary is a closed set of lower-case values with a fallback.
type Vocabulary struct {
	Name    string
	Values  []string
	Default string
}

// Normalize lower-cases s and returns it when it belongs to the set,
// otherwise the default.
func (v Vocabulary) Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if v.Contains(s) {
		return s
	}
	return v.Default
}

// Contains reports whether s is already a normalized member of the set.
func (v Vocabulary) Contains(s string) bool {
	return slices.Contains(v.Values, s)
}

var (
	TestTypes = Vocabulary{
		Name:    "test_type",
		Values:  []string{"functional", "regression", "smoke", "exploratory"},
		Default: "functional",
	}
	ScenarioTypes = Vocabulary{
		Name:    "scenario_type",
		Values:  []string{"positive", "negative", "edge"},
		Default: "positive",
	}
	Priorities = Vocabulary{
		Name:    "priority",
		Values:  []string{"low", "medium", "high", "critical"},
		Default: "medium",
	}
	RiskLevels = Vocabulary{
		Name:    "risk_level",
		Values:  []string{"low", "medium", "high"},
		Default: "medium",
	}
	StepTypes = Vocabulary{
		Name:    "step_type",
		Values:  []string{"action", "assertion", "setup"},
		Default: "action",
	}
)

// ExpectedFramework is the only automation framework scripts may target.
const ExpectedFramework = "playwright"
