package pipeline

import (
	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/prompts"
	"smartqa-backend/internal/testcases"
)

func viewFromDetail(d analyses.Detail) prompts.View {
	a := d.Analysis
	v := prompts.View{
		Name:          a.Name,
		TargetURL:     a.TargetURL,
		Objective:     a.Objective,
		ScreenContext: a.ScreenContext,
		Descriptions: prompts.Descriptions{
			Tests:         a.Descriptions.Tests,
			Playwright:    a.Descriptions.Playwright,
			Documentation: a.Descriptions.Documentation,
			UIUX:          a.Descriptions.UIUX,
		},
	}
	for _, doc := range d.DocumentTexts {
		v.Documents = append(v.Documents, prompts.Document{FileName: doc.FileName, Text: doc.Text})
	}
	for _, c := range d.Credentials {
		v.Credentials = append(v.Credentials, prompts.Credential{FieldName: c.FieldName, Value: c.Value})
	}
	return v
}

func promptCases(cases []testcases.TestCase) []prompts.TestCase {
	out := make([]prompts.TestCase, 0, len(cases))
	for _, tc := range cases {
		pc := prompts.TestCase{
			Title:          tc.Title,
			ScenarioType:   tc.ScenarioType,
			Preconditions:  tc.Preconditions,
			ExpectedResult: tc.ExpectedResult,
		}
		for _, s := range tc.Steps {
			pc.Steps = append(pc.Steps, prompts.Step{Order: s.Order, Action: s.Action, ExpectedResult: s.ExpectedResult})
		}
		out = append(out, pc)
	}
	return out
}
