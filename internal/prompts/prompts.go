// Package prompts renders the instruction text sent to exploration and
// generation models. Rendering is pure: the same view always yields the same
// text, so prompt hashes can identify generated artifacts.
package prompts

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"smartqa-backend/internal/shared/util"
)

// NotProvided stands in for every missing optional field.
const NotProvided = "not provided"

// CompactMaxChars caps each description in the compact explorer prompt.
const CompactMaxChars = 600

var (
	//go:embed templates/explorer.txt
	explorerTemplate string
	//go:embed templates/explorer_compact.txt
	explorerCompactTemplate string
	//go:embed templates/test_cases.txt
	testCasesTemplate string
	//go:embed templates/documentation.txt
	documentationTemplate string
	//go:embed templates/scripts.txt
	scriptsTemplate string
)

// Credential is one access credential of the target screen.
type Credential struct {
	FieldName string
	Value     string
}

// Document is the extracted text of one uploaded document.
type Document struct {
	FileName string
	Text     string
}

// Descriptions are the exploration outputs.
type Descriptions struct {
	Tests         string
	Playwright    string
	Documentation string
	UIUX          string
}

// View is the analysis projection a prompt is rendered from.
type View struct {
	Name          string
	TargetURL     string
	Objective     string
	ScreenContext string
	Descriptions  Descriptions
	Documents     []Document
	Credentials   []Credential
}

// Step is one step of a test case passed to the script prompt.
type Step struct {
	Order          int
	Action         string
	ExpectedResult string
}

// TestCase is the test case shape passed to the script prompt.
type TestCase struct {
	Title          string
	ScenarioType   string
	Preconditions  string
	ExpectedResult string
	Steps          []Step
}

// Explorer renders the exploration prompt. compact selects the
// length-capped variant used after a truncated answer.
func Explorer(v View, compact bool) string {
	tpl := explorerTemplate
	if compact {
		tpl = explorerCompactTemplate
	}
	return render(tpl,
		"{{NAME}}", orNotProvided(v.Name),
		"{{TARGET_URL}}", orNotProvided(v.TargetURL),
		"{{OBJECTIVE}}", orNotProvided(v.Objective),
		"{{SCREEN_CONTEXT}}", orNotProvided(v.ScreenContext),
		"{{CREDENTIALS}}", CredentialsBlock(v.Credentials),
		"{{DOCUMENTS}}", DocumentsBlock(v.Documents),
		"{{MAX_CHARS}}", strconv.Itoa(CompactMaxChars),
	)
}

// TestCases renders the test-case prompt from the tests description.
func TestCases(description string) string {
	return render(testCasesTemplate, "{{DESCRIPTION}}", orNotProvided(description))
}

// Documentation renders the documentation prompt.
func Documentation(v View) string {
	return render(documentationTemplate,
		"{{NAME}}", orNotProvided(v.Name),
		"{{TARGET_URL}}", orNotProvided(v.TargetURL),
		"{{OBJECTIVE}}", orNotProvided(v.Objective),
		"{{SCREEN_CONTEXT}}", orNotProvided(v.ScreenContext),
		"{{DESCRIPTION}}", orNotProvided(v.Descriptions.Documentation),
		"{{UIUX_DESCRIPTION}}", orNotProvided(v.Descriptions.UIUX),
		"{{DOCUMENTS}}", DocumentsBlock(v.Documents),
	)
}

// Scripts renders the Playwright script prompt.
func Scripts(v View, cases []TestCase) string {
	return render(scriptsTemplate,
		"{{NAME}}", orNotProvided(v.Name),
		"{{TARGET_URL}}", orNotProvided(v.TargetURL),
		"{{OBJECTIVE}}", orNotProvided(v.Objective),
		"{{DESCRIPTION}}", orNotProvided(v.Descriptions.Playwright),
		"{{CREDENTIAL_NAMES}}", credentialNamesBlock(v.Credentials),
		"{{TEST_CASES}}", testCasesBlock(cases),
	)
}

// CredentialsBlock lists credentials one per line in input order.
func CredentialsBlock(creds []Credential) string {
	var b strings.Builder
	for _, c := range creds {
		name := strings.TrimSpace(c.FieldName)
		if name == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, orNotProvided(c.Value))
	}
	return blockOrNotProvided(b.String())
}

// DocumentsBlock renders each document's text under its file name.
func DocumentsBlock(docs []Document) string {
	var b strings.Builder
	for _, d := range docs {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n", orNotProvided(strings.TrimSpace(d.FileName)), text)
	}
	return blockOrNotProvided(b.String())
}

// EnvVarName maps a credential field to the environment variable the
// generated script reads.
func EnvVarName(fieldName string) string {
	var b strings.Builder
	b.WriteString("SQA_")
	for _, r := range strings.ToUpper(strings.TrimSpace(fieldName)) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Hash identifies a rendered prompt.
func Hash(prompt string) string {
	return util.SHA256Hex(prompt)
}

func credentialNamesBlock(creds []Credential) string {
	var b strings.Builder
	for _, c := range creds {
		name := strings.TrimSpace(c.FieldName)
		if name == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s -> process.env.%s\n", name, EnvVarName(name))
	}
	return blockOrNotProvided(b.String())
}

func testCasesBlock(cases []TestCase) string {
	var b strings.Builder
	for i, tc := range cases {
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, orNotProvided(tc.Title), orNotProvided(tc.ScenarioType))
		fmt.Fprintf(&b, "   Preconditions: %s\n", orNotProvided(tc.Preconditions))
		for _, s := range tc.Steps {
			fmt.Fprintf(&b, "   %d) %s => %s\n", s.Order, orNotProvided(s.Action), orNotProvided(s.ExpectedResult))
		}
		fmt.Fprintf(&b, "   Expected: %s\n", orNotProvided(tc.ExpectedResult))
	}
	return blockOrNotProvided(b.String())
}

func render(tpl string, pairs ...string) string {
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(tpl))
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotProvided
	}
	return strings.TrimSpace(s)
}

func blockOrNotProvided(s string) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return NotProvided
	}
	return s
}
