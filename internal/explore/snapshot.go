package explore

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"smartqa-backend/internal/prompts"
)

// Element is one interactive or structural element seen on the page.
type Element struct {
	Tag         string `json:"tag"`
	Role        string `json:"role"`
	Type        string `json:"type"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	TestID      string `json:"testId"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder"`
	Text        string `json:"text"`
	Href        string `json:"href"`
	Required    bool   `json:"required"`
	Disabled    bool   `json:"disabled"`
}

// Snapshot is what the browser saw after loading the target.
type Snapshot struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Text     string    `json:"text"`
	Elements []Element `json:"elements"`
	SignedIn bool      `json:"-"`
}

// Target describes the page to snapshot.
type Target struct {
	URL         string
	Credentials []prompts.Credential
}

// Render formats the snapshot for a prompt, capping visible text at
// maxTextRunes. Credential values are never part of a snapshot.
func (s Snapshot) Render(maxTextRunes int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", orDash(s.URL))
	fmt.Fprintf(&b, "Title: %s\n", orDash(s.Title))
	if s.SignedIn {
		b.WriteString("Signed in with the provided credentials before capture.\n")
	}
	b.WriteString("Elements:\n")
	if len(s.Elements) == 0 {
		b.WriteString("- none captured\n")
	}
	for _, el := range s.Elements {
		b.WriteString("- ")
		b.WriteString(el.describe())
		b.WriteByte('\n')
	}
	text := strings.TrimSpace(s.Text)
	if maxTextRunes > 0 && utf8.RuneCountInString(text) > maxTextRunes {
		text = string([]rune(text)[:maxTextRunes]) + " [truncated]"
	}
	fmt.Fprintf(&b, "Visible text:\n%s", orDash(text))
	return b.String()
}

func (e Element) describe() string {
	parts := []string{e.Tag}
	add := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, fmt.Sprintf("%s=%q", k, v))
		}
	}
	add("role", e.Role)
	add("type", e.Type)
	add("id", e.ID)
	add("name", e.Name)
	add("data-testid", e.TestID)
	add("label", e.Label)
	add("placeholder", e.Placeholder)
	add("text", e.Text)
	add("href", e.Href)
	if e.Required {
		parts = append(parts, "required")
	}
	if e.Disabled {
		parts = append(parts, "disabled")
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
