// internal/verdict/verdict.go
// Package verdict splits a debate synthesis message into its four
// sections. The synthesis prompt fixes the headings, but models take
// liberties with markdown, so the matcher tolerates heading markers,
// bold, numbering and case differences.
package verdict

import (
	"regexp"
	"strings"
)

// Verdict is the structured form of a synthesis message. Raw always
// holds the full original text; sections are empty when not found.
type Verdict struct {
	Agreements    string
	Disagreements string
	Synthesis     string
	OpenQuestions string
	Raw           string
}

// Section is one titled slice of a verdict, for ordered rendering.
type Section struct {
	Title string
	Body  string
}

var sectionRE = regexp.MustCompile(`(?im)^[#>\s]*(?:\d+[.)]\s*)?\**\s*(points of agreement|points of disagreement|recommended synthesis|open questions)\s*[*:]*\s*$`)

// Parse extracts the four sections. Text between a heading and the
// next heading (or the end) becomes that section's body. Content
// before the first heading is ignored; with no headings at all the
// verdict is raw-only.
func Parse(content string) Verdict {
	v := Verdict{Raw: content}

	matches := sectionRE.FindAllStringSubmatchIndex(content, -1)
	for k, m := range matches {
		name := strings.ToLower(content[m[2]:m[3]])
		start := m[1]
		end := len(content)
		if k+1 < len(matches) {
			end = matches[k+1][0]
		}
		body := strings.TrimSpace(content[start:end])

		switch name {
		case "points of agreement":
			v.Agreements = body
		case "points of disagreement":
			v.Disagreements = body
		case "recommended synthesis":
			v.Synthesis = body
		case "open questions":
			v.OpenQuestions = body
		}
	}
	return v
}

// HasSections reports whether any section carries content. When false,
// consumers should fall back to Raw.
func (v Verdict) HasSections() bool {
	return v.Agreements != "" || v.Disagreements != "" || v.Synthesis != "" || v.OpenQuestions != ""
}

// Sections returns the non-empty sections in canonical order.
func (v Verdict) Sections() []Section {
	ordered := []Section{
		{Title: "Points of agreement", Body: v.Agreements},
		{Title: "Points of disagreement", Body: v.Disagreements},
		{Title: "Recommended synthesis", Body: v.Synthesis},
		{Title: "Open questions", Body: v.OpenQuestions},
	}
	out := make([]Section, 0, len(ordered))
	for _, s := range ordered {
		if s.Body != "" {
			out = append(out, s)
		}
	}
	return out
}
