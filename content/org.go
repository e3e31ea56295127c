package content

import (
	"regexp"
	"strings"
)

var orgHeader = regexp.MustCompile(`^(\*+)\s+(.+)$`)

// Section is one headline of an org-mode document and the lines under it.
type Section struct {
	Level   int      `json:"level" yaml:"level"`
	Title   string   `json:"title" yaml:"title"`
	Content []string `json:"content" yaml:"content"`
}

// ParseOrg splits an org-mode document into flat sections, one per headline.
// Lines before the first headline are dropped.
func ParseOrg(text string) []Section {
	var (
		sections []Section
		current  *Section
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if m := orgHeader.FindStringSubmatch(line); m != nil {
			if current != nil {
				sections = append(sections, *current)
			}
			current = &Section{Level: len(m[1]), Title: m[2], Content: []string{}}
			continue
		}
		if current != nil {
			current.Content = append(current.Content, line)
		}
	}
	if current != nil {
		sections = append(sections, *current)
	}
	return sections
}

// FormatOrg trims each section body and drops its blank lines.
func FormatOrg(sections []Section) []Section {
	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		lines := []string{}
		body := strings.TrimSpace(strings.Join(s.Content, "\n"))
		for _, l := range strings.Split(body, "\n") {
			if strings.TrimSpace(l) != "" {
				lines = append(lines, l)
			}
		}
		out = append(out, Section{Level: s.Level, Title: s.Title, Content: lines})
	}
	return out
}
