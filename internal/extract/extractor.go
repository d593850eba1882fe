// Package extract finds tagged to-do annotations in file text.
//
// Annotations are recognized by comment lead-ins only. No language grammar is
// involved, so a tag inside a string literal that happens to look like a
// comment is picked up as well.
package extract

import (
	"regexp"
	"strings"

	"github.com/spetr/doit/pkg/types"
)

// MinTextLength is the noise threshold: annotations whose trimmed text is this
// long or shorter are not worth tracking as tasks.
const MinTextLength = 8

var tagGroup = func() string {
	names := make([]string, len(types.AllTags))
	for i, t := range types.AllTags {
		names[i] = string(t)
	}
	return "(" + strings.Join(names, "|") + ")"
}()

// patterns are tried in order; the first match wins.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*//\s*` + tagGroup + `:?\s*(.+)$`),
	regexp.MustCompile(`(?i)^\s*/\*\s*` + tagGroup + `:?\s*(.+?)\s*\*/$`),
	regexp.MustCompile(`(?i)^\s*<!--\s*` + tagGroup + `:?\s*(.+?)\s*-->$`),
	regexp.MustCompile(`(?i)^\s*#\s*` + tagGroup + `:?\s*(.+)$`),
	regexp.MustCompile(`(?i)^\s*--\s*` + tagGroup + `:?\s*(.+)$`),
}

// Extract returns every annotation in text, in line order.
func Extract(text string) []types.Annotation {
	if text == "" {
		return nil
	}

	var result []types.Annotation
	for i, line := range strings.Split(text, "\n") {
		if a, ok := ExtractLine(line, i); ok {
			result = append(result, a)
		}
	}
	return result
}

// ExtractLine tests a single line. It returns false when the line carries no
// annotation, which is the normal negative case rather than an error.
func ExtractLine(line string, lineNumber int) (types.Annotation, bool) {
	line = strings.TrimSuffix(line, "\r")

	for _, p := range patterns {
		m := p.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		tag, _ := types.ParseTag(m[1])
		return types.Annotation{
			Tag:     tag,
			Text:    strings.TrimSpace(m[2]),
			Line:    lineNumber,
			RawLine: strings.TrimSpace(line),
		}, true
	}

	return types.Annotation{}, false
}

// Meaningful reports whether an annotation passes the noise threshold.
func Meaningful(a types.Annotation) bool {
	text := strings.TrimSpace(a.Text)
	return text != "" && len(text) > MinTextLength
}

// Filter drops annotations that fail the noise threshold.
func Filter(annotations []types.Annotation) []types.Annotation {
	var result []types.Annotation
	for _, a := range annotations {
		if Meaningful(a) {
			result = append(result, a)
		}
	}
	return result
}
