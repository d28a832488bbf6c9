package chat

import (
	"regexp"
	"strings"
)

var (
	thinkMarker = regexp.MustCompile(`</?think>`)
	blankRun    = regexp.MustCompile(`\n{3,}`)
)

// CleanReasoning removes <think> and </think> markers from a reasoning trace
// and collapses runs of three or more newlines into a blank line. Answer
// content never goes through it.
func CleanReasoning(s string) string {
	if s == "" {
		return s
	}
	s = thinkMarker.ReplaceAllString(s, "")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// annotate appends the error marker to partial content.
func annotate(content string, err error) string {
	marker := "❌ Error: " + err.Error()
	if content == "" {
		return marker
	}
	return content + "\n\n" + marker
}
