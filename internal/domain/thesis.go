package domain

import (
	"regexp"
	"strings"
	"time"
)

var listMarker = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

// ThesisDocument is an investment thesis articles are matched against.
type ThesisDocument struct {
	ID        string
	Title     string
	Text      string
	Points    []string
	Keywords  []string
	Companies []string
	Embedding Embedding
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ThesisPoints splits a thesis into its individual statements: non-trivial
// lines with list markers removed.
func ThesisPoints(text string) []string {
	var points []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		if len(line) > 10 {
			points = append(points, line)
		}
	}
	return points
}

// MatchResult scores one article against one thesis.
type MatchResult struct {
	Article     Article
	ThesisID    string
	ThesisTitle string
	Score       float64
	Reasons     []string
	Reason      string
	BelowMin    bool
}
