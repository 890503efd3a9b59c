package matcher

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
)

const (
	reasonSeparator   = " | "
	placeholderReason = "placeholder content"
	maxListedKeywords = 5
)

// Matcher ranks articles against theses by embedding similarity.
type Matcher struct {
	minScore float64
}

var _ ports.Ranker = (*Matcher)(nil)

// New builds a matcher from configuration.
func New(cfg config.MatcherConfig) *Matcher {
	return &Matcher{minScore: cfg.MinScore}
}

// Rank scores every article against one thesis and returns them in ranking
// order. Nothing is dropped; results under the minimum score sort last.
func (m *Matcher) Rank(thesis domain.ThesisDocument, articles []domain.Article) []domain.MatchResult {
	results := make([]domain.MatchResult, 0, len(articles))
	for _, article := range articles {
		results = append(results, m.score(thesis, article))
	}
	Sort(results)
	return results
}

// RankAll scores every article against each active thesis.
func (m *Matcher) RankAll(theses []domain.ThesisDocument, articles []domain.Article) []domain.MatchResult {
	var results []domain.MatchResult
	for _, thesis := range theses {
		if !thesis.Active {
			continue
		}
		for _, article := range articles {
			results = append(results, m.score(thesis, article))
		}
	}
	Sort(results)
	return results
}

func (m *Matcher) score(thesis domain.ThesisDocument, article domain.Article) domain.MatchResult {
	result := domain.MatchResult{
		Article:     article,
		ThesisID:    thesis.ID,
		ThesisTitle: thesis.Title,
	}
	if article.IsPlaceholder() {
		result.Reasons = []string{placeholderReason}
	} else {
		result.Score = CosineSimilarity(thesis.Embedding.Vector, article.Embedding.Vector)
		result.Reasons = reasons(thesis, article, result.Score)
	}
	result.Reason = strings.Join(result.Reasons, reasonSeparator)
	result.BelowMin = result.Score < m.minScore
	return result
}

func reasons(thesis domain.ThesisDocument, article domain.Article, score float64) []string {
	signals := []string{fmt.Sprintf("vector similarity: %.2f", score)}

	if shared := intersect(thesis.Keywords, article.Keywords); len(shared) > 0 {
		listed := shared
		if len(listed) > maxListedKeywords {
			listed = listed[:maxListedKeywords]
		}
		signals = append(signals, fmt.Sprintf("keyword overlap: %d (%s)", len(shared), strings.Join(listed, ", ")))
	}
	if shared := intersect(thesis.Companies, article.Companies); len(shared) > 0 {
		signals = append(signals, "shared companies: "+strings.Join(shared, ", "))
	}
	return dedup(signals)
}

// intersect returns the values of b also present in a, compared
// case-insensitively, sorted and unique.
func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	want := make(map[string]bool, len(a))
	for _, v := range a {
		want[strings.ToLower(strings.TrimSpace(v))] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, v := range b {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if want[key] && !seen[key] {
			seen[key] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func dedup(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// CosineSimilarity is clamped to [0,1]. Mismatched dimensions, zero vectors
// and NaN give 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Sort orders results: below-minimum last, then score descending, newer
// publish date first (missing dates last), then URL and thesis id ascending.
func Sort(results []domain.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.BelowMin != b.BelowMin {
			return !a.BelowMin
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ad, bd := a.Article.PublishedAt, b.Article.PublishedAt
		switch {
		case ad != nil && bd == nil:
			return true
		case ad == nil && bd != nil:
			return false
		case ad != nil && bd != nil && !ad.Equal(*bd):
			return ad.After(*bd)
		}
		if a.Article.URL != b.Article.URL {
			return a.Article.URL < b.Article.URL
		}
		return a.ThesisID < b.ThesisID
	})
}

// Top returns at most k results; k <= 0 keeps all.
func Top(results []domain.MatchResult, k int) []domain.MatchResult {
	if k > 0 && len(results) > k {
		return results[:k]
	}
	return results
}
