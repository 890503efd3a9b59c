package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
)

const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// GenericTerms are common business nouns that are never company names on
// their own. The AI prompt excludes them and both paths filter them out.
var GenericTerms = []string{
	"capital", "company", "corp", "inc", "llc", "ltd", "group", "holdings",
	"energy", "solutions", "industries", "green", "sustainable", "renewable",
	"technology", "tech", "systems", "services", "partners", "ventures",
	"fund", "investment", "management", "consulting", "advisory", "global",
	"power", "climate", "resources", "international",
}

// Extractor produces article features. The analyzer is optional; any error or
// panic it raises is replaced by the deterministic fallback.
type Extractor struct {
	analyzer ports.TextAnalyzer
	logger   *slog.Logger
}

var _ ports.FeatureExtractor = (*Extractor)(nil)

// New wires an extractor. A nil analyzer means fallback only.
func New(analyzer ports.TextAnalyzer, logger *slog.Logger) *Extractor {
	return &Extractor{analyzer: analyzer, logger: logger}
}

// Extract never fails.
func (e *Extractor) Extract(ctx context.Context, text, articleURL string) domain.Features {
	if e.analyzer != nil && strings.TrimSpace(text) != "" {
		features, err := e.analyze(ctx, text, articleURL)
		if err == nil {
			return complete(features, text, articleURL)
		}
		if e.logger != nil {
			e.logger.Warn("feature extraction fell back", "url", articleURL, "error", err)
		}
	}
	return Fallback(text, articleURL)
}

func (e *Extractor) analyze(ctx context.Context, text, articleURL string) (features domain.Features, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyzer panic: %v", r)
		}
	}()
	return e.analyzer.Analyze(ctx, text, articleURL)
}

// complete fills gaps in an AI answer and applies the company denylist.
func complete(f domain.Features, text, articleURL string) domain.Features {
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		f.Title = TitleFromURL(articleURL)
	}
	f.Summary = strings.TrimSpace(f.Summary)
	if f.Summary == "" {
		f.Summary = Summarize(text, summaryChars)
	}

	var keywords []string
	seen := map[string]bool{}
	for _, k := range f.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && !seen[k] {
			seen[k] = true
			keywords = append(keywords, k)
		}
	}
	f.Keywords = keywords
	f.Companies = FilterCompanies(f.Companies)
	f.Source = SourceAI
	return f
}

// FilterCompanies trims, dedups and drops generic names such as
// "Energy Solutions" or "Green Capital Inc".
func FilterCompanies(names []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.Trim(strings.TrimSpace(name), ".,;:!?\"'")
		key := strings.ToLower(name)
		if len(name) < 3 || seen[key] || IsGenericCompany(name) {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

// IsGenericCompany reports whether every word of name is a generic business
// term or a corporate suffix.
func IsGenericCompany(name string) bool {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '&' || r > 127)
	})
	for _, w := range words {
		if !corporateSuffixes[w] && !genericSet[w] {
			return false
		}
	}
	return true
}

var (
	genericSet        = toSet(GenericTerms)
	corporateSuffixes = toSet([]string{
		"inc", "corp", "corporation", "llc", "ltd", "limited", "co", "plc", "gmbh", "ag", "sa", "the", "and", "&",
	})
)

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
