package usecase

import (
	"context"
	"fmt"
	"strings"

	"ThesisScout/internal/domain"
)

const defaultDigestSize = 5

// MonitorReport summarizes one pass over the starred sources.
type MonitorReport struct {
	Sources     int
	NewArticles int
	Matches     []domain.MatchResult
	Notified    bool
	Warnings    []string
}

// MonitorStarred rediscovers every starred index source and reruns every
// starred keyword search, processes the articles not seen before and
// publishes a digest of the best new matches.
func (p *Pipeline) MonitorStarred(ctx context.Context) (MonitorReport, error) {
	var report MonitorReport
	if p.store == nil {
		return report, errNoStore
	}

	sources, err := p.store.ListSources(ctx, true)
	if err != nil {
		return report, fmt.Errorf("list starred sources: %w", err)
	}

	var fresh []domain.Article
	for _, source := range sources {
		if source.Kind != domain.SourceIndex && source.Kind != domain.SourceSearch {
			continue
		}
		if ctx.Err() != nil {
			report.Warnings = append(report.Warnings, "monitoring interrupted: "+ctx.Err().Error())
			break
		}
		report.Sources++

		articles, warnings := p.monitorSource(ctx, source)
		report.Warnings = append(report.Warnings, warnings...)
		fresh = append(fresh, articles...)
	}
	report.NewArticles = len(fresh)
	if len(fresh) == 0 {
		return report, nil
	}

	theses, err := p.store.ListTheses(ctx, true)
	if err != nil {
		return report, fmt.Errorf("list theses: %w", err)
	}
	report.Matches = digestMatches(p.ranker.RankAll(theses, fresh), p.digestSize())
	if len(report.Matches) == 0 || p.notifier == nil {
		return report, nil
	}

	if err := p.notifier.PublishDigest(ctx, FormatDigest(report.Matches)); err != nil {
		return report, fmt.Errorf("publish digest: %w", err)
	}
	report.Notified = true
	return report, nil
}

func (p *Pipeline) monitorSource(ctx context.Context, source domain.Source) ([]domain.Article, []string) {
	discovery, err := p.rediscover(ctx, source)
	if err != nil {
		return nil, []string{fmt.Sprintf("%s: %v", source.URL, err)}
	}

	candidates := make([]string, 0, len(discovery.Stubs))
	for _, stub := range discovery.Stubs {
		if !stub.IsPlaceholder() {
			candidates = append(candidates, stub.URL)
		}
	}
	known, err := p.store.KnownURLs(ctx, candidates)
	if err != nil {
		return nil, []string{fmt.Sprintf("%s: %v", source.URL, err)}
	}

	limit := p.settings.Monitor.NewArticlesPerSource
	var unseen []domain.ArticleStub
	for _, stub := range discovery.Stubs {
		if stub.IsPlaceholder() || known[stub.URL] {
			continue
		}
		if limit > 0 && len(unseen) >= limit {
			break
		}
		unseen = append(unseen, stub)
	}
	p.debug("monitored source", "url", source.URL, "discovered", len(discovery.Stubs), "new", len(unseen))

	result := p.process(ctx, source.URL, unseen)
	result.Source = source
	result.Source.ArticlesFound = len(discovery.Stubs)
	result.Source.Processed = source.Processed + result.Succeeded
	p.persist(ctx, &result)

	if err := p.store.MarkMonitored(context.WithoutCancel(ctx), result.Source.ID, p.now()); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("mark monitored %s: %v", source.URL, err))
	}
	return result.Articles, result.Warnings
}

func (p *Pipeline) rediscover(ctx context.Context, source domain.Source) (domain.DiscoveryResult, error) {
	if source.Kind != domain.SourceSearch {
		return p.discoverer.Discover(ctx, source.URL, p.defaultMaxArticles())
	}
	keyword, ok := domain.SearchKeyword(source.URL)
	switch {
	case !ok:
		return domain.DiscoveryResult{}, domain.InvalidInput("search source without keyword")
	case p.searcher == nil:
		return domain.DiscoveryResult{}, errNoSearcher
	}
	return p.searcher.Search(ctx, keyword, p.defaultSearchResults())
}

func (p *Pipeline) digestSize() int {
	if p.settings.Monitor.DigestSize > 0 {
		return p.settings.Monitor.DigestSize
	}
	return defaultDigestSize
}

func digestMatches(results []domain.MatchResult, size int) []domain.MatchResult {
	var out []domain.MatchResult
	for _, r := range results {
		if r.BelowMin || r.Article.IsPlaceholder() {
			continue
		}
		out = append(out, r)
		if len(out) == size {
			break
		}
	}
	return out
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")

// FormatDigest renders matches as a Telegram Markdown message.
func FormatDigest(matches []domain.MatchResult) string {
	var b strings.Builder
	b.WriteString("*New articles matching your theses*\n")
	for i, m := range matches {
		title := m.Article.Title
		if title == "" {
			title = m.Article.URL
		}
		fmt.Fprintf(&b, "\n%d. [%s](%s)\n", i+1, markdownEscaper.Replace(title), m.Article.URL)
		fmt.Fprintf(&b, "   %s · score %.2f\n", markdownEscaper.Replace(m.ThesisTitle), m.Score)
	}
	return b.String()
}
