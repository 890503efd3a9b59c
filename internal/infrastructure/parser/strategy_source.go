package parser

import (
	"context"
	"errors"
	"log/slog"

	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
	"ThesisScout/internal/scanner"
)

// StrategySource implements ArticleDiscoverer via the ordered scanner chain.
type StrategySource struct {
	fetcher ports.PageFetcher
	cfg     config.DiscoveryConfig
	logger  *slog.Logger
}

var (
	_ ports.ArticleDiscoverer = (*StrategySource)(nil)
	_ ports.KeywordSearcher   = (*StrategySource)(nil)
)

// NewStrategySource wires the fetcher with discovery settings.
func NewStrategySource(fetcher ports.PageFetcher, cfg config.DiscoveryConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  log,
	}
}

// Discover validates the index URL and runs structured, heuristic, feed and
// sitemap strategies in order, falling back to placeholders.
func (s *StrategySource) Discover(ctx context.Context, indexURL string, maxArticles int) (domain.DiscoveryResult, error) {
	normalized, err := NormalizeIndexURL(indexURL)
	if err != nil {
		return domain.DiscoveryResult{}, err
	}
	if maxArticles < 1 {
		return domain.DiscoveryResult{}, domain.InvalidInput("max articles must be at least 1, got %d", maxArticles)
	}

	s.debug("discover", "url", normalized, "max_articles", maxArticles)

	result := s.chain().Run(ctx, scanner.Request{IndexURL: normalized, MaxArticles: maxArticles})

	if result.Exhausted && s.logger != nil {
		s.logger.Warn("discovery exhausted", "url", normalized, "attempts", len(result.Attempts))
	}
	s.debug("discover done", "url", normalized, "articles", len(result.Stubs))
	return result, nil
}

// Search queries the configured engines in order until maxResults results
// are collected. No placeholders are synthesized for an empty search.
func (s *StrategySource) Search(ctx context.Context, keyword string, maxResults int) (domain.DiscoveryResult, error) {
	keyword = cleanText(keyword)
	if keyword == "" {
		return domain.DiscoveryResult{}, domain.InvalidInput("search keyword is empty")
	}
	if maxResults < 1 {
		return domain.DiscoveryResult{}, domain.InvalidInput("max results must be at least 1, got %d", maxResults)
	}
	if len(s.cfg.Search.Engines) == 0 {
		return domain.DiscoveryResult{}, errors.New("no search engines configured")
	}

	memo := newMemoFetcher(s.fetcher)
	strategies := make([]scanner.Strategy, 0, len(s.cfg.Search.Engines))
	for _, engine := range s.cfg.Search.Engines {
		strategies = append(strategies, NewSearchStrategy(memo, engine, s.cfg.MaxTextChars))
	}

	s.debug("search", "keyword", keyword, "max_results", maxResults)
	result := scanner.NewChain(maxResults, s.logger, strategies...).Run(ctx, scanner.Request{
		IndexURL:    domain.SearchSourceURL(keyword),
		Keyword:     keyword,
		MaxArticles: maxResults,
	})
	s.debug("search done", "keyword", keyword, "results", len(result.Stubs))
	return result, nil
}

// chain is rebuilt per run so the page memo never outlives one discovery.
func (s *StrategySource) chain() *scanner.Chain {
	memo := newMemoFetcher(s.fetcher)
	return scanner.NewChain(s.cfg.MinYield, s.logger,
		NewStructuredStrategy(memo, s.cfg.MaxTextChars),
		NewHeuristicStrategy(memo, s.cfg.MaxTextChars),
		NewFeedStrategy(memo, s.cfg.FeedPaths, s.cfg.MaxTextChars),
		NewSitemapStrategy(memo, s.cfg.SitemapPaths, s.cfg.MaxChildSitemaps),
	).WithFallback(NewPlaceholderStrategy(s.cfg.PlaceholderCount))
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
