package parser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"ThesisScout/internal/domain"
	"ThesisScout/internal/scanner"
)

// PlaceholderStrategy synthesizes stand-in articles so a discovery result is
// never empty. It performs no I/O.
type PlaceholderStrategy struct {
	count int
}

var _ scanner.Strategy = (*PlaceholderStrategy)(nil)

// NewPlaceholderStrategy returns a strategy producing count placeholders.
func NewPlaceholderStrategy(count int) *PlaceholderStrategy {
	if count < 1 {
		count = 1
	}
	return &PlaceholderStrategy{count: count}
}

// Name identifies the strategy inside the chain.
func (p *PlaceholderStrategy) Name() string {
	return string(domain.MethodPlaceholder)
}

// Discover returns min(count, MaxArticles) placeholder stubs.
func (p *PlaceholderStrategy) Discover(_ context.Context, req scanner.Request) ([]domain.ArticleStub, error) {
	n := p.count
	if req.MaxArticles > 0 && req.MaxArticles < n {
		n = req.MaxArticles
	}

	index := strings.TrimRight(req.IndexURL, "/")
	host := index
	if u, err := url.Parse(req.IndexURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}

	stubs := make([]domain.ArticleStub, 0, n)
	for i := 1; i <= n; i++ {
		stubs = append(stubs, domain.ArticleStub{
			URL:     fmt.Sprintf("%s#placeholder-%d", index, i),
			Title:   fmt.Sprintf("Placeholder %d for %s", i, host),
			Text:    fmt.Sprintf("No article content could be retrieved from %s. All discovery strategies failed or were blocked, so this entry stands in for article %d.", req.IndexURL, i),
			Authors: []string{"System Generated"},
			Method:  domain.MethodPlaceholder,
		})
	}
	return stubs, nil
}
