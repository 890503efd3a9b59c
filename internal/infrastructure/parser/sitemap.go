package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
	"ThesisScout/internal/scanner"
)

var errNoSitemap = errors.New("no sitemap found")

type sitemapDocument struct {
	XMLName  xml.Name
	URLs     []sitemapURL   `xml:"url"`
	Children []sitemapChild `xml:"sitemap"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type sitemapChild struct {
	Loc string `xml:"loc"`
}

// SitemapStrategy reads urlset and sitemapindex documents.
type SitemapStrategy struct {
	fetcher     ports.PageFetcher
	paths       []string
	maxChildren int
}

var _ scanner.Strategy = (*SitemapStrategy)(nil)

// NewSitemapStrategy wires the strategy with a page fetcher and probe paths.
func NewSitemapStrategy(fetcher ports.PageFetcher, paths []string, maxChildren int) *SitemapStrategy {
	return &SitemapStrategy{fetcher: fetcher, paths: paths, maxChildren: maxChildren}
}

// Name identifies the strategy inside the chain.
func (s *SitemapStrategy) Name() string {
	return string(domain.MethodSitemap)
}

// Discover returns article-like URLs of the first useful sitemap, newest first.
func (s *SitemapStrategy) Discover(ctx context.Context, req scanner.Request) ([]domain.ArticleStub, error) {
	base, err := url.Parse(req.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("parse index url: %w", err)
	}

	lastErr := errNoSitemap
	for _, candidate := range candidateURLs(req.IndexURL, s.paths) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		doc, err := s.load(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}

		entries := doc.URLs
		if doc.XMLName.Local == "sitemapindex" {
			entries = s.expand(ctx, doc.Children)
		}

		if stubs := toSitemapStubs(entries, base); len(stubs) > 0 {
			return stubs, nil
		}
	}
	return nil, lastErr
}

func (s *SitemapStrategy) load(ctx context.Context, target string) (sitemapDocument, error) {
	page, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		return sitemapDocument{}, err
	}
	var doc sitemapDocument
	if err := xml.NewDecoder(bytes.NewReader(page.Body)).Decode(&doc); err != nil {
		return sitemapDocument{}, fmt.Errorf("parse sitemap %s: %w", target, err)
	}
	if doc.XMLName.Local != "urlset" && doc.XMLName.Local != "sitemapindex" {
		return sitemapDocument{}, fmt.Errorf("parse sitemap %s: unexpected root <%s>", target, doc.XMLName.Local)
	}
	return doc, nil
}

// expand follows child sitemaps, preferring ones named after posts or news.
func (s *SitemapStrategy) expand(ctx context.Context, children []sitemapChild) []sitemapURL {
	sort.SliceStable(children, func(i, j int) bool {
		return childPriority(children[i].Loc) < childPriority(children[j].Loc)
	})
	limit := s.maxChildren
	if limit <= 0 || limit > len(children) {
		limit = len(children)
	}

	var entries []sitemapURL
	for _, child := range children[:limit] {
		doc, err := s.load(ctx, strings.TrimSpace(child.Loc))
		if err != nil || doc.XMLName.Local != "urlset" {
			continue
		}
		entries = append(entries, doc.URLs...)
	}
	return entries
}

func childPriority(loc string) int {
	loc = strings.ToLower(loc)
	for _, marker := range []string{"post", "article", "news", "blog"} {
		if strings.Contains(loc, marker) {
			return 0
		}
	}
	return 1
}

func toSitemapStubs(entries []sitemapURL, base *url.URL) []domain.ArticleStub {
	stubs := make([]domain.ArticleStub, 0, len(entries))
	for _, entry := range entries {
		u, ok := resolveLink(base, entry.Loc)
		if !ok || !isLikelyArticleURL(u, base) {
			continue
		}
		stubs = append(stubs, domain.ArticleStub{
			URL:         u.String(),
			PublishedAt: parseDate(entry.LastMod),
			Method:      domain.MethodSitemap,
		})
	}

	sort.SliceStable(stubs, func(i, j int) bool {
		a, b := stubs[i].PublishedAt, stubs[j].PublishedAt
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.After(*b)
	})
	return stubs
}
