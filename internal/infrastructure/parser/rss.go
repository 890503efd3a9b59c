package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
	"ThesisScout/internal/scanner"
)

var errNoFeed = errors.New("no feed found")

// FeedStrategy probes feeds advertised by the index page and well-known feed
// paths; the first feed with items wins.
type FeedStrategy struct {
	fetcher  ports.PageFetcher
	paths    []string
	maxChars int
}

var _ scanner.Strategy = (*FeedStrategy)(nil)

// NewFeedStrategy wires the strategy with a page fetcher and probe paths.
func NewFeedStrategy(fetcher ports.PageFetcher, paths []string, maxChars int) *FeedStrategy {
	return &FeedStrategy{fetcher: fetcher, paths: paths, maxChars: maxChars}
}

// Name identifies the strategy inside the chain.
func (f *FeedStrategy) Name() string {
	return string(domain.MethodRSS)
}

// Discover returns the items of the first parseable, non-empty feed.
func (f *FeedStrategy) Discover(ctx context.Context, req scanner.Request) ([]domain.ArticleStub, error) {
	candidates := append(f.advertised(ctx, req.IndexURL), candidateURLs(req.IndexURL, f.paths)...)

	lastErr := errNoFeed
	tried := map[string]bool{}
	for _, candidate := range candidates {
		if tried[candidate] {
			continue
		}
		tried[candidate] = true
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		page, err := f.fetcher.Fetch(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}

		feed, err := gofeed.NewParser().Parse(bytes.NewReader(page.Body))
		if err != nil {
			lastErr = fmt.Errorf("parse feed %s: %w", candidate, err)
			continue
		}
		if len(feed.Items) == 0 {
			continue
		}

		base, _ := url.Parse(candidate)
		if stubs := f.convert(feed, base); len(stubs) > 0 {
			return stubs, nil
		}
	}
	return nil, lastErr
}

// advertised lists <link rel="alternate"> feeds of the index page. The index
// fetch is shared with earlier strategies, so a blocked index costs nothing.
func (f *FeedStrategy) advertised(ctx context.Context, indexURL string) []string {
	page, err := f.fetcher.Fetch(ctx, indexURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil
	}
	base, _ := url.Parse(indexURL)

	var out []string
	doc.Find(`link[rel="alternate"]`).Each(func(_ int, link *goquery.Selection) {
		kind, _ := link.Attr("type")
		kind = strings.ToLower(kind)
		if !strings.Contains(kind, "rss") && !strings.Contains(kind, "atom") {
			return
		}
		href, _ := link.Attr("href")
		if u, ok := resolveLink(base, href); ok {
			out = append(out, u.String())
		}
	})
	return out
}

func (f *FeedStrategy) convert(feed *gofeed.Feed, base *url.URL) []domain.ArticleStub {
	stubs := make([]domain.ArticleStub, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		u, ok := resolveLink(base, item.Link)
		if !ok {
			continue
		}

		text := item.Content
		if text == "" {
			text = item.Description
		}

		stub := domain.ArticleStub{
			URL:    u.String(),
			Title:  cleanText(item.Title),
			Text:   truncate(stripHTML(text), f.maxChars),
			Method: domain.MethodRSS,
		}
		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			stub.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := item.UpdatedParsed.UTC()
			stub.PublishedAt = &t
		}
		for _, person := range item.Authors {
			if person != nil {
				stub.Authors = appendUnique(stub.Authors, person.Name)
			}
		}
		if item.Image != nil {
			stub.TopImage = item.Image.URL
		}
		stubs = append(stubs, stub)
	}
	return stubs
}
