package parser

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
	"ThesisScout/internal/scanner"
)

var bylineYear = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// SearchStrategy reads the results page of one keyword search engine.
type SearchStrategy struct {
	fetcher  ports.PageFetcher
	engine   config.SearchEngine
	maxChars int
}

var _ scanner.Strategy = (*SearchStrategy)(nil)

// NewSearchStrategy wires one engine with a page fetcher.
func NewSearchStrategy(fetcher ports.PageFetcher, engine config.SearchEngine, maxChars int) *SearchStrategy {
	return &SearchStrategy{fetcher: fetcher, engine: engine, maxChars: maxChars}
}

// Name identifies the strategy inside the chain.
func (s *SearchStrategy) Name() string {
	return "search_" + s.engine.Name
}

// Discover turns every result block with a link into a keyword_search stub.
func (s *SearchStrategy) Discover(ctx context.Context, req scanner.Request) ([]domain.ArticleStub, error) {
	if strings.TrimSpace(req.Keyword) == "" {
		return nil, domain.InvalidInput("empty search keyword")
	}
	doc, base, err := fetchDocument(ctx, s.fetcher, SearchURL(s.engine.URLTemplate, req.Keyword))
	if err != nil {
		return nil, err
	}

	var stubs []domain.ArticleStub
	doc.Find(s.engine.ResultSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if req.MaxArticles > 0 && len(stubs) >= req.MaxArticles {
			return false
		}
		if stub, ok := s.result(sel, base); ok {
			stubs = append(stubs, stub)
		}
		return true
	})
	return stubs, nil
}

func (s *SearchStrategy) result(sel *goquery.Selection, base *url.URL) (domain.ArticleStub, bool) {
	heading := sel
	if s.engine.TitleSelector != "" {
		if h := sel.Find(s.engine.TitleSelector).First(); h.Length() > 0 {
			heading = h
		}
	}
	link := heading.Find("a[href]").First()
	if link.Length() == 0 {
		link = sel.Find("a[href]").First()
	}
	href, _ := link.Attr("href")
	u, ok := resolveLink(base, href)
	if !ok {
		return domain.ArticleStub{}, false
	}

	title := cleanText(heading.Text())
	if heading == sel {
		title = cleanText(link.Text())
	}
	stub := domain.ArticleStub{
		URL:    u.String(),
		Title:  title,
		Method: domain.MethodSearch,
	}
	if s.engine.SnippetSelector != "" {
		stub.Text = truncate(cleanText(sel.Find(s.engine.SnippetSelector).First().Text()), s.maxChars)
	}
	if s.engine.BylineSelector != "" {
		stub.Authors, stub.PublishedAt = parseByline(cleanText(sel.Find(s.engine.BylineSelector).First().Text()))
	}
	return stub, true
}

// SearchURL fills the {query} slot of an engine template.
func SearchURL(template, keyword string) string {
	return strings.ReplaceAll(template, "{query}", url.QueryEscape(cleanText(keyword)))
}

// parseByline reads "A Author, B Author - Venue, 2023 - host" lines.
func parseByline(line string) ([]string, *time.Time) {
	if line == "" {
		return nil, nil
	}
	var authors []string
	names, _, _ := strings.Cut(line, " - ")
	for _, name := range strings.Split(names, ",") {
		name = strings.Trim(strings.TrimSpace(name), "…")
		if name != "" && !bylineYear.MatchString(name) {
			authors = appendUnique(authors, name)
		}
	}

	match := bylineYear.FindString(line)
	if match == "" {
		return authors, nil
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return authors, nil
	}
	published := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return authors, &published
}
