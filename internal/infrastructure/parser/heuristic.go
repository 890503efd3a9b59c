package parser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
	"ThesisScout/internal/scanner"
)

const (
	containerSelector = "article, .post, .entry, .story, .blog-post, .article, .news-item"
	headingSelector   = "h1, h2, h3, h4"
	titleSelector     = ".title, .headline, .entry-title, .post-title"
	minContentChars   = 100
	minParagraphChars = 20
)

// HeuristicStrategy walks the index page DOM. Content-bearing containers
// become html_heuristic_content stubs; article-looking links become
// html_heuristic_links stubs.
type HeuristicStrategy struct {
	fetcher  ports.PageFetcher
	maxChars int
}

var _ scanner.Strategy = (*HeuristicStrategy)(nil)

// NewHeuristicStrategy wires the strategy with a page fetcher.
func NewHeuristicStrategy(fetcher ports.PageFetcher, maxChars int) *HeuristicStrategy {
	return &HeuristicStrategy{fetcher: fetcher, maxChars: maxChars}
}

// Name identifies the strategy inside the chain.
func (h *HeuristicStrategy) Name() string {
	return "html_heuristic"
}

// Discover returns content stubs first, then link stubs.
func (h *HeuristicStrategy) Discover(ctx context.Context, req scanner.Request) ([]domain.ArticleStub, error) {
	doc, base, err := fetchDocument(ctx, h.fetcher, req.IndexURL)
	if err != nil {
		return nil, err
	}

	stubs := h.extractContent(doc, base)
	used := map[string]bool{}
	for _, s := range stubs {
		used[s.URL] = true
	}

	for _, stub := range h.extractLinks(doc, base) {
		if used[stub.URL] {
			continue
		}
		used[stub.URL] = true
		stubs = append(stubs, stub)
	}
	return stubs, nil
}

func (h *HeuristicStrategy) extractContent(doc *goquery.Document, base *url.URL) []domain.ArticleStub {
	var stubs []domain.ArticleStub
	doc.Find(containerSelector).Each(func(i int, sel *goquery.Selection) {
		if sel.ParentsFiltered(containerSelector).Length() > 0 {
			return
		}

		text := paragraphText(sel, minParagraphChars)
		if len(text) <= minContentChars {
			return
		}

		heading := sel.Find(headingSelector).First()
		if heading.Length() == 0 {
			heading = sel.Find(titleSelector).First()
		}
		title := cleanText(heading.Text())

		link := heading.Find("a[href]").First()
		if link.Length() == 0 {
			link = sel.Find("a[href]").First()
		}

		stubURL := fmt.Sprintf("%s%s%d", strings.TrimRight(base.String(), "/"), domain.InlineFragment, i+1)
		if href, ok := link.Attr("href"); ok {
			if u, ok := resolveLink(base, href); ok && isLikelyArticleURL(u, base) {
				stubURL = u.String()
			}
		}

		stub := domain.ArticleStub{
			URL:    stubURL,
			Title:  title,
			Text:   truncate(text, h.maxChars),
			Method: domain.MethodHTMLContent,
		}
		if dt, ok := sel.Find("time[datetime]").First().Attr("datetime"); ok {
			stub.PublishedAt = parseDate(dt)
		}
		sel.Find(".author, .byline, [rel=author]").Each(func(_ int, a *goquery.Selection) {
			stub.Authors = appendUnique(stub.Authors, cleanAuthor(a.Text()))
		})
		stubs = append(stubs, stub)
	})
	return stubs
}

func (h *HeuristicStrategy) extractLinks(doc *goquery.Document, base *url.URL) []domain.ArticleStub {
	var stubs []domain.ArticleStub
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		u, ok := resolveLink(base, href)
		if !ok || !isLikelyArticleURL(u, base) {
			return
		}

		inHeading := a.ParentsFiltered(headingSelector).Length() > 0 || a.ParentsFiltered(titleSelector).Length() > 0
		if !inHeading && !looksLikeArticlePath(u) {
			return
		}

		title := cleanText(a.Text())
		if title == "" {
			title, _ = a.Attr("title")
			title = cleanText(title)
		}
		stubs = append(stubs, domain.ArticleStub{
			URL:    u.String(),
			Title:  title,
			Method: domain.MethodHTMLLinks,
		})
	})
	return stubs
}

func cleanAuthor(value string) string {
	value = cleanText(value)
	lower := strings.ToLower(value)
	for _, prefix := range []string{"by ", "written by ", "posted by "} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(value[len(prefix):])
		}
	}
	return value
}
