package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
	"ThesisScout/internal/scanner"
)

var articleTypes = map[string]bool{
	"Article": true, "NewsArticle": true, "BlogPosting": true, "TechArticle": true,
	"Report": true, "AnalysisNewsArticle": true, "ScholarlyArticle": true, "OpinionNewsArticle": true,
}

// StructuredStrategy reads schema.org JSON-LD and OpenGraph metadata
// embedded in the index page.
type StructuredStrategy struct {
	fetcher  ports.PageFetcher
	maxChars int
}

var _ scanner.Strategy = (*StructuredStrategy)(nil)

// NewStructuredStrategy wires the strategy with a page fetcher.
func NewStructuredStrategy(fetcher ports.PageFetcher, maxChars int) *StructuredStrategy {
	return &StructuredStrategy{fetcher: fetcher, maxChars: maxChars}
}

// Name identifies the strategy inside the chain.
func (s *StructuredStrategy) Name() string {
	return string(domain.MethodStructured)
}

// Discover returns one stub per article-typed JSON-LD node.
func (s *StructuredStrategy) Discover(ctx context.Context, req scanner.Request) ([]domain.ArticleStub, error) {
	doc, base, err := fetchDocument(ctx, s.fetcher, req.IndexURL)
	if err != nil {
		return nil, err
	}

	var stubs []domain.ArticleStub
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, script *goquery.Selection) {
		var node any
		if err := json.Unmarshal([]byte(script.Text()), &node); err != nil {
			return
		}
		stubs = append(stubs, s.walk(node, base)...)
	})

	if len(stubs) == 0 {
		if stub, ok := s.openGraph(doc, base); ok {
			stubs = append(stubs, stub)
		}
	}
	return stubs, nil
}

func (s *StructuredStrategy) walk(node any, base *url.URL) []domain.ArticleStub {
	switch v := node.(type) {
	case []any:
		var out []domain.ArticleStub
		for _, child := range v {
			out = append(out, s.walk(child, base)...)
		}
		return out
	case map[string]any:
		var out []domain.ArticleStub
		types := jsonTypes(v["@type"])
		if hasAny(types, articleTypes) {
			if stub, ok := s.stubFromNode(v, base); ok {
				out = append(out, stub)
			}
		}
		if types["ItemList"] {
			out = append(out, s.listItems(v["itemListElement"], base)...)
		}
		for _, key := range []string{"@graph", "blogPost", "mainEntity", "hasPart"} {
			if child, ok := v[key]; ok {
				out = append(out, s.walk(child, base)...)
			}
		}
		return out
	}
	return nil
}

func (s *StructuredStrategy) listItems(elements any, base *url.URL) []domain.ArticleStub {
	list, ok := elements.([]any)
	if !ok {
		return nil
	}
	var out []domain.ArticleStub
	for _, el := range list {
		switch item := el.(type) {
		case string:
			if u, ok := resolveLink(base, item); ok {
				out = append(out, domain.ArticleStub{URL: u.String(), Method: domain.MethodStructured})
			}
		case map[string]any:
			if inner, ok := item["item"]; ok {
				if str, isStr := inner.(string); isStr {
					if u, ok := resolveLink(base, str); ok {
						out = append(out, domain.ArticleStub{URL: u.String(), Title: jsonString(item["name"]), Method: domain.MethodStructured})
					}
					continue
				}
				if m, isMap := inner.(map[string]any); isMap {
					if stub, ok := s.stubFromNode(m, base); ok {
						out = append(out, stub)
					}
				}
				continue
			}
			if stub, ok := s.stubFromNode(item, base); ok {
				out = append(out, stub)
			}
		}
	}
	return out
}

func (s *StructuredStrategy) stubFromNode(node map[string]any, base *url.URL) (domain.ArticleStub, bool) {
	link := jsonString(node["url"])
	if link == "" {
		link = jsonString(node["mainEntityOfPage"])
	}
	if link == "" {
		link = jsonString(node["@id"])
	}
	u, ok := resolveLink(base, link)
	if !ok {
		return domain.ArticleStub{}, false
	}

	title := jsonString(node["headline"])
	if title == "" {
		title = jsonString(node["name"])
	}
	text := jsonString(node["articleBody"])
	if text == "" {
		text = jsonString(node["description"])
	}

	return domain.ArticleStub{
		URL:         u.String(),
		Title:       cleanText(title),
		Text:        truncate(stripHTML(text), s.maxChars),
		PublishedAt: parseDate(jsonString(node["datePublished"])),
		Authors:     jsonNames(node["author"]),
		TopImage:    jsonString(node["image"]),
		Method:      domain.MethodStructured,
	}, true
}

// openGraph covers index URLs that point at a single article page.
func (s *StructuredStrategy) openGraph(doc *goquery.Document, base *url.URL) (domain.ArticleStub, bool) {
	if !strings.EqualFold(metaContent(doc, `meta[property="og:type"]`), "article") {
		return domain.ArticleStub{}, false
	}
	link := metaContent(doc, `meta[property="og:url"]`)
	if link == "" {
		link = base.String()
	}
	u, ok := resolveLink(base, link)
	if !ok {
		return domain.ArticleStub{}, false
	}
	return domain.ArticleStub{
		URL:         u.String(),
		Title:       cleanText(metaContent(doc, `meta[property="og:title"]`)),
		Text:        truncate(cleanText(metaContent(doc, `meta[property="og:description"]`)), s.maxChars),
		PublishedAt: parseDate(metaContent(doc, `meta[property="article:published_time"]`)),
		TopImage:    metaContent(doc, `meta[property="og:image"]`),
		Method:      domain.MethodStructured,
	}, true
}

func fetchDocument(ctx context.Context, fetcher ports.PageFetcher, pageURL string) (*goquery.Document, *url.URL, error) {
	page, err := fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse document: %w", err)
	}
	final := page.FinalURL
	if final == "" {
		final = pageURL
	}
	base, err := url.Parse(final)
	if err != nil {
		return nil, nil, fmt.Errorf("parse page url: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, ok := resolveLink(base, href); ok {
			base = resolved
		}
	}
	return doc, base, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

func jsonTypes(v any) map[string]bool {
	out := map[string]bool{}
	switch t := v.(type) {
	case string:
		out[t] = true
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				out[s] = true
			}
		}
	}
	return out
}

func hasAny(set, wanted map[string]bool) bool {
	for k := range set {
		if wanted[k] {
			return true
		}
	}
	return false
}

// jsonString flattens the string, {"@id"|"url"|"name"} and [first] shapes
// schema.org allows for a single value.
func jsonString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, key := range []string{"@id", "url", "name"} {
			if s := jsonString(t[key]); s != "" {
				return s
			}
		}
	case []any:
		for _, item := range t {
			if s := jsonString(item); s != "" {
				return s
			}
		}
	}
	return ""
}

func jsonNames(v any) []string {
	switch t := v.(type) {
	case string:
		return appendUnique(nil, t)
	case map[string]any:
		return appendUnique(nil, jsonString(t["name"]))
	case []any:
		var out []string
		for _, item := range t {
			out = appendUnique(out, jsonNames(item)...)
		}
		return out
	}
	return nil
}
