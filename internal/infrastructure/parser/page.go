package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
)

var (
	noiseSelector   = "script, style, noscript, nav, header, footer, aside, form, iframe, svg, .share, .social, .comments, .related"
	bodySelectors   = []string{"article", "[itemprop=articleBody]", ".post-content", ".entry-content", ".article-content", ".article-body", "main", "[role=main]", ".content", "#content"}
	blockSelector   = "p, h2, h3, h4, li, blockquote"
	authorSelectors = []string{".author", ".byline", "[rel=author]", "[itemprop=author]"}
	dateMeta        = []string{
		`meta[property="article:published_time"]`,
		`meta[name="pubdate"]`,
		`meta[name="publish-date"]`,
		`meta[name="date"]`,
		`meta[itemprop="datePublished"]`,
	}
)

// PageParser extracts article fields from a downloaded article page.
type PageParser struct {
	maxChars int
}

var _ ports.PageParser = (*PageParser)(nil)

// NewPageParser returns a parser truncating text to maxChars (0 keeps all).
func NewPageParser(maxChars int) *PageParser {
	return &PageParser{maxChars: maxChars}
}

// ParseArticle reads title, main text, publish date, authors and top image.
func (p *PageParser) ParseArticle(page domain.Page) (domain.ArticleStub, error) {
	if len(bytes.TrimSpace(page.Body)) == 0 {
		return domain.ArticleStub{}, fmt.Errorf("parse article %s: empty body", page.URL)
	}
	if !page.IsHTML() {
		return domain.ArticleStub{}, fmt.Errorf("parse article %s: unsupported content type %q", page.URL, page.ContentType)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return domain.ArticleStub{}, fmt.Errorf("parse article %s: %w", page.URL, err)
	}

	stub := domain.ArticleStub{
		URL:         page.URL,
		Title:       pageTitle(doc),
		PublishedAt: pageDate(doc),
		Authors:     pageAuthors(doc),
		TopImage:    metaContent(doc, `meta[property="og:image"]`),
	}
	if base, err := url.Parse(page.URL); err == nil && stub.TopImage != "" {
		if u, ok := resolveLink(base, stub.TopImage); ok {
			stub.TopImage = u.String()
		}
	}

	doc.Find(noiseSelector).Remove()
	stub.Text = truncate(mainText(doc), p.maxChars)
	return stub, nil
}

func pageTitle(doc *goquery.Document) string {
	if v := metaContent(doc, `meta[property="og:title"]`); v != "" {
		return cleanText(v)
	}
	if v := metaContent(doc, `meta[name="twitter:title"]`); v != "" {
		return cleanText(v)
	}
	if v := cleanText(doc.Find("h1").First().Text()); v != "" {
		return v
	}
	return cleanText(doc.Find("title").First().Text())
}

func pageDate(doc *goquery.Document) *time.Time {
	for _, selector := range dateMeta {
		if t := parseDate(metaContent(doc, selector)); t != nil {
			return t
		}
	}
	if t := parseDate(jsonLDDate(doc)); t != nil {
		return t
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if t := parseDate(v); t != nil {
			return t
		}
	}
	return parseDate(cleanText(doc.Find(".date, .published, .post-date, .entry-date").First().Text()))
}

func mainText(doc *goquery.Document) string {
	for _, selector := range bodySelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if text := blockText(sel); len(text) > 200 {
			return text
		}
	}
	if text := blockText(doc.Find("body")); text != "" {
		return text
	}
	return cleanText(doc.Find("body").Text())
}

func blockText(sel *goquery.Selection) string {
	var parts []string
	sel.Find(blockSelector).Each(func(_ int, block *goquery.Selection) {
		if block.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if text := cleanText(block.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

func pageAuthors(doc *goquery.Document) []string {
	var authors []string
	doc.Find(`meta[name="author"]`).Each(func(_ int, m *goquery.Selection) {
		v, _ := m.Attr("content")
		authors = appendUnique(authors, cleanAuthor(v))
	})
	doc.Find(`meta[property="article:author"]`).Each(func(_ int, m *goquery.Selection) {
		v, _ := m.Attr("content")
		if !strings.HasPrefix(v, "http") {
			authors = appendUnique(authors, cleanAuthor(v))
		}
	})
	if len(authors) > 0 {
		return authors
	}
	for _, selector := range authorSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			if name := cleanAuthor(sel.Text()); name != "" && len(name) < 80 {
				authors = appendUnique(authors, name)
			}
		})
		if len(authors) > 0 {
			break
		}
	}
	return authors
}

func jsonLDDate(doc *goquery.Document) string {
	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, script *goquery.Selection) bool {
		var node any
		if err := json.Unmarshal([]byte(script.Text()), &node); err != nil {
			return true
		}
		found = findDatePublished(node)
		return found == ""
	})
	return found
}

func findDatePublished(node any) string {
	switch v := node.(type) {
	case map[string]any:
		if s := jsonString(v["datePublished"]); s != "" {
			return s
		}
		for _, child := range v {
			if s := findDatePublished(child); s != "" {
				return s
			}
		}
	case []any:
		for _, child := range v {
			if s := findDatePublished(child); s != "" {
				return s
			}
		}
	}
	return ""
}
