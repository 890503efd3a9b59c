package domain

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// DiscoveryMethod records which strategy produced an article; it tells the
// caller how far the content can be trusted.
type DiscoveryMethod string

const (
	MethodStructured  DiscoveryMethod = "structured_extraction"
	MethodHTMLContent DiscoveryMethod = "html_heuristic_content"
	MethodHTMLLinks   DiscoveryMethod = "html_heuristic_links"
	MethodRSS         DiscoveryMethod = "rss_feed"
	MethodSitemap     DiscoveryMethod = "sitemap"
	MethodPlaceholder DiscoveryMethod = "placeholder"
	MethodDirect      DiscoveryMethod = "direct"
	MethodSearch      DiscoveryMethod = "keyword_search"
)

// InlineFragment prefixes the synthetic fragment of content blocks that sit
// on the index page without a link of their own.
const InlineFragment = "#entry-"

// Valid reports whether m is one of the known methods.
func (m DiscoveryMethod) Valid() bool {
	switch m {
	case MethodStructured, MethodHTMLContent, MethodHTMLLinks, MethodRSS, MethodSitemap, MethodPlaceholder, MethodDirect, MethodSearch:
		return true
	}
	return false
}

// ArticleStub is what discovery returns before the article page is processed.
type ArticleStub struct {
	URL         string
	Title       string
	Text        string
	PublishedAt *time.Time
	Authors     []string
	TopImage    string
	Method      DiscoveryMethod
}

// IsPlaceholder reports whether the stub was synthesized instead of discovered.
func (s ArticleStub) IsPlaceholder() bool {
	return s.Method == MethodPlaceholder
}

// IsInline reports whether the stub's content was read off the index page
// itself; its URL points back at that page and has nothing more to fetch.
func (s ArticleStub) IsInline() bool {
	return s.Method == MethodHTMLContent && strings.Contains(s.URL, InlineFragment)
}

// Article is a fully processed candidate article.
type Article struct {
	ID          string
	URL         string
	SourceURL   string
	Title       string
	Text        string
	Summary     string
	PublishedAt *time.Time
	Authors     []string
	Companies   []string
	Keywords    []string
	TopImage    string
	Method      DiscoveryMethod
	Embedding   Embedding
	FetchedAt   time.Time
}

// IsPlaceholder reports whether the article carries no real content.
func (a Article) IsPlaceholder() bool {
	return a.Method == MethodPlaceholder
}

// ArticleFromStub copies discovery metadata into a new Article.
func ArticleFromStub(stub ArticleStub, sourceURL string) Article {
	return Article{
		ID:          ArticleID(stub.URL),
		URL:         stub.URL,
		SourceURL:   sourceURL,
		Title:       stub.Title,
		Text:        stub.Text,
		PublishedAt: stub.PublishedAt,
		Authors:     append([]string(nil), stub.Authors...),
		TopImage:    stub.TopImage,
		Method:      stub.Method,
	}
}

// ArticleID derives the stable identity of an article from its URL.
func ArticleID(link string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(link)))
	return fmt.Sprintf("%x", h[:16])
}

// Embedding is a fixed-dimension vector plus the model that produced it.
type Embedding struct {
	Vector []float32
	Model  string
}

// Dimension returns the vector length.
func (e Embedding) Dimension() int {
	return len(e.Vector)
}

// Features is the output of the feature extractor.
type Features struct {
	Title     string
	Summary   string
	Keywords  []string
	Companies []string
	Source    string
}

// DiscoveryAttempt records the outcome of one strategy run.
type DiscoveryAttempt struct {
	Strategy string
	Yield    int
	Error    string
}

// DiscoveryResult is the output of discovering articles from one index URL.
type DiscoveryResult struct {
	IndexURL  string
	Stubs     []ArticleStub
	Attempts  []DiscoveryAttempt
	Exhausted bool
	Warnings  []string
}

// IngestResult summarizes a batch run over one index URL.
type IngestResult struct {
	Source    Source
	Articles  []Article
	Succeeded int
	Failed    int
	Partial   bool
	Exhausted bool
	Warnings  []string
}
