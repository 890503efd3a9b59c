package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
	"ThesisScout/internal/infrastructure/fetcher"
	"ThesisScout/internal/scanner"
)

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newStubFetcher(pages map[string]string) *stubFetcher {
	return &stubFetcher{pages: pages, calls: map[string]int{}}
}

func (f *stubFetcher) Fetch(_ context.Context, rawURL string) (domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	body, ok := f.pages[rawURL]
	if !ok {
		return domain.Page{}, &domain.FetchError{Kind: domain.FailureHTTP, URL: rawURL, Status: http.StatusNotFound}
	}
	return domain.Page{URL: rawURL, FinalURL: rawURL, Status: http.StatusOK, ContentType: "text/html", Body: []byte(body)}, nil
}

func testFetcher() *fetcher.Fetcher {
	return fetcher.New(config.FetcherConfig{
		ConnectTimeout: time.Second,
		TotalTimeout:   2 * time.Second,
		MaxAttempts:    3,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BlockThreshold: 3,
		RateLimit:      1000,
		RateBurst:      100,
	}, nil)
}

func testDiscoveryConfig() config.DiscoveryConfig {
	return config.Default().Discovery
}

func TestStructuredStrategyReadsJSONLD(t *testing.T) {
	t.Parallel()

	index := `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
 {"@type":"WebSite","name":"Climate Ledger"},
 {"@type":"BlogPosting","headline":"Battery recycling scales up","url":"/posts/battery-recycling",
  "datePublished":"2024-05-01T10:00:00Z","author":[{"@type":"Person","name":"Ana Ruiz"}],
  "description":"<p>Recyclers expand capacity.</p>"}
]}
</script>
<script type="application/ld+json">
{"@type":"ItemList","itemListElement":[
 {"@type":"ListItem","position":1,"url":"https://blog.example.com/posts/heat-pumps"},
 {"@type":"ListItem","position":2,"item":{"@type":"NewsArticle","headline":"Hydrogen hubs","url":"https://blog.example.com/posts/hydrogen"}}
]}
</script>
<script type="application/ld+json">{not json</script>
</head><body></body></html>`

	f := newStubFetcher(map[string]string{"https://blog.example.com/": index})
	stubs, err := NewStructuredStrategy(f, 2000).Discover(context.Background(), scanner.Request{IndexURL: "https://blog.example.com/", MaxArticles: 10})
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(stubs) != 3 {
		t.Fatalf("expected 3 stubs, got %d: %+v", len(stubs), stubs)
	}

	first := stubs[0]
	if first.URL != "https://blog.example.com/posts/battery-recycling" || first.Title != "Battery recycling scales up" {
		t.Fatalf("unexpected first stub: %+v", first)
	}
	if first.Text != "Recyclers expand capacity." {
		t.Fatalf("expected html stripped description, got %q", first.Text)
	}
	if first.PublishedAt == nil || first.PublishedAt.Format("2006-01-02") != "2024-05-01" {
		t.Fatalf("unexpected publish date: %v", first.PublishedAt)
	}
	if len(first.Authors) != 1 || first.Authors[0] != "Ana Ruiz" {
		t.Fatalf("unexpected authors: %v", first.Authors)
	}
	if stubs[2].Title != "Hydrogen hubs" {
		t.Fatalf("unexpected list item title: %q", stubs[2].Title)
	}
	for _, s := range stubs {
		if s.Method != domain.MethodStructured {
			t.Fatalf("unexpected method %s", s.Method)
		}
	}
}

func TestStructuredStrategyOpenGraphArticle(t *testing.T) {
	t.Parallel()

	page := `<html><head>
<meta property="og:type" content="article">
<meta property="og:title" content="Carbon removal credits">
<meta property="og:url" content="https://blog.example.com/2024/03/carbon-removal">
<meta property="article:published_time" content="2024-03-02">
</head><body></body></html>`

	f := newStubFetcher(map[string]string{"https://blog.example.com/2024/03/carbon-removal": page})
	stubs, err := NewStructuredStrategy(f, 0).Discover(context.Background(), scanner.Request{IndexURL: "https://blog.example.com/2024/03/carbon-removal", MaxArticles: 5})
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(stubs) != 1 || stubs[0].Title != "Carbon removal credits" {
		t.Fatalf("unexpected stubs: %+v", stubs)
	}
}

func TestHeuristicStrategyContentThenLinks(t *testing.T) {
	t.Parallel()

	index := `<html><body>
<article>
  <h2><a href="/2024/05/grid-storage">Grid storage boom</a></h2>
  <p class="byline">By Maria Chen</p>
  <time datetime="2024-05-10">May 10</time>
  <p>Utilities across the western grid are procuring record amounts of battery storage this year.</p>
  <p>Analysts expect the trend to continue as solar penetration rises and evening peaks sharpen.</p>
</article>
<article>
  <h2><a href="/2024/05/short-note">Short note</a></h2>
  <p>tiny</p>
</article>
<ul>
  <li><a href="/tag/energy">Energy</a></li>
  <li><a href="/about">About</a></li>
  <li><a href="/news/solar-cells">Solar cells get cheaper</a></li>
  <li><a href="https://other.example.org/news/elsewhere">Elsewhere</a></li>
  <li><a href="/logo.png">Logo</a></li>
</ul>
</body></html>`

	f := newStubFetcher(map[string]string{"https://blog.example.com/": index})
	stubs, err := NewHeuristicStrategy(f, 2000).Discover(context.Background(), scanner.Request{IndexURL: "https://blog.example.com/", MaxArticles: 10})
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(stubs) != 3 {
		t.Fatalf("expected 3 stubs, got %d: %+v", len(stubs), stubs)
	}

	content := stubs[0]
	if content.Method != domain.MethodHTMLContent || content.URL != "https://blog.example.com/2024/05/grid-storage" {
		t.Fatalf("unexpected content stub: %+v", content)
	}
	if content.Title != "Grid storage boom" || !strings.Contains(content.Text, "battery storage") {
		t.Fatalf("unexpected content fields: %+v", content)
	}
	if len(content.Authors) != 1 || content.Authors[0] != "Maria Chen" {
		t.Fatalf("unexpected authors: %v", content.Authors)
	}
	if content.PublishedAt == nil {
		t.Fatalf("expected publish date")
	}

	if stubs[1].Method != domain.MethodHTMLLinks || stubs[1].URL != "https://blog.example.com/2024/05/short-note" {
		t.Fatalf("unexpected second stub: %+v", stubs[1])
	}
	if stubs[2].URL != "https://blog.example.com/news/solar-cells" || stubs[2].Title != "Solar cells get cheaper" {
		t.Fatalf("unexpected third stub: %+v", stubs[2])
	}
}

func TestHeuristicStrategyTruncatesText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("Transmission upgrades unlock more renewable capacity. ", 20)
	index := `<html><body><div class="post"><h3>Untitled link-free post</h3><p>` + long + `</p></div></body></html>`
	f := newStubFetcher(map[string]string{"https://blog.example.com/": index})

	stubs, err := NewHeuristicStrategy(f, 120).Discover(context.Background(), scanner.Request{IndexURL: "https://blog.example.com/", MaxArticles: 10})
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(stubs) != 1 {
		t.Fatalf("expected 1 stub, got %d", len(stubs))
	}
	if len([]rune(stubs[0].Text)) > 120 {
		t.Fatalf("text not truncated: %d", len(stubs[0].Text))
	}
	if stubs[0].URL != "https://blog.example.com#entry-1" {
		t.Fatalf("expected synthetic entry url, got %s", stubs[0].URL)
	}
}

func TestSitemapStrategyFollowsIndexNewestFirst(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"https://blog.example.com/sitemap.xml": `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://blog.example.com/sitemap-pages.xml</loc></sitemap>
  <sitemap><loc>https://blog.example.com/sitemap-posts.xml</loc></sitemap>
</sitemapindex>`,
		"https://blog.example.com/sitemap-posts.xml": `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://blog.example.com/posts/older</loc><lastmod>2023-01-01</lastmod></url>
  <url><loc>https://blog.example.com/tag/energy</loc></url>
  <url><loc>https://blog.example.com/posts/newer</loc><lastmod>2024-02-01</lastmod></url>
</urlset>`,
		"https://blog.example.com/sitemap-pages.xml": `<urlset><url><loc>https://blog.example.com/pages/team</loc></url></urlset>`,
	}
	f := newStubFetcher(pages)

	stubs, err := NewSitemapStrategy(f, []string{"/sitemap.xml"}, 1).Discover(context.Background(), scanner.Request{IndexURL: "https://blog.example.com", MaxArticles: 10})
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(stubs) != 2 {
		t.Fatalf("expected 2 stubs, got %d: %+v", len(stubs), stubs)
	}
	if stubs[0].URL != "https://blog.example.com/posts/newer" || stubs[1].URL != "https://blog.example.com/posts/older" {
		t.Fatalf("unexpected order: %s, %s", stubs[0].URL, stubs[1].URL)
	}
	if f.calls["https://blog.example.com/sitemap-pages.xml"] != 0 {
		t.Fatalf("lower priority child sitemap must be skipped when the limit is 1")
	}
}

func TestPlaceholderStrategyBoundedByMax(t *testing.T) {
	t.Parallel()

	stubs, err := NewPlaceholderStrategy(3).Discover(context.Background(), scanner.Request{IndexURL: "https://blog.example.com/", MaxArticles: 2})
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(stubs) != 2 {
		t.Fatalf("expected 2 placeholders, got %d", len(stubs))
	}
	for _, s := range stubs {
		if !s.IsPlaceholder() || !strings.Contains(s.Text, "https://blog.example.com/") {
			t.Fatalf("unexpected placeholder: %+v", s)
		}
	}
	if stubs[0].URL == stubs[1].URL {
		t.Fatalf("placeholder urls must be distinct")
	}
}

func TestStrategySourceFallsBackToFeedWhenIndexBlocked(t *testing.T) {
	t.Parallel()

	var indexHits atomic.Int32
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			indexHits.Add(1)
			w.WriteHeader(http.StatusForbidden)
		case "/feed":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>Blog</title><link>` + serverURL + `</link><description>d</description>
<item><title>Offshore wind financing</title><link>` + serverURL + `/2024/06/offshore-wind</link>
<description>&lt;p&gt;Developers close financing for a large offshore wind farm.&lt;/p&gt;</description>
<pubDate>Mon, 03 Jun 2024 10:00:00 GMT</pubDate></item>
<item><title>Grid batteries</title><link>` + serverURL + `/2024/06/grid-batteries</link>
<description>Storage procurement hits a record.</description></item>
</channel></rss>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	serverURL = server.URL

	source := NewStrategySource(testFetcher(), testDiscoveryConfig(), nil)
	res, err := source.Discover(context.Background(), server.URL, 10)
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if res.Exhausted {
		t.Fatalf("feed results must not be reported as exhausted")
	}
	if len(res.Stubs) != 2 {
		t.Fatalf("expected 2 feed stubs, got %d", len(res.Stubs))
	}
	for _, s := range res.Stubs {
		if s.Method != domain.MethodRSS {
			t.Fatalf("unexpected method %s", s.Method)
		}
	}
	if res.Stubs[0].Text != "Developers close financing for a large offshore wind farm." {
		t.Fatalf("unexpected feed text: %q", res.Stubs[0].Text)
	}
	if res.Stubs[0].PublishedAt == nil {
		t.Fatalf("expected parsed pubDate")
	}
	if hits := indexHits.Load(); hits != 3 {
		t.Fatalf("expected the blocked index to be requested 3 times in total, got %d", hits)
	}
	if len(res.Attempts) < 3 || !strings.Contains(res.Attempts[0].Error, string(domain.FailureBlocked)) {
		t.Fatalf("expected blocked structured attempt, got %+v", res.Attempts)
	}
}

func TestStrategySourceReturnsPlaceholdersWhenEverythingFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	source := NewStrategySource(testFetcher(), testDiscoveryConfig(), nil)
	res, err := source.Discover(context.Background(), server.URL+"/blog", 10)
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if !res.Exhausted || len(res.Warnings) == 0 {
		t.Fatalf("expected exhausted result with warning: %+v", res)
	}
	if len(res.Stubs) != 3 {
		t.Fatalf("expected 3 placeholders, got %d", len(res.Stubs))
	}
	for _, s := range res.Stubs {
		if s.Method != domain.MethodPlaceholder {
			t.Fatalf("unexpected method %s", s.Method)
		}
	}
}

func TestStrategySourceRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	source := NewStrategySource(newStubFetcher(nil), testDiscoveryConfig(), nil)
	for _, tc := range []struct {
		url string
		max int
	}{
		{"", 5},
		{"ftp://example.com", 5},
		{"not a url", 5},
		{"https://example.com", 0},
	} {
		if _, err := source.Discover(context.Background(), tc.url, tc.max); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Discover(%q, %d): expected invalid input, got %v", tc.url, tc.max, err)
		}
	}
}

func TestNormalizeIndexURLDefaultsScheme(t *testing.T) {
	t.Parallel()

	got, err := NormalizeIndexURL("  blog.example.com/insights ")
	if err != nil {
		t.Fatalf("NormalizeIndexURL error: %v", err)
	}
	if got != "https://blog.example.com/insights" {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestIsLikelyArticleURL(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://www.example.com/blog")
	tests := []struct {
		link string
		want bool
	}{
		{"https://www.example.com/blog/2024/solar-outlook", true},
		{"https://news.example.com/posts/wind", true},
		{"https://example.org/posts/wind", false},
		{"https://www.example.com/tag/solar", false},
		{"https://www.example.com/about-us", false},
		{"https://www.example.com/wp-content/uploads/x", false},
		{"https://www.example.com/report.pdf", false},
		{"https://www.example.com/", false},
		{"https://www.example.com/blog", false},
		{"https://www.example.com/about-our-fund-returns", true},
	}
	for _, tt := range tests {
		u, _ := url.Parse(tt.link)
		if got := isLikelyArticleURL(u, base); got != tt.want {
			t.Fatalf("isLikelyArticleURL(%s) = %v, want %v", tt.link, got, tt.want)
		}
	}
}

func TestParseArticle(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<title>Ignored | Site</title>
<meta property="og:title" content="Heat pumps outsell furnaces">
<meta name="author" content="By Priya Natarajan">
<meta property="article:published_time" content="2024-04-18T08:30:00+02:00">
<meta property="og:image" content="/img/heat-pump.jpg">
<script>var tracking = true;</script>
</head><body>
<nav><a href="/">Home</a></nav>
<article>
  <h1>Heat pumps outsell furnaces</h1>
  <p>For the second year running, heat pumps outsold gas furnaces in the United States.</p>
  <p>Manufacturers such as Carrier Global Corp and Trane Technologies expanded production lines to keep up.</p>
  <p>Incentives in the Inflation Reduction Act continue to support adoption across cold-climate states.</p>
</article>
<footer>Copyright</footer>
</body></html>`

	stub, err := NewPageParser(0).ParseArticle(domain.Page{
		URL:         "https://blog.example.com/2024/04/heat-pumps",
		ContentType: "text/html",
		Body:        []byte(html),
	})
	if err != nil {
		t.Fatalf("ParseArticle error: %v", err)
	}
	if stub.Title != "Heat pumps outsell furnaces" {
		t.Fatalf("unexpected title: %q", stub.Title)
	}
	if len(stub.Authors) != 1 || stub.Authors[0] != "Priya Natarajan" {
		t.Fatalf("unexpected authors: %v", stub.Authors)
	}
	if stub.PublishedAt == nil || stub.PublishedAt.Format(time.RFC3339) != "2024-04-18T06:30:00Z" {
		t.Fatalf("unexpected date: %v", stub.PublishedAt)
	}
	if stub.TopImage != "https://blog.example.com/img/heat-pump.jpg" {
		t.Fatalf("unexpected image: %s", stub.TopImage)
	}
	if !strings.Contains(stub.Text, "Trane Technologies") || strings.Contains(stub.Text, "tracking") || strings.Contains(stub.Text, "Copyright") {
		t.Fatalf("unexpected text: %q", stub.Text)
	}
}

func TestParseArticleRejectsEmptyAndBinary(t *testing.T) {
	t.Parallel()

	p := NewPageParser(0)
	if _, err := p.ParseArticle(domain.Page{URL: "https://x.example.com/a"}); err == nil {
		t.Fatalf("expected error for empty body")
	}
	if _, err := p.ParseArticle(domain.Page{URL: "https://x.example.com/a.pdf", ContentType: "application/pdf", Body: []byte("%PDF")}); err == nil {
		t.Fatalf("expected error for non-html content")
	}
}

func testSearchEngines() []config.SearchEngine {
	return []config.SearchEngine{
		{
			Name:            "papers",
			URLTemplate:     "https://papers.example.com/search?q={query}",
			ResultSelector:  "div.result",
			TitleSelector:   "h3",
			SnippetSelector: ".snippet",
			BylineSelector:  ".byline",
		},
		{
			Name:           "patents",
			URLTemplate:    "https://patents.example.com/?q=({query})",
			ResultSelector: "article.result",
			TitleSelector:  "h4",
		},
	}
}

func TestSearchStrategyReadsResultBlocks(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<div class="result">
  <h3><span>[PDF]</span> <a href="https://journal.example.org/sodium-cathodes">Sodium-ion cathodes for grid storage</a></h3>
  <div class="byline">A Ruiz, M Chen - Journal of Power Sources, 2023 - journal.example.org</div>
  <div class="snippet">Layered oxide cathodes reach 160 mAh/g over 2000 cycles.</div>
</div>
<div class="result"><h3>Citation without a link</h3></div>
<div class="result">
  <h3><a href="/paper/2">Hard carbon anodes</a></h3>
</div>
</body></html>`

	engine := testSearchEngines()[0]
	f := newStubFetcher(map[string]string{"https://papers.example.com/search?q=sodium+ion": page})
	stubs, err := NewSearchStrategy(f, engine, 2000).Discover(context.Background(), scanner.Request{Keyword: "sodium ion", MaxArticles: 10})
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(stubs) != 2 {
		t.Fatalf("expected 2 stubs, got %d: %+v", len(stubs), stubs)
	}

	first := stubs[0]
	if first.URL != "https://journal.example.org/sodium-cathodes" || first.Method != domain.MethodSearch {
		t.Fatalf("unexpected first stub: %+v", first)
	}
	if first.Title != "[PDF] Sodium-ion cathodes for grid storage" || !strings.Contains(first.Text, "Layered oxide") {
		t.Fatalf("unexpected first fields: %+v", first)
	}
	if len(first.Authors) != 2 || first.Authors[0] != "A Ruiz" || first.PublishedAt == nil || first.PublishedAt.Year() != 2023 {
		t.Fatalf("unexpected byline: %v %v", first.Authors, first.PublishedAt)
	}
	if stubs[1].URL != "https://papers.example.com/paper/2" {
		t.Fatalf("relative link not resolved: %s", stubs[1].URL)
	}

	if _, err := NewSearchStrategy(f, engine, 2000).Discover(context.Background(), scanner.Request{MaxArticles: 10}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty keyword, got %v", err)
	}
}

func TestStrategySourceSearchCollectsAcrossEngines(t *testing.T) {
	t.Parallel()

	f := newStubFetcher(map[string]string{
		"https://papers.example.com/search?q=heat+pumps": `<div class="result"><h3><a href="https://a.example.org/1">Heat pump adoption</a></h3></div>`,
		"https://patents.example.com/?q=(heat+pumps)":    `<article class="result"><h4><a href="/patent/US1234">Refrigerant circuit</a></h4></article>`,
	})
	cfg := testDiscoveryConfig()
	cfg.Search.Engines = testSearchEngines()
	source := NewStrategySource(f, cfg, nil)

	res, err := source.Search(context.Background(), " Heat  pumps ", 5)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if res.IndexURL != "search:heat pumps" {
		t.Fatalf("unexpected index url %q", res.IndexURL)
	}
	if len(res.Stubs) != 2 || res.Stubs[1].URL != "https://patents.example.com/patent/US1234" {
		t.Fatalf("unexpected stubs: %+v", res.Stubs)
	}
	if len(res.Attempts) != 2 || res.Attempts[0].Strategy != "search_papers" {
		t.Fatalf("unexpected attempts: %+v", res.Attempts)
	}

	for _, tc := range []struct {
		keyword string
		max     int
	}{
		{"  ", 5},
		{"heat pumps", 0},
	} {
		if _, err := source.Search(context.Background(), tc.keyword, tc.max); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Search(%q, %d): expected invalid input, got %v", tc.keyword, tc.max, err)
		}
	}
}
