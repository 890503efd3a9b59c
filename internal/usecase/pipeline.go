package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
)

const (
	maxEmbedChars     = 8000
	maxWorkers        = 10
	thesisTitleLen    = 80
	persistTimeout    = 30 * time.Second
	defaultMaxStubs   = 20
	defaultMaxResults = 10
)

var (
	errNoStore    = errors.New("history store is not configured")
	errNoSearcher = errors.New("keyword search is not configured")
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Discoverer ports.ArticleDiscoverer
	Searcher   ports.KeywordSearcher
	Fetcher    ports.PageFetcher
	Parser     ports.PageParser
	Extractor  ports.FeatureExtractor
	Embedder   ports.TextEmbedder
	Ranker     ports.Ranker
	Store      ports.HistoryStore
	Notifier   ports.Notifier
	Settings   Settings
	Logger     *slog.Logger
	Now        func() time.Time
}

// Settings carries the tunables the pipeline reads from configuration.
type Settings struct {
	Pipeline      config.PipelineConfig
	Monitor       config.MonitorConfig
	MaxArticles   int
	SearchResults int
	TopK          int
}

// SettingsFrom picks the pipeline tunables out of the full configuration.
func SettingsFrom(cfg config.Config) Settings {
	return Settings{
		Pipeline:      cfg.Pipeline,
		Monitor:       cfg.Monitor,
		MaxArticles:   cfg.Discovery.MaxArticles,
		SearchResults: cfg.Discovery.Search.MaxResults,
		TopK:          cfg.Matcher.TopK,
	}
}

// Pipeline implements discovery, thesis management, matching and monitoring.
type Pipeline struct {
	discoverer ports.ArticleDiscoverer
	searcher   ports.KeywordSearcher
	fetcher    ports.PageFetcher
	parser     ports.PageParser
	extractor  ports.FeatureExtractor
	embedder   ports.TextEmbedder
	ranker     ports.Ranker
	store      ports.HistoryStore
	notifier   ports.Notifier
	settings   Settings
	logger     *slog.Logger
	now        func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		discoverer: deps.Discoverer,
		searcher:   deps.Searcher,
		fetcher:    deps.Fetcher,
		parser:     deps.Parser,
		extractor:  deps.Extractor,
		embedder:   deps.Embedder,
		ranker:     deps.Ranker,
		store:      deps.Store,
		notifier:   deps.Notifier,
		settings:   deps.Settings,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p
}

// Ingest discovers articles on an index page and processes them with a
// bounded worker pool. Only invalid input is an error; per-article failures
// are counted and the stub content is kept in their place.
func (p *Pipeline) Ingest(ctx context.Context, indexURL string, maxArticles int) (domain.IngestResult, error) {
	if maxArticles == 0 {
		maxArticles = p.defaultMaxArticles()
	}

	discovery, err := p.discoverer.Discover(ctx, indexURL, maxArticles)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("discover articles: %w", err)
	}
	p.debug("discovered", "url", discovery.IndexURL, "stubs", len(discovery.Stubs), "exhausted", discovery.Exhausted)
	return p.ingestDiscovery(ctx, discovery, domain.SourceIndex), nil
}

// SearchKeyword runs a keyword search and processes the result pages the
// same way as discovered articles. The search is saved as a source of kind
// search so it can be starred and monitored.
func (p *Pipeline) SearchKeyword(ctx context.Context, keyword string, maxResults int) (domain.IngestResult, error) {
	if p.searcher == nil {
		return domain.IngestResult{}, errNoSearcher
	}
	if maxResults == 0 {
		maxResults = p.defaultSearchResults()
	}

	discovery, err := p.searcher.Search(ctx, keyword, maxResults)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("search %q: %w", keyword, err)
	}
	p.debug("searched", "keyword", keyword, "stubs", len(discovery.Stubs))
	return p.ingestDiscovery(ctx, discovery, domain.SourceSearch), nil
}

func (p *Pipeline) ingestDiscovery(ctx context.Context, discovery domain.DiscoveryResult, kind string) domain.IngestResult {
	result := p.process(ctx, discovery.IndexURL, discovery.Stubs)
	result.Exhausted = discovery.Exhausted
	result.Warnings = append(append([]string(nil), discovery.Warnings...), result.Warnings...)
	result.Source = domain.Source{
		URL:           discovery.IndexURL,
		Kind:          kind,
		ArticlesFound: len(discovery.Stubs),
		Processed:     result.Succeeded,
	}

	p.persist(ctx, &result)
	return result
}

// IngestURL processes a single article page.
func (p *Pipeline) IngestURL(ctx context.Context, rawURL string) (domain.IngestResult, error) {
	link, err := validateURL(rawURL)
	if err != nil {
		return domain.IngestResult{}, err
	}

	result := p.process(ctx, link, []domain.ArticleStub{{URL: link, Method: domain.MethodDirect}})
	result.Source = domain.Source{
		URL:           link,
		Kind:          domain.SourceArticle,
		ArticlesFound: 1,
		Processed:     result.Succeeded,
	}

	p.persist(ctx, &result)
	return result, nil
}

// process runs fetch, parse, extract and embed per stub. Results keep the
// order of stubs. Stubs not started before ctx ends are returned as is.
func (p *Pipeline) process(ctx context.Context, sourceURL string, stubs []domain.ArticleStub) domain.IngestResult {
	articles := make([]domain.Article, len(stubs))
	failures := make([]error, len(stubs))
	skipped := make([]bool, len(stubs))

	var g errgroup.Group
	g.SetLimit(p.workers())
	for i, stub := range stubs {
		i, stub := i, stub
		g.Go(func() error {
			if ctx.Err() != nil {
				articles[i] = p.stubOnly(stub, sourceURL)
				skipped[i] = true
				return nil
			}
			articles[i], failures[i] = p.processStub(ctx, stub, sourceURL)
			return nil
		})
	}
	_ = g.Wait()

	result := domain.IngestResult{Articles: articles}
	for i, failure := range failures {
		switch {
		case skipped[i]:
			result.Partial = true
		case failure != nil:
			result.Failed++
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", stubs[i].URL, failure))
			if p.logger != nil {
				p.logger.Warn("article processing failed", "url", stubs[i].URL, "error", failure)
			}
		default:
			result.Succeeded++
		}
	}
	if result.Partial {
		result.Warnings = append(result.Warnings, fmt.Sprintf("deadline reached: %d articles returned without processing", countTrue(skipped)))
	}
	return result
}

// processStub always returns a usable article; the error reports a fetch or
// parse failure that was replaced by the stub's own content.
func (p *Pipeline) processStub(ctx context.Context, stub domain.ArticleStub, sourceURL string) (domain.Article, error) {
	article := domain.ArticleFromStub(stub, sourceURL)
	article.FetchedAt = p.now()
	if stub.IsPlaceholder() {
		article.Summary = article.Text
		return article, nil
	}

	if p.settings.Pipeline.ArticleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.Pipeline.ArticleTimeout)
		defer cancel()
	}

	// Inline entries point back at the index page; their content is final.
	var fetchErr error
	if !stub.IsInline() {
		fetchErr = p.enrich(ctx, &article)
	}

	features := p.extractor.Extract(ctx, article.Text, article.URL)
	if article.Title == "" {
		article.Title = features.Title
	}
	article.Summary = features.Summary
	article.Keywords = features.Keywords
	article.Companies = features.Companies
	article.Embedding = p.embedder.Embed(ctx, embedText(article))
	return article, fetchErr
}

// enrich downloads the article page and fills fields the stub lacks.
func (p *Pipeline) enrich(ctx context.Context, article *domain.Article) error {
	if p.fetcher == nil || p.parser == nil {
		return nil
	}
	page, err := p.fetcher.Fetch(ctx, article.URL)
	if err != nil {
		return fmt.Errorf("fetch article: %w", err)
	}
	parsed, err := p.parser.ParseArticle(page)
	if err != nil {
		return fmt.Errorf("parse article: %w", err)
	}

	if parsed.Title != "" && (article.Title == "" || article.Method == domain.MethodDirect) {
		article.Title = parsed.Title
	}
	if len(parsed.Text) > len(article.Text) {
		article.Text = parsed.Text
	}
	if article.PublishedAt == nil {
		article.PublishedAt = parsed.PublishedAt
	}
	if len(article.Authors) == 0 {
		article.Authors = parsed.Authors
	}
	if article.TopImage == "" {
		article.TopImage = parsed.TopImage
	}
	return nil
}

func (p *Pipeline) stubOnly(stub domain.ArticleStub, sourceURL string) domain.Article {
	article := domain.ArticleFromStub(stub, sourceURL)
	article.FetchedAt = p.now()
	article.Summary = article.Text
	return article
}

// persist saves the source and its processed articles. Storage failures
// become warnings; the caller's deadline does not cut persistence of
// partial work.
func (p *Pipeline) persist(ctx context.Context, result *domain.IngestResult) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	source, err := p.store.SaveSource(ctx, result.Source)
	if err != nil {
		p.storeWarning(result, "save source", result.Source.URL, err)
		return
	}
	result.Source = source

	for _, article := range result.Articles {
		// Unprocessed stubs stay out of the store so monitoring retries them.
		if article.Embedding.Dimension() == 0 && !article.IsPlaceholder() {
			continue
		}
		if err := p.store.SaveArticle(ctx, article); err != nil {
			p.storeWarning(result, "save article", article.URL, err)
		}
	}
}

func (p *Pipeline) storeWarning(result *domain.IngestResult, op, link string, err error) {
	result.Warnings = append(result.Warnings, fmt.Sprintf("%s %s: %v", op, link, err))
	if p.logger != nil {
		p.logger.Warn("history store write failed", "op", op, "url", link, "error", err)
	}
}

// CreateThesis extracts, embeds and (when a store is configured) saves a
// new active thesis.
func (p *Pipeline) CreateThesis(ctx context.Context, title, text string) (domain.ThesisDocument, error) {
	text, err := validateThesisText(text)
	if err != nil {
		return domain.ThesisDocument{}, err
	}

	now := p.now()
	thesis := domain.ThesisDocument{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Active:    true,
		CreatedAt: now,
	}
	p.analyzeThesis(ctx, &thesis, text)

	if p.store != nil {
		if err := p.store.SaveThesis(ctx, thesis); err != nil {
			return domain.ThesisDocument{}, fmt.Errorf("save thesis: %w", err)
		}
	}
	return thesis, nil
}

// UpdateThesis replaces the thesis text and re-embeds it.
func (p *Pipeline) UpdateThesis(ctx context.Context, id, text string) (domain.ThesisDocument, error) {
	if p.store == nil {
		return domain.ThesisDocument{}, errNoStore
	}
	text, err := validateThesisText(text)
	if err != nil {
		return domain.ThesisDocument{}, err
	}

	thesis, err := p.store.GetThesis(ctx, id)
	if err != nil {
		return domain.ThesisDocument{}, fmt.Errorf("load thesis: %w", err)
	}
	p.analyzeThesis(ctx, &thesis, text)

	if err := p.store.SaveThesis(ctx, thesis); err != nil {
		return domain.ThesisDocument{}, fmt.Errorf("save thesis: %w", err)
	}
	return thesis, nil
}

// SetThesisActive includes or excludes a thesis from matching.
func (p *Pipeline) SetThesisActive(ctx context.Context, id string, active bool) error {
	if p.store == nil {
		return errNoStore
	}
	return p.store.SetThesisActive(ctx, id, active)
}

func (p *Pipeline) analyzeThesis(ctx context.Context, thesis *domain.ThesisDocument, text string) {
	thesis.Text = text
	thesis.Points = domain.ThesisPoints(text)
	thesis.UpdatedAt = p.now()

	features := p.extractor.Extract(ctx, text, "")
	thesis.Keywords = features.Keywords
	thesis.Companies = features.Companies
	if thesis.Title == "" {
		thesis.Title = thesisTitle(thesis.Points, text)
	}
	thesis.Embedding = p.embedder.Embed(ctx, text)
}

// MatchArticles ranks the given articles against one thesis.
func (p *Pipeline) MatchArticles(thesis domain.ThesisDocument, articles []domain.Article) []domain.MatchResult {
	return p.top(p.ranker.Rank(thesis, articles), 0)
}

// Match ranks stored articles against all active theses. starredOnly limits
// articles to starred ones and those of starred sources.
func (p *Pipeline) Match(ctx context.Context, starredOnly bool, limit int) ([]domain.MatchResult, error) {
	if p.store == nil {
		return nil, errNoStore
	}
	theses, err := p.store.ListTheses(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list theses: %w", err)
	}
	articles, err := p.store.ListArticles(ctx, domain.ArticleFilter{StarredOnly: starredOnly})
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return p.top(p.ranker.RankAll(theses, articles), limit), nil
}

func (p *Pipeline) top(results []domain.MatchResult, limit int) []domain.MatchResult {
	if limit <= 0 {
		limit = p.settings.TopK
	}
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func (p *Pipeline) defaultMaxArticles() int {
	if p.settings.MaxArticles > 0 {
		return p.settings.MaxArticles
	}
	return defaultMaxStubs
}

func (p *Pipeline) defaultSearchResults() int {
	if p.settings.SearchResults > 0 {
		return p.settings.SearchResults
	}
	return defaultMaxResults
}

func (p *Pipeline) workers() int {
	n := p.settings.Pipeline.Workers
	switch {
	case n < 1:
		return 1
	case n > maxWorkers:
		return maxWorkers
	}
	return n
}

func (p *Pipeline) debug(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.InvalidInput("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", domain.InvalidInput("unparseable url %q", raw)
	}
	u.Fragment = ""
	return u.String(), nil
}

func validateThesisText(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", domain.InvalidInput("thesis text is not valid UTF-8")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.InvalidInput("thesis text is empty")
	}
	return text, nil
}

func thesisTitle(points []string, text string) string {
	title := text
	if len(points) > 0 {
		title = points[0]
	}
	title = strings.Join(strings.Fields(title), " ")
	if r := []rune(title); len(r) > thesisTitleLen {
		title = strings.TrimSpace(string(r[:thesisTitleLen-3])) + "..."
	}
	return title
}

func embedText(a domain.Article) string {
	text := strings.TrimSpace(a.Title + "\n" + a.Summary + "\n" + a.Text)
	if r := []rune(text); len(r) > maxEmbedChars {
		text = string(r[:maxEmbedChars])
	}
	return text
}

func countTrue(values []bool) int {
	n := 0
	for _, v := range values {
		if v {
			n++
		}
	}
	return n
}
