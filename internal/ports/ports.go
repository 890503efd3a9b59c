package ports

import (
	"context"
	"time"

	"ThesisScout/internal/domain"
)

// PageFetcher retrieves raw pages over HTTP with retries.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (domain.Page, error)
}

// ArticleDiscoverer turns an index URL into candidate article stubs.
type ArticleDiscoverer interface {
	Discover(ctx context.Context, indexURL string, maxArticles int) (domain.DiscoveryResult, error)
}

// KeywordSearcher turns a keyword into candidate article stubs from search
// result pages.
type KeywordSearcher interface {
	Search(ctx context.Context, keyword string, maxResults int) (domain.DiscoveryResult, error)
}

// PageParser extracts article fields from a fetched page.
type PageParser interface {
	ParseArticle(page domain.Page) (domain.ArticleStub, error)
}

// TextAnalyzer is an AI backend producing title, summary, keywords and companies.
type TextAnalyzer interface {
	Analyze(ctx context.Context, text, articleURL string) (domain.Features, error)
}

// EmbeddingProvider is an AI backend producing dense vectors.
type EmbeddingProvider interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// FeatureExtractor never fails; it falls back to deterministic heuristics.
type FeatureExtractor interface {
	Extract(ctx context.Context, text, articleURL string) domain.Features
}

// TextEmbedder never fails; it falls back to a deterministic hash embedding.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) domain.Embedding
}

// Ranker scores articles against theses.
type Ranker interface {
	Rank(thesis domain.ThesisDocument, articles []domain.Article) []domain.MatchResult
	RankAll(theses []domain.ThesisDocument, articles []domain.Article) []domain.MatchResult
}

// HistoryStore persists sources, articles and theses with star/active flags.
type HistoryStore interface {
	SaveSource(ctx context.Context, source domain.Source) (domain.Source, error)
	SaveArticle(ctx context.Context, article domain.Article) error
	SaveThesis(ctx context.Context, thesis domain.ThesisDocument) error
	GetThesis(ctx context.Context, id string) (domain.ThesisDocument, error)
	GetArticle(ctx context.Context, id string) (domain.Article, error)
	ListSources(ctx context.Context, starredOnly bool) ([]domain.Source, error)
	ListArticles(ctx context.Context, filter domain.ArticleFilter) ([]domain.Article, error)
	ListTheses(ctx context.Context, activeOnly bool) ([]domain.ThesisDocument, error)
	History(ctx context.Context, limit int) ([]domain.HistoryItem, error)
	Delete(ctx context.Context, kind domain.RecordKind, id string) error
	ToggleStar(ctx context.Context, kind domain.RecordKind, id string) (bool, error)
	SetThesisActive(ctx context.Context, id string, active bool) error
	MarkMonitored(ctx context.Context, sourceID string, at time.Time) error
	KnownURLs(ctx context.Context, urls []string) (map[string]bool, error)
}

// Notifier streams selected digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
