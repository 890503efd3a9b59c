package httpapi

import (
	"time"

	"ThesisScout/internal/domain"
	"ThesisScout/internal/usecase"
)

type discoverRequest struct {
	IndexURL    string `json:"index_url"`
	MaxArticles int    `json:"max_articles"`
}

type sourceRequest struct {
	URL string `json:"url"`
}

type searchRequest struct {
	Keyword    string `json:"keyword"`
	MaxResults int    `json:"max_results"`
}

type thesisRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type activeRequest struct {
	Active bool `json:"active"`
}

type articleView struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	SourceURL   string     `json:"source_url,omitempty"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Authors     []string   `json:"authors,omitempty"`
	Companies   []string   `json:"companies,omitempty"`
	Keywords    []string   `json:"keywords,omitempty"`
	TopImage    string     `json:"top_image,omitempty"`
	Method      string     `json:"method"`
	Model       string     `json:"embedding_model,omitempty"`
}

type articleDetailView struct {
	articleView
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

type sourceView struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Kind          string     `json:"kind"`
	ArticlesFound int        `json:"articles_found"`
	Processed     int        `json:"processed"`
	Starred       bool       `json:"starred"`
	LastMonitored *time.Time `json:"last_monitored,omitempty"`
}

type ingestResponse struct {
	Source    sourceView    `json:"source"`
	Articles  []articleView `json:"articles"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Partial   bool          `json:"partial"`
	Exhausted bool          `json:"exhausted"`
	Warnings  []string      `json:"warnings,omitempty"`
}

type thesisView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Points    []string  `json:"points"`
	Keywords  []string  `json:"keywords"`
	Companies []string  `json:"companies"`
	Model     string    `json:"embedding_model"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type matchView struct {
	Article     articleView `json:"article"`
	ThesisID    string      `json:"thesis_id"`
	ThesisTitle string      `json:"thesis_title"`
	Score       float64     `json:"score"`
	Reason      string      `json:"reason"`
	BelowMin    bool        `json:"below_min,omitempty"`
}

type historyView struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	URL       string    `json:"url,omitempty"`
	Title     string    `json:"title,omitempty"`
	Starred   bool      `json:"starred"`
	Active    bool      `json:"active,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type monitorResponse struct {
	Sources     int         `json:"sources"`
	NewArticles int         `json:"new_articles"`
	Matches     []matchView `json:"matches"`
	Notified    bool        `json:"notified"`
	Warnings    []string    `json:"warnings,omitempty"`
}

func toArticleView(a domain.Article) articleView {
	return articleView{
		ID:          a.ID,
		URL:         a.URL,
		SourceURL:   a.SourceURL,
		Title:       a.Title,
		Summary:     a.Summary,
		PublishedAt: a.PublishedAt,
		Authors:     a.Authors,
		Companies:   a.Companies,
		Keywords:    a.Keywords,
		TopImage:    a.TopImage,
		Method:      string(a.Method),
		Model:       a.Embedding.Model,
	}
}

func toArticleDetail(a domain.Article) articleDetailView {
	return articleDetailView{
		articleView: toArticleView(a),
		Text:        a.Text,
		FetchedAt:   a.FetchedAt,
	}
}

func toSourceView(s domain.Source) sourceView {
	return sourceView{
		ID:            s.ID,
		URL:           s.URL,
		Kind:          s.Kind,
		ArticlesFound: s.ArticlesFound,
		Processed:     s.Processed,
		Starred:       s.Starred,
		LastMonitored: s.LastMonitored,
	}
}

func toIngestResponse(r domain.IngestResult) ingestResponse {
	articles := make([]articleView, 0, len(r.Articles))
	for _, a := range r.Articles {
		articles = append(articles, toArticleView(a))
	}
	return ingestResponse{
		Source:    toSourceView(r.Source),
		Articles:  articles,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Partial:   r.Partial,
		Exhausted: r.Exhausted,
		Warnings:  r.Warnings,
	}
}

func toThesisView(t domain.ThesisDocument) thesisView {
	return thesisView{
		ID:        t.ID,
		Title:     t.Title,
		Text:      t.Text,
		Points:    t.Points,
		Keywords:  t.Keywords,
		Companies: t.Companies,
		Model:     t.Embedding.Model,
		Active:    t.Active,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func toMatchViews(results []domain.MatchResult) []matchView {
	out := make([]matchView, 0, len(results))
	for _, m := range results {
		out = append(out, matchView{
			Article:     toArticleView(m.Article),
			ThesisID:    m.ThesisID,
			ThesisTitle: m.ThesisTitle,
			Score:       m.Score,
			Reason:      m.Reason,
			BelowMin:    m.BelowMin,
		})
	}
	return out
}

func toHistoryViews(items []domain.HistoryItem) []historyView {
	out := make([]historyView, 0, len(items))
	for _, item := range items {
		out = append(out, historyView{
			ID:        item.ID,
			Kind:      string(item.Kind),
			URL:       item.URL,
			Title:     item.Title,
			Starred:   item.Starred,
			Active:    item.Active,
			CreatedAt: item.CreatedAt,
		})
	}
	return out
}

func toMonitorResponse(r usecase.MonitorReport) monitorResponse {
	return monitorResponse{
		Sources:     r.Sources,
		NewArticles: r.NewArticles,
		Matches:     toMatchViews(r.Matches),
		Notified:    r.Notified,
		Warnings:    r.Warnings,
	}
}
