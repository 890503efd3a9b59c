package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
	"ThesisScout/internal/usecase"
)

type fakeService struct {
	lastIndex   string
	lastMax     int
	lastKeyword string
	lastStarred bool
	lastLimit   int
	toggled     string
	deleted     string
}

func (f *fakeService) Ingest(_ context.Context, indexURL string, maxArticles int) (domain.IngestResult, error) {
	if indexURL == "" {
		return domain.IngestResult{}, domain.InvalidInput("empty url")
	}
	f.lastIndex, f.lastMax = indexURL, maxArticles
	return domain.IngestResult{
		Source:    domain.Source{ID: "s1", URL: indexURL, Kind: domain.SourceIndex},
		Articles:  []domain.Article{{ID: "a1", URL: indexURL + "/post", Title: "Post", Method: domain.MethodRSS}},
		Succeeded: 1,
	}, nil
}

func (f *fakeService) IngestURL(_ context.Context, rawURL string) (domain.IngestResult, error) {
	return domain.IngestResult{Source: domain.Source{URL: rawURL, Kind: domain.SourceArticle}}, nil
}

func (f *fakeService) SearchKeyword(_ context.Context, keyword string, maxResults int) (domain.IngestResult, error) {
	if strings.TrimSpace(keyword) == "" {
		return domain.IngestResult{}, domain.InvalidInput("search keyword is empty")
	}
	f.lastKeyword, f.lastMax = keyword, maxResults
	return domain.IngestResult{
		Source:   domain.Source{URL: domain.SearchSourceURL(keyword), Kind: domain.SourceSearch},
		Articles: []domain.Article{{ID: "a2", URL: "https://papers.example.org/1", Method: domain.MethodSearch}},
	}, nil
}

func (f *fakeService) Article(_ context.Context, id string) (domain.Article, error) {
	if id != "a1" {
		return domain.Article{}, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	return domain.Article{
		ID:        id,
		URL:       "https://blog.example.com/post",
		Title:     "Post",
		Text:      "Full body of the post.",
		Summary:   "Body.",
		Companies: []string{"Fluence"},
		Method:    domain.MethodRSS,
	}, nil
}

func (f *fakeService) CreateThesis(_ context.Context, title, text string) (domain.ThesisDocument, error) {
	if strings.TrimSpace(text) == "" {
		return domain.ThesisDocument{}, domain.InvalidInput("thesis text is empty")
	}
	return domain.ThesisDocument{ID: "t1", Title: title, Text: text, Active: true}, nil
}

func (f *fakeService) UpdateThesis(_ context.Context, id, text string) (domain.ThesisDocument, error) {
	if id != "t1" {
		return domain.ThesisDocument{}, fmt.Errorf("load thesis: %w", domain.ErrNotFound)
	}
	return domain.ThesisDocument{ID: id, Text: text}, nil
}

func (f *fakeService) SetThesisActive(context.Context, string, bool) error {
	return nil
}

func (f *fakeService) Theses(context.Context, bool) ([]domain.ThesisDocument, error) {
	return []domain.ThesisDocument{{ID: "t1"}}, nil
}

func (f *fakeService) Match(_ context.Context, starredOnly bool, limit int) ([]domain.MatchResult, error) {
	f.lastStarred, f.lastLimit = starredOnly, limit
	return []domain.MatchResult{{
		Article:  domain.Article{URL: "https://example.com/a", Method: domain.MethodRSS},
		ThesisID: "t1",
		Score:    0.8,
		Reason:   "vector similarity: 0.80",
	}}, nil
}

func (f *fakeService) History(context.Context, int) ([]domain.HistoryItem, error) {
	return nil, errors.New("database is locked")
}

func (f *fakeService) ToggleStar(_ context.Context, kind domain.RecordKind, id string) (bool, error) {
	f.toggled = string(kind) + "/" + id
	return true, nil
}

func (f *fakeService) Delete(_ context.Context, kind domain.RecordKind, id string) error {
	if id == "missing" {
		return domain.ErrNotFound
	}
	f.deleted = string(kind) + "/" + id
	return nil
}

func (f *fakeService) MonitorStarred(context.Context) (usecase.MonitorReport, error) {
	return usecase.MonitorReport{Sources: 2, NewArticles: 3, Notified: true}, nil
}

func newTestServer(svc *fakeService) http.Handler {
	return NewServer(config.ServerConfig{AllowedOrigins: []string{"https://app.example.com"}}, svc, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDiscoverReturnsIngestResult(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	rec := do(t, newTestServer(svc), http.MethodPost, "/api/discover", `{"index_url":"https://blog.example.com","max_articles":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastIndex != "https://blog.example.com" || svc.lastMax != 7 {
		t.Fatalf("unexpected call: %q %d", svc.lastIndex, svc.lastMax)
	}

	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Articles) != 1 || resp.Articles[0].Method != string(domain.MethodRSS) || resp.Source.Kind != domain.SourceIndex {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"empty index url", http.MethodPost, "/api/discover", `{"index_url":""}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/discover", `{"index_url":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/theses", `{"thesis":"x"}`, http.StatusBadRequest},
		{"negative max", http.MethodPost, "/api/discover", `{"index_url":"https://a.example.com","max_articles":-1}`, http.StatusBadRequest},
		{"empty thesis", http.MethodPost, "/api/theses", `{"text":"  "}`, http.StatusBadRequest},
		{"unknown thesis", http.MethodPut, "/api/theses/nope", `{"text":"new text"}`, http.StatusNotFound},
		{"bad kind", http.MethodPost, "/api/history/page/1/star", "", http.StatusBadRequest},
		{"missing record", http.MethodDelete, "/api/history/article/missing", "", http.StatusNotFound},
		{"bad limit", http.MethodGet, "/api/matches?limit=abc", "", http.StatusBadRequest},
		{"store failure", http.MethodGet, "/api/history", "", http.StatusInternalServerError},
		{"empty keyword", http.MethodPost, "/api/search", `{"keyword":" "}`, http.StatusBadRequest},
		{"negative max results", http.MethodPost, "/api/search", `{"keyword":"lithium","max_results":-2}`, http.StatusBadRequest},
		{"unknown article", http.MethodGet, "/api/articles/nope", "", http.StatusNotFound},
	}

	h := newTestServer(&fakeService{})
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.target, tt.body)
		if rec.Code != tt.status {
			t.Fatalf("%s: status %d, want %d (%s)", tt.name, rec.Code, tt.status, rec.Body.String())
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
			t.Fatalf("%s: expected JSON error body, got %q", tt.name, rec.Body.String())
		}
	}
}

func TestThesisAndHistoryRoutes(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	h := newTestServer(svc)

	if rec := do(t, h, http.MethodPost, "/api/theses", `{"title":"Storage","text":"Batteries win"}`); rec.Code != http.StatusCreated {
		t.Fatalf("create thesis: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, "/api/theses/t1/active", `{"active":false}`); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"active":false`) {
		t.Fatalf("set active: %d %s", rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodPost, "/api/history/source/s1/star", "")
	if rec.Code != http.StatusOK || svc.toggled != "source/s1" || !strings.Contains(rec.Body.String(), `"starred":true`) {
		t.Fatalf("toggle star: %d %s (%s)", rec.Code, rec.Body.String(), svc.toggled)
	}
	if rec := do(t, h, http.MethodDelete, "/api/history/thesis/t1", ""); rec.Code != http.StatusNoContent || svc.deleted != "thesis/t1" {
		t.Fatalf("delete: %d (%s)", rec.Code, svc.deleted)
	}
}

func TestMatchesPassQueryParameters(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	rec := do(t, newTestServer(svc), http.MethodGet, "/api/matches?starred=true&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !svc.lastStarred || svc.lastLimit != 5 {
		t.Fatalf("query not forwarded: starred=%v limit=%d", svc.lastStarred, svc.lastLimit)
	}
	var matches []matchView
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(matches) != 1 || matches[0].Score != 0.8 || matches[0].ThesisID != "t1" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

func TestMonitorAndHealth(t *testing.T) {
	t.Parallel()

	h := newTestServer(&fakeService{})
	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/monitor", "")
	var resp monitorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sources != 2 || resp.NewArticles != 3 || !resp.Notified {
		t.Fatalf("unexpected monitor response: %+v", resp)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodOptions, "/api/theses", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	newTestServer(&fakeService{}).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}

func TestSearchReturnsIngestResult(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	rec := do(t, newTestServer(svc), http.MethodPost, "/api/search", `{"keyword":"sodium ion batteries","max_results":4}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastKeyword != "sodium ion batteries" || svc.lastMax != 4 {
		t.Fatalf("unexpected call: %q %d", svc.lastKeyword, svc.lastMax)
	}
	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Source.Kind != domain.SourceSearch || len(resp.Articles) != 1 || resp.Articles[0].Method != string(domain.MethodSearch) {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetArticleReturnsFullText(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(&fakeService{}), http.MethodGet, "/api/articles/a1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp articleDetailView
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "a1" || resp.Text != "Full body of the post." || resp.Summary != "Body." || len(resp.Companies) != 1 {
		t.Fatalf("unexpected article: %+v", resp)
	}
}
