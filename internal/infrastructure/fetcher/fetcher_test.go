package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
)

func testConfig() config.FetcherConfig {
	return config.FetcherConfig{
		ConnectTimeout: time.Second,
		TotalTimeout:   2 * time.Second,
		MaxAttempts:    3,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BlockThreshold: 3,
		RateLimit:      1000,
		RateBurst:      10,
		MaxBodyBytes:   1 << 20,
	}
}

func TestFetchSuccessSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	f := New(testConfig(), nil)
	page, err := f.Fetch(context.Background(), server.URL+"/post")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if page.Status != http.StatusOK || !page.IsHTML() {
		t.Fatalf("unexpected page: status=%d ct=%s", page.Status, page.ContentType)
	}
	if !strings.Contains(string(page.Body), "ok") {
		t.Fatalf("unexpected body: %s", page.Body)
	}
	if ua, _ := gotUA.Load().(string); !strings.HasPrefix(ua, "Mozilla/5.0") {
		t.Fatalf("expected browser user agent, got %q", ua)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	page, err := New(testConfig(), nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if string(page.Body) != "recovered" {
		t.Fatalf("unexpected body: %s", page.Body)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestFetchBlockedAfterRepeatedForbidden(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		agents []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxAttempts = 5
	_, err := New(cfg, nil).Fetch(context.Background(), server.URL)
	if !domain.IsBlocked(err) {
		t.Fatalf("expected blocked error, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(agents) != 3 {
		t.Fatalf("expected exactly 3 requests, got %d", len(agents))
	}
	if agents[0] == agents[1] || agents[1] == agents[2] {
		t.Fatalf("expected rotating user agents, got %v", agents)
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := New(testConfig(), nil).Fetch(context.Background(), server.URL+"/missing")
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != domain.FailureHTTP || fe.Status != http.StatusNotFound {
		t.Fatalf("unexpected failure: %+v", fe)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single call, got %d", calls.Load())
	}
}

func TestFetchRetriesTooManyRequests(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("fine"))
	}))
	defer server.Close()

	start := time.Now()
	_, err := New(testConfig(), nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Retry-After must be capped by max backoff")
	}
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.TotalTimeout = 50 * time.Millisecond
	cfg.MaxAttempts = 2

	_, err := New(cfg, nil).Fetch(context.Background(), server.URL)
	if kind := domain.KindOf(err); kind != domain.FailureTimeout {
		t.Fatalf("expected timeout, got %q (%v)", kind, err)
	}
}

func TestFetchConnectionError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := server.URL
	server.Close()

	_, err := New(testConfig(), nil).Fetch(context.Background(), target)
	if kind := domain.KindOf(err); kind != domain.FailureConnection {
		t.Fatalf("expected connection error, got %q (%v)", kind, err)
	}
}

func TestFetchTLSVerification(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxAttempts = 1
	if _, err := New(cfg, nil).Fetch(context.Background(), server.URL); err == nil {
		t.Fatalf("expected certificate verification failure")
	}

	cfg.InsecureSkipVerify = true
	page, err := New(cfg, nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch with verification disabled: %v", err)
	}
	if string(page.Body) != "secure" {
		t.Fatalf("unexpected body: %s", page.Body)
	}
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "mailto:someone@example.com"} {
		_, err := New(testConfig(), nil).Fetch(context.Background(), raw)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Fetch(%q): expected invalid input, got %v", raw, err)
		}
	}
}

func TestFetchCapsBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxBodyBytes = 100
	page, err := New(cfg, nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(page.Body) != 100 {
		t.Fatalf("expected body capped at 100 bytes, got %d", len(page.Body))
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	f := New(config.FetcherConfig{BaseBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}, nil)
	if got := f.backoff(1, 0); got != 100*time.Millisecond {
		t.Fatalf("attempt 1: %s", got)
	}
	if got := f.backoff(2, 0); got != 200*time.Millisecond {
		t.Fatalf("attempt 2: %s", got)
	}
	if got := f.backoff(3, 0); got != 300*time.Millisecond {
		t.Fatalf("attempt 3 must be capped: %s", got)
	}
	if got := f.backoff(1, 10*time.Second); got != 300*time.Millisecond {
		t.Fatalf("retry-after must be capped: %s", got)
	}
}
