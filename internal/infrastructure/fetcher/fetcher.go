package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
)

// Fetcher retrieves pages with retries, exponential backoff, per-host rate
// limiting and rotating browser header profiles.
type Fetcher struct {
	client   *http.Client
	cfg      config.FetcherConfig
	profiles []HeaderProfile
	next     atomic.Uint64
	sticky   *cache.Cache
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ ports.PageFetcher = (*Fetcher)(nil)

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithProfiles replaces the built-in header profiles.
func WithProfiles(profiles []HeaderProfile) Option {
	return func(f *Fetcher) {
		if len(profiles) > 0 {
			f.profiles = profiles
		}
	}
}

// New builds a Fetcher from configuration.
func New(cfg config.FetcherConfig, logger *slog.Logger, opts ...Option) *Fetcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BlockThreshold < 1 {
		cfg.BlockThreshold = 3
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = 30 * time.Minute
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		if logger != nil {
			logger.Warn("TLS certificate verification disabled for fetcher")
		}
	}

	f := &Fetcher{
		client:   &http.Client{Timeout: cfg.TotalTimeout, Transport: transport},
		cfg:      cfg,
		profiles: DefaultProfiles(),
		sticky:   cache.New(cfg.ProfileTTL, 2*cfg.ProfileTTL),
		logger:   logger,
		limiters: map[string]*rate.Limiter{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs rawURL. Failures are returned as *domain.FetchError once the
// attempt budget is spent, or earlier for non-retryable outcomes.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (domain.Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.Page{}, domain.InvalidInput("unfetchable url %q", rawURL)
	}
	target := u.String()
	host := strings.ToLower(u.Hostname())

	profile := f.startProfile(host)
	forbidden := 0
	var last *domain.FetchError

	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if err := f.limiter(host).Wait(ctx); err != nil {
			return domain.Page{}, &domain.FetchError{Kind: domain.FailureTimeout, URL: target, Attempts: attempt - 1, Err: err}
		}

		page, wait, ferr := f.do(ctx, target, f.profiles[profile])
		if ferr == nil {
			f.sticky.SetDefault(host, profile)
			return page, nil
		}
		ferr.Attempts = attempt
		last = ferr

		if ferr.Status == http.StatusForbidden {
			forbidden++
			if forbidden >= f.cfg.BlockThreshold {
				f.sticky.Delete(host)
				ferr.Kind = domain.FailureBlocked
				f.debug("host blocked", "url", target, "attempts", attempt)
				return domain.Page{}, ferr
			}
			profile = (profile + 1) % len(f.profiles)
		} else {
			forbidden = 0
		}

		if ctx.Err() != nil || !retryable(ferr) || attempt == f.cfg.MaxAttempts {
			break
		}

		delay := f.backoff(attempt, wait)
		f.debug("retry fetch", "url", target, "attempt", attempt, "kind", ferr.Kind, "status", ferr.Status, "delay", delay)
		if err := sleep(ctx, delay); err != nil {
			last = &domain.FetchError{Kind: domain.FailureTimeout, URL: target, Attempts: attempt, Err: err}
			break
		}
	}

	return domain.Page{}, last
}

func (f *Fetcher) do(ctx context.Context, target string, profile HeaderProfile) (domain.Page, time.Duration, *domain.FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.Page{}, 0, &domain.FetchError{Kind: domain.FailureConnection, URL: target, Err: err}
	}
	for key, value := range profile.Headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Page{}, 0, classify(ctx, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.Page{}, retryAfter(resp.Header.Get("Retry-After")), &domain.FetchError{
			Kind:   domain.FailureHTTP,
			URL:    target,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return domain.Page{}, 0, classify(ctx, target, fmt.Errorf("read body: %w", err))
	}

	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	return domain.Page{
		URL:         target,
		FinalURL:    final,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, 0, nil
}

func (f *Fetcher) startProfile(host string) int {
	if v, ok := f.sticky.Get(host); ok {
		if idx, ok := v.(int); ok && idx < len(f.profiles) {
			return idx
		}
	}
	return int((f.next.Add(1) - 1) % uint64(len(f.profiles)))
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.limiters[host]; ok {
		return l
	}
	limit := rate.Inf
	if f.cfg.RateLimit > 0 {
		limit = rate.Limit(f.cfg.RateLimit)
	}
	burst := f.cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(limit, burst)
	f.limiters[host] = l
	return l
}

func (f *Fetcher) backoff(attempt int, retryAfter time.Duration) time.Duration {
	delay := f.cfg.BaseBackoff * time.Duration(1<<uint(attempt-1))
	if retryAfter > 0 {
		delay = retryAfter
	}
	if f.cfg.MaxBackoff > 0 && delay > f.cfg.MaxBackoff {
		delay = f.cfg.MaxBackoff
	}
	return delay
}

func (f *Fetcher) debug(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}

func retryable(err *domain.FetchError) bool {
	switch err.Kind {
	case domain.FailureTimeout, domain.FailureConnection:
		return true
	case domain.FailureHTTP:
		return err.Status == http.StatusForbidden ||
			err.Status == http.StatusTooManyRequests ||
			err.Status >= http.StatusInternalServerError
	}
	return false
}

func classify(ctx context.Context, target string, err error) *domain.FetchError {
	kind := domain.FailureConnection
	var netErr net.Error
	switch {
	case ctx.Err() != nil:
		kind = domain.FailureTimeout
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = domain.FailureTimeout
	}
	return &domain.FetchError{Kind: kind, URL: target, Err: err}
}

func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
