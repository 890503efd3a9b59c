package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"ThesisScout/internal/domain"
)

// Request carries all parameters required to execute a discovery run.
type Request struct {
	IndexURL    string
	Keyword     string
	MaxArticles int
}

// Strategy is a single discovery technique (structured data, HTML heuristics,
// feeds, sitemaps, placeholders).
type Strategy interface {
	Name() string
	Discover(ctx context.Context, req Request) ([]domain.ArticleStub, error)
}

// Chain runs strategies in priority order until one of them yields enough
// new articles, concatenating partial results along the way.
type Chain struct {
	strategies []Strategy
	fallback   Strategy
	minYield   int
	logger     *slog.Logger
}

// NewChain builds a chain. minYield below 1 is treated as 1.
func NewChain(minYield int, logger *slog.Logger, strategies ...Strategy) *Chain {
	if minYield < 1 {
		minYield = 1
	}
	return &Chain{strategies: strategies, minYield: minYield, logger: logger}
}

// WithFallback sets the strategy run only when every ordered strategy found
// nothing.
func (c *Chain) WithFallback(s Strategy) *Chain {
	c.fallback = s
	return c
}

// Names lists the ordered strategies followed by the fallback.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.strategies)+1)
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	if c.fallback != nil {
		names = append(names, c.fallback.Name())
	}
	return names
}

// Run executes the chain. Strategy errors are recorded per attempt and never
// abort the run; the result is bounded by req.MaxArticles.
func (c *Chain) Run(ctx context.Context, req Request) domain.DiscoveryResult {
	result := domain.DiscoveryResult{IndexURL: req.IndexURL}
	seen := map[string]struct{}{}

	for _, strategy := range c.strategies {
		if ctx.Err() != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("discovery interrupted: %v", ctx.Err()))
			break
		}

		stubs, err := strategy.Discover(ctx, req)
		added := 0
		for _, stub := range stubs {
			if len(result.Stubs) >= req.MaxArticles {
				break
			}
			key := CanonicalURL(stub.URL)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			stub.URL = key
			result.Stubs = append(result.Stubs, stub)
			added++
		}

		attempt := domain.DiscoveryAttempt{Strategy: strategy.Name(), Yield: added}
		if err != nil {
			attempt.Error = err.Error()
		}
		result.Attempts = append(result.Attempts, attempt)
		c.debug("strategy finished", "strategy", strategy.Name(), "yield", added, "total", len(result.Stubs), "error", err)

		if added >= c.minYield || len(result.Stubs) >= req.MaxArticles {
			break
		}
	}

	if len(result.Stubs) > 0 || c.fallback == nil {
		if len(result.Stubs) == 0 {
			result.Exhausted = true
			result.Warnings = append(result.Warnings, "no articles discovered")
		}
		return result
	}

	stubs, err := c.fallback.Discover(context.WithoutCancel(ctx), req)
	if len(stubs) > req.MaxArticles {
		stubs = stubs[:req.MaxArticles]
	}
	attempt := domain.DiscoveryAttempt{Strategy: c.fallback.Name(), Yield: len(stubs)}
	if err != nil {
		attempt.Error = err.Error()
	}
	result.Attempts = append(result.Attempts, attempt)
	result.Stubs = append(result.Stubs, stubs...)
	result.Exhausted = true
	result.Warnings = append(result.Warnings, fmt.Sprintf("all discovery strategies failed for %s; returning placeholders", req.IndexURL))
	return result
}

func (c *Chain) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

// CanonicalURL normalizes a URL for identity comparison: lowercase scheme and
// host, no fragment, no tracking parameters, no trailing slash. Fragments are
// kept for synthetic in-page identities (placeholder and inline entries).
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if !strings.HasPrefix(u.Fragment, "placeholder-") && !strings.HasPrefix(u.Fragment, "entry-") {
		u.Fragment = ""
	}
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if strings.HasPrefix(strings.ToLower(key), "utm_") {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
