package parser

import (
	"context"
	"sync"

	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
)

// memoFetcher shares page downloads between the strategies of one discovery
// run. Failures are remembered too, so a blocked index is not retried by
// every strategy.
type memoFetcher struct {
	inner ports.PageFetcher

	mu    sync.Mutex
	pages map[string]memoEntry
}

type memoEntry struct {
	page domain.Page
	err  error
}

var _ ports.PageFetcher = (*memoFetcher)(nil)

func newMemoFetcher(inner ports.PageFetcher) *memoFetcher {
	return &memoFetcher{inner: inner, pages: map[string]memoEntry{}}
}

func (m *memoFetcher) Fetch(ctx context.Context, rawURL string) (domain.Page, error) {
	m.mu.Lock()
	entry, ok := m.pages[rawURL]
	m.mu.Unlock()
	if ok {
		return entry.page, entry.err
	}

	page, err := m.inner.Fetch(ctx, rawURL)
	if ctx.Err() == nil {
		m.mu.Lock()
		m.pages[rawURL] = memoEntry{page: page, err: err}
		m.mu.Unlock()
	}
	return page, err
}
