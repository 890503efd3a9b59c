package usecase

import (
	"context"

	"ThesisScout/internal/domain"
)

// History lists saved sources, articles and theses, newest first.
func (p *Pipeline) History(ctx context.Context, limit int) ([]domain.HistoryItem, error) {
	if p.store == nil {
		return nil, errNoStore
	}
	return p.store.History(ctx, limit)
}

// Article loads one stored article with its full text.
func (p *Pipeline) Article(ctx context.Context, id string) (domain.Article, error) {
	if p.store == nil {
		return domain.Article{}, errNoStore
	}
	return p.store.GetArticle(ctx, id)
}

// Theses lists saved theses.
func (p *Pipeline) Theses(ctx context.Context, activeOnly bool) ([]domain.ThesisDocument, error) {
	if p.store == nil {
		return nil, errNoStore
	}
	return p.store.ListTheses(ctx, activeOnly)
}

// ToggleStar flips the starred flag and returns the new value.
func (p *Pipeline) ToggleStar(ctx context.Context, kind domain.RecordKind, id string) (bool, error) {
	if p.store == nil {
		return false, errNoStore
	}
	return p.store.ToggleStar(ctx, kind, id)
}

// Delete removes a history record.
func (p *Pipeline) Delete(ctx context.Context, kind domain.RecordKind, id string) error {
	if p.store == nil {
		return errNoStore
	}
	return p.store.Delete(ctx, kind, id)
}
