package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
)

const (
	sourceColumns  = "id, url, kind, articles_found, processed, starred, last_monitored, created_at"
	articleColumns = "id, url, source_url, title, body, summary, published_at, authors, companies, keywords, top_image, method, embedding, embedding_model, fetched_at"
	thesisColumns  = "id, title, body, points, keywords, companies, embedding, embedding_model, active, created_at, updated_at"
)

// HistoryRepository persists sources, articles and theses in SQLite or
// Postgres.
type HistoryRepository struct {
	db      *sql.DB
	dialect dialect
	sb      sq.StatementBuilderType
	now     func() time.Time
}

var _ ports.HistoryStore = (*HistoryRepository)(nil)

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg config.StorageConfig) (*HistoryRepository, error) {
	driverName := cfg.Driver
	if cfg.Driver == config.DriverSQLite {
		if dir := filepath.Dir(cfg.DSN); cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName, err)
	}
	if cfg.Driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	repo, err := NewHistoryRepository(db, cfg.Driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewHistoryRepository wires a sql.DB for the given driver.
func NewHistoryRepository(db *sql.DB, driver string) (*HistoryRepository, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &HistoryRepository{
		db:      db,
		dialect: d,
		sb:      sq.StatementBuilder.PlaceholderFormat(d.Placeholder()),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Migrate creates missing tables and indexes.
func (r *HistoryRepository) Migrate(ctx context.Context) error {
	for _, stmt := range r.dialect.Schema() {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (r *HistoryRepository) Close() error {
	return r.db.Close()
}

// SaveSource upserts a source by URL, keeping the id, star flag and creation
// time of an existing row.
func (r *HistoryRepository) SaveSource(ctx context.Context, source domain.Source) (domain.Source, error) {
	existing, err := r.sourceByURL(ctx, source.URL)
	switch {
	case err == nil:
		_, err = r.sb.Update("sources").
			Set("kind", source.Kind).
			Set("articles_found", source.ArticlesFound).
			Set("processed", source.Processed).
			Where(sq.Eq{"id": existing.ID}).
			RunWith(r.db).ExecContext(ctx)
		if err != nil {
			return domain.Source{}, fmt.Errorf("update source: %w", err)
		}
		existing.Kind = source.Kind
		existing.ArticlesFound = source.ArticlesFound
		existing.Processed = source.Processed
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Source{}, err
	}

	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	if source.CreatedAt.IsZero() {
		source.CreatedAt = r.now()
	}
	_, err = r.sb.Insert("sources").
		Columns(sourceColumns).
		Values(source.ID, source.URL, source.Kind, source.ArticlesFound, source.Processed, source.Starred, nullTime(source.LastMonitored), source.CreatedAt.UTC()).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return domain.Source{}, fmt.Errorf("insert source: %w", err)
	}
	return source, nil
}

func (r *HistoryRepository) sourceByURL(ctx context.Context, url string) (domain.Source, error) {
	row := r.sb.Select(sourceColumns).From("sources").Where(sq.Eq{"url": url}).RunWith(r.db).QueryRowContext(ctx)
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Source{}, fmt.Errorf("select source: %w", err)
	}
	return source, nil
}

// SaveArticle upserts an article by id. The star flag is preserved.
func (r *HistoryRepository) SaveArticle(ctx context.Context, article domain.Article) error {
	if article.ID == "" {
		article.ID = domain.ArticleID(article.URL)
	}
	if article.FetchedAt.IsZero() {
		article.FetchedAt = r.now()
	}

	authors, err := r.dialect.ListValue(article.Authors)
	if err != nil {
		return err
	}
	companies, err := r.dialect.ListValue(article.Companies)
	if err != nil {
		return err
	}
	keywords, err := r.dialect.ListValue(article.Keywords)
	if err != nil {
		return err
	}
	vector, err := r.dialect.VectorValue(article.Embedding.Vector)
	if err != nil {
		return err
	}

	_, err = r.sb.Insert("articles").
		Columns(articleColumns).
		Values(article.ID, article.URL, article.SourceURL, article.Title, article.Text, article.Summary,
			nullTime(article.PublishedAt), authors, companies, keywords, article.TopImage, string(article.Method),
			vector, article.Embedding.Model, article.FetchedAt.UTC()).
		Suffix(upsertClause("id", articleColumns)).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("upsert article: %w", err)
	}
	return nil
}

// SaveThesis upserts a thesis by id. The star flag is preserved.
func (r *HistoryRepository) SaveThesis(ctx context.Context, thesis domain.ThesisDocument) error {
	if thesis.ID == "" {
		return domain.InvalidInput("thesis id is empty")
	}
	now := r.now()
	if thesis.CreatedAt.IsZero() {
		thesis.CreatedAt = now
	}
	if thesis.UpdatedAt.IsZero() {
		thesis.UpdatedAt = now
	}

	points, err := r.dialect.ListValue(thesis.Points)
	if err != nil {
		return err
	}
	keywords, err := r.dialect.ListValue(thesis.Keywords)
	if err != nil {
		return err
	}
	companies, err := r.dialect.ListValue(thesis.Companies)
	if err != nil {
		return err
	}
	vector, err := r.dialect.VectorValue(thesis.Embedding.Vector)
	if err != nil {
		return err
	}

	_, err = r.sb.Insert("theses").
		Columns(thesisColumns).
		Values(thesis.ID, thesis.Title, thesis.Text, points, keywords, companies, vector, thesis.Embedding.Model,
			thesis.Active, thesis.CreatedAt.UTC(), thesis.UpdatedAt.UTC()).
		Suffix(upsertClause("id", thesisColumns, "created_at")).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("upsert thesis: %w", err)
	}
	return nil
}

// GetThesis loads one thesis.
func (r *HistoryRepository) GetThesis(ctx context.Context, id string) (domain.ThesisDocument, error) {
	row := r.sb.Select(thesisColumns).From("theses").Where(sq.Eq{"id": id}).RunWith(r.db).QueryRowContext(ctx)
	thesis, err := r.scanThesis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ThesisDocument{}, fmt.Errorf("thesis %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ThesisDocument{}, fmt.Errorf("select thesis: %w", err)
	}
	return thesis, nil
}

// GetArticle loads one article with its full text.
func (r *HistoryRepository) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	row := r.sb.Select(articleColumns).From("articles").Where(sq.Eq{"id": id}).RunWith(r.db).QueryRowContext(ctx)
	article, err := r.scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("select article: %w", err)
	}
	return article, nil
}

// ListSources returns sources newest first.
func (r *HistoryRepository) ListSources(ctx context.Context, starredOnly bool) ([]domain.Source, error) {
	q := r.sb.Select(sourceColumns).From("sources").OrderBy("created_at DESC", "id")
	if starredOnly {
		q = q.Where(sq.Eq{"starred": true})
	}
	rows, err := q.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}

	var sources []domain.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, closeRows(rows)
}

// ListArticles returns articles newest first. StarredOnly keeps starred
// articles and articles of starred sources.
func (r *HistoryRepository) ListArticles(ctx context.Context, filter domain.ArticleFilter) ([]domain.Article, error) {
	q := r.sb.Select(articleColumns).From("articles").OrderBy("fetched_at DESC", "url")
	if filter.SourceURL != "" {
		q = q.Where(sq.Eq{"source_url": filter.SourceURL})
	}
	if filter.StarredOnly {
		q = q.Where(sq.Or{
			sq.Eq{"starred": true},
			sq.Expr("source_url IN (SELECT url FROM sources WHERE starred = ?)", true),
		})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	rows, err := q.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}

	var articles []domain.Article
	for rows.Next() {
		article, err := r.scanArticle(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, closeRows(rows)
}

// ListTheses returns theses oldest first.
func (r *HistoryRepository) ListTheses(ctx context.Context, activeOnly bool) ([]domain.ThesisDocument, error) {
	q := r.sb.Select(thesisColumns).From("theses").OrderBy("created_at", "id")
	if activeOnly {
		q = q.Where(sq.Eq{"active": true})
	}
	rows, err := q.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query theses: %w", err)
	}

	var theses []domain.ThesisDocument
	for rows.Next() {
		thesis, err := r.scanThesis(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan thesis: %w", err)
		}
		theses = append(theses, thesis)
	}
	return theses, closeRows(rows)
}

// History merges sources, articles and theses, newest first.
func (r *HistoryRepository) History(ctx context.Context, limit int) ([]domain.HistoryItem, error) {
	queries := []struct {
		kind domain.RecordKind
		q    sq.SelectBuilder
	}{
		{domain.KindSource, r.sb.Select("id", "url", "url", "starred", "TRUE", "created_at").From("sources")},
		{domain.KindArticle, r.sb.Select("id", "url", "title", "starred", "TRUE", "fetched_at").From("articles")},
		{domain.KindThesis, r.sb.Select("id", "''", "title", "starred", "active", "created_at").From("theses")},
	}

	var items []domain.HistoryItem
	for _, entry := range queries {
		q := entry.q.OrderBy("6 DESC")
		if limit > 0 {
			q = q.Limit(uint64(limit))
		}
		rows, err := q.RunWith(r.db).QueryContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s history: %w", entry.kind, err)
		}
		for rows.Next() {
			item := domain.HistoryItem{Kind: entry.kind}
			if err := rows.Scan(&item.ID, &item.URL, &item.Title, &item.Starred, &item.Active, &item.CreatedAt); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan %s history: %w", entry.kind, err)
			}
			items = append(items, item)
		}
		if err := closeRows(rows); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Delete removes one record.
func (r *HistoryRepository) Delete(ctx context.Context, kind domain.RecordKind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := r.sb.Delete(table).Where(sq.Eq{"id": id}).RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	return requireAffected(res, kind, id)
}

// ToggleStar flips the star flag and returns the new value.
func (r *HistoryRepository) ToggleStar(ctx context.Context, kind domain.RecordKind, id string) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	res, err := r.sb.Update(table).Set("starred", sq.Expr("NOT starred")).Where(sq.Eq{"id": id}).RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("toggle %s star: %w", kind, err)
	}
	if err := requireAffected(res, kind, id); err != nil {
		return false, err
	}

	var starred bool
	err = r.sb.Select("starred").From(table).Where(sq.Eq{"id": id}).RunWith(r.db).QueryRowContext(ctx).Scan(&starred)
	if err != nil {
		return false, fmt.Errorf("read %s star: %w", kind, err)
	}
	return starred, nil
}

// SetThesisActive includes or excludes a thesis from matching.
func (r *HistoryRepository) SetThesisActive(ctx context.Context, id string, active bool) error {
	res, err := r.sb.Update("theses").
		Set("active", active).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": id}).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("set thesis active: %w", err)
	}
	return requireAffected(res, domain.KindThesis, id)
}

// MarkMonitored records when a starred source was last re-checked.
func (r *HistoryRepository) MarkMonitored(ctx context.Context, sourceID string, at time.Time) error {
	res, err := r.sb.Update("sources").Set("last_monitored", at.UTC()).Where(sq.Eq{"id": sourceID}).RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark monitored: %w", err)
	}
	return requireAffected(res, domain.KindSource, sourceID)
}

// KnownURLs returns the subset of urls already stored as embedded articles.
// Articles saved without an embedding still count as new.
func (r *HistoryRepository) KnownURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(urls) == 0 {
		return result, nil
	}

	rows, err := r.sb.Select("url").From("articles").
		Where(sq.Eq{"url": urls}).
		Where(sq.NotEq{"embedding_model": ""}).
		RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query known urls: %w", err)
	}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan url: %w", err)
		}
		result[u] = true
	}
	return result, closeRows(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (domain.Source, error) {
	var (
		s         domain.Source
		monitored sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.URL, &s.Kind, &s.ArticlesFound, &s.Processed, &s.Starred, &monitored, &s.CreatedAt); err != nil {
		return domain.Source{}, err
	}
	s.LastMonitored = timePtr(monitored)
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func (r *HistoryRepository) scanArticle(row rowScanner) (domain.Article, error) {
	var (
		a         domain.Article
		published sql.NullTime
		method    string
	)
	err := row.Scan(&a.ID, &a.URL, &a.SourceURL, &a.Title, &a.Text, &a.Summary, &published,
		r.dialect.ListDest(&a.Authors), r.dialect.ListDest(&a.Companies), r.dialect.ListDest(&a.Keywords),
		&a.TopImage, &method, r.dialect.VectorDest(&a.Embedding.Vector), &a.Embedding.Model, &a.FetchedAt)
	if err != nil {
		return domain.Article{}, err
	}
	a.Method = domain.DiscoveryMethod(method)
	a.PublishedAt = timePtr(published)
	a.FetchedAt = a.FetchedAt.UTC()
	return a, nil
}

func (r *HistoryRepository) scanThesis(row rowScanner) (domain.ThesisDocument, error) {
	var t domain.ThesisDocument
	err := row.Scan(&t.ID, &t.Title, &t.Text, r.dialect.ListDest(&t.Points), r.dialect.ListDest(&t.Keywords),
		r.dialect.ListDest(&t.Companies), r.dialect.VectorDest(&t.Embedding.Vector), &t.Embedding.Model,
		&t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.ThesisDocument{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

// upsertClause builds ON CONFLICT ... DO UPDATE for every column except the
// key and the kept ones; both SQLite and Postgres accept it.
func upsertClause(key, columns string, keep ...string) string {
	skip := map[string]bool{key: true}
	for _, k := range keep {
		skip[k] = true
	}
	var sets []string
	for _, col := range strings.Split(columns, ",") {
		col = strings.TrimSpace(col)
		if !skip[col] {
			sets = append(sets, col+" = excluded."+col)
		}
	}
	return "ON CONFLICT (" + key + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

func tableFor(kind domain.RecordKind) (string, error) {
	switch kind {
	case domain.KindSource:
		return "sources", nil
	case domain.KindArticle:
		return "articles", nil
	case domain.KindThesis:
		return "theses", nil
	}
	return "", domain.InvalidInput("unknown record kind %q", kind)
}

func requireAffected(res sql.Result, kind domain.RecordKind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close rows: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
