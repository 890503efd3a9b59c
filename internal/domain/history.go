package domain

import (
	"strings"
	"time"
)

// RecordKind names the kind of a persisted history record.
type RecordKind string

const (
	KindSource  RecordKind = "source"
	KindArticle RecordKind = "article"
	KindThesis  RecordKind = "thesis"
)

// ParseRecordKind validates a user-supplied record kind.
func ParseRecordKind(value string) (RecordKind, error) {
	switch k := RecordKind(value); k {
	case KindSource, KindArticle, KindThesis:
		return k, nil
	}
	return "", InvalidInput("unknown record kind %q", value)
}

// Source kinds.
const (
	SourceIndex   = "index"
	SourceArticle = "article"
	SourceSearch  = "search"
)

const searchScheme = "search:"

// SearchSourceURL is the stored identity of a keyword search.
func SearchSourceURL(keyword string) string {
	return searchScheme + strings.ToLower(strings.Join(strings.Fields(keyword), " "))
}

// SearchKeyword recovers the keyword from a SearchSourceURL.
func SearchKeyword(sourceURL string) (string, bool) {
	keyword, ok := strings.CutPrefix(sourceURL, searchScheme)
	return keyword, ok && keyword != ""
}

// Source is an index URL, single article URL or keyword search the user
// has submitted.
type Source struct {
	ID            string
	URL           string
	Kind          string
	ArticlesFound int
	Processed     int
	Starred       bool
	LastMonitored *time.Time
	CreatedAt     time.Time
}

// ArticleFilter narrows history article listings.
type ArticleFilter struct {
	SourceURL   string
	StarredOnly bool
	Limit       int
}

// HistoryItem is one row of the combined search history.
type HistoryItem struct {
	ID        string
	Kind      RecordKind
	URL       string
	Title     string
	Starred   bool
	Active    bool
	CreatedAt time.Time
}
