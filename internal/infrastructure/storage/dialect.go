package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"ThesisScout/internal/config"
)

// dialect hides the column encodings that differ between SQLite and Postgres.
type dialect interface {
	Placeholder() sq.PlaceholderFormat
	Schema() []string
	ListValue(values []string) (any, error)
	ListDest(dst *[]string) sql.Scanner
	VectorValue(vector []float32) (any, error)
	VectorDest(dst *[]float32) sql.Scanner
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case config.DriverSQLite:
		return sqliteDialect{}, nil
	case config.DriverPostgres:
		return postgresDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", driver)
}

// sqliteDialect stores lists and vectors as JSON text.
type sqliteDialect struct{}

func (sqliteDialect) Placeholder() sq.PlaceholderFormat { return sq.Question }

func (sqliteDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id             TEXT PRIMARY KEY,
			url            TEXT NOT NULL UNIQUE,
			kind           TEXT NOT NULL,
			articles_found INTEGER NOT NULL DEFAULT 0,
			processed      INTEGER NOT NULL DEFAULT 0,
			starred        BOOLEAN NOT NULL DEFAULT FALSE,
			last_monitored TIMESTAMP,
			created_at     TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS articles (
			id              TEXT PRIMARY KEY,
			url             TEXT NOT NULL UNIQUE,
			source_url      TEXT NOT NULL DEFAULT '',
			title           TEXT NOT NULL DEFAULT '',
			body            TEXT NOT NULL DEFAULT '',
			summary         TEXT NOT NULL DEFAULT '',
			published_at    TIMESTAMP,
			authors         TEXT,
			companies       TEXT,
			keywords        TEXT,
			top_image       TEXT NOT NULL DEFAULT '',
			method          TEXT NOT NULL,
			embedding       TEXT,
			embedding_model TEXT NOT NULL DEFAULT '',
			starred         BOOLEAN NOT NULL DEFAULT FALSE,
			fetched_at      TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source_url)`,
		`CREATE TABLE IF NOT EXISTS theses (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL DEFAULT '',
			body            TEXT NOT NULL,
			points          TEXT,
			keywords        TEXT,
			companies       TEXT,
			embedding       TEXT,
			embedding_model TEXT NOT NULL DEFAULT '',
			active          BOOLEAN NOT NULL DEFAULT TRUE,
			starred         BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMP NOT NULL,
			updated_at      TIMESTAMP NOT NULL
		)`,
	}
}

func (sqliteDialect) ListValue(values []string) (any, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

func (sqliteDialect) ListDest(dst *[]string) sql.Scanner {
	return jsonDest{dst: dst}
}

func (sqliteDialect) VectorValue(vector []float32) (any, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("encode vector: %w", err)
	}
	return string(b), nil
}

func (sqliteDialect) VectorDest(dst *[]float32) sql.Scanner {
	return jsonDest{dst: dst}
}

type jsonDest struct {
	dst any
}

func (j jsonDest) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scan json column: unsupported type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, j.dst); err != nil {
		return fmt.Errorf("scan json column: %w", err)
	}
	return nil
}

// postgresDialect uses text[] columns and the pgvector extension.
type postgresDialect struct{}

func (postgresDialect) Placeholder() sq.PlaceholderFormat { return sq.Dollar }

func (postgresDialect) Schema() []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS sources (
			id             text PRIMARY KEY,
			url            text NOT NULL UNIQUE,
			kind           text NOT NULL,
			articles_found integer NOT NULL DEFAULT 0,
			processed      integer NOT NULL DEFAULT 0,
			starred        boolean NOT NULL DEFAULT false,
			last_monitored timestamptz,
			created_at     timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS articles (
			id              text PRIMARY KEY,
			url             text NOT NULL UNIQUE,
			source_url      text NOT NULL DEFAULT '',
			title           text NOT NULL DEFAULT '',
			body            text NOT NULL DEFAULT '',
			summary         text NOT NULL DEFAULT '',
			published_at    timestamptz,
			authors         text[],
			companies       text[],
			keywords        text[],
			top_image       text NOT NULL DEFAULT '',
			method          text NOT NULL,
			embedding       vector,
			embedding_model text NOT NULL DEFAULT '',
			starred         boolean NOT NULL DEFAULT false,
			fetched_at      timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source_url)`,
		`CREATE TABLE IF NOT EXISTS theses (
			id              text PRIMARY KEY,
			title           text NOT NULL DEFAULT '',
			body            text NOT NULL,
			points          text[],
			keywords        text[],
			companies       text[],
			embedding       vector,
			embedding_model text NOT NULL DEFAULT '',
			active          boolean NOT NULL DEFAULT true,
			starred         boolean NOT NULL DEFAULT false,
			created_at      timestamptz NOT NULL DEFAULT now(),
			updated_at      timestamptz NOT NULL DEFAULT now()
		)`,
	}
}

func (postgresDialect) ListValue(values []string) (any, error) {
	if values == nil {
		values = []string{}
	}
	return pq.StringArray(values), nil
}

func (postgresDialect) ListDest(dst *[]string) sql.Scanner {
	return pgListDest{dst: dst}
}

func (postgresDialect) VectorValue(vector []float32) (any, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	return pgvector.NewVector(vector), nil
}

func (postgresDialect) VectorDest(dst *[]float32) sql.Scanner {
	return pgVectorDest{dst: dst}
}

type pgListDest struct {
	dst *[]string
}

func (p pgListDest) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return fmt.Errorf("scan text array: %w", err)
	}
	*p.dst = []string(arr)
	return nil
}

type pgVectorDest struct {
	dst *[]float32
}

func (p pgVectorDest) Scan(src any) error {
	if src == nil {
		*p.dst = nil
		return nil
	}
	var v pgvector.Vector
	if err := v.Scan(src); err != nil {
		return fmt.Errorf("scan vector: %w", err)
	}
	*p.dst = v.Slice()
	return nil
}
