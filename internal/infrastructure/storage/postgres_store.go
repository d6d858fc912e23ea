package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"articlepipe/internal/domain"
	"articlepipe/internal/ports"
)

// execer is the subset of pgxpool.Pool used by the store.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore inserts summary records into a Postgres table.
type PostgresStore struct {
	db    execer
	table string
}

var _ ports.SummaryStore = (*PostgresStore)(nil)

// NewPostgresStore wires a pool (or any execer) to the table named table.
func NewPostgresStore(db execer, table string) *PostgresStore {
	return &PostgresStore{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

// OpenPool creates a connection pool and verifies it.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the summaries table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
              id UUID PRIMARY KEY,
              url TEXT NOT NULL,
              original_content TEXT NOT NULL,
              summary TEXT NOT NULL,
              created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
          )`

	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Save inserts a new row per call; duplicates of a URL are kept.
func (s *PostgresStore) Save(ctx context.Context, record domain.SummaryRecord) error {
	if s.db == nil {
		return fmt.Errorf("postgres store has no connection")
	}

	query, args, err := sq.Insert(s.table).
		Columns("id", "url", "original_content", "summary").
		Values(uuid.NewString(), record.URL, record.OriginalContent, record.Summary).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}
