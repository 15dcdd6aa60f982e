package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the subset of *pgxpool.Pool used by postgresStore.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	selectDocumentSQL = `SELECT document FROM directory_documents WHERE name = $1`

	upsertDocumentSQL = `INSERT INTO directory_documents (name, document, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`
)

// postgresStore keeps the document as raw bytes in one row of directory_documents.
// BYTEA is used rather than JSONB so the stored bytes stay identical to what was written.
type postgresStore struct {
	db    querier
	name  string
	close func()
}

func newPostgresStore(db querier, name string, closeFn func()) *postgresStore {
	return &postgresStore{db: db, name: name, close: closeFn}
}

// Load returns the row's document, or nil when the row does not exist.
func (s *postgresStore) Load(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, selectDocumentSQL, s.name).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select document %q: %w", s.name, err)
	}
	return doc, nil
}

// Save upserts the document row.
func (s *postgresStore) Save(ctx context.Context, doc []byte) error {
	if _, err := s.db.Exec(ctx, upsertDocumentSQL, s.name, doc); err != nil {
		return fmt.Errorf("upsert document %q: %w", s.name, err)
	}
	return nil
}

func (s *postgresStore) Describe() string {
	return "postgres:directory_documents/" + s.name
}

func (s *postgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
