package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"marginalia/internal/document/models"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
)

// Schema is the documents table DDL. Integration tests bootstrap containers
// with it; deployments manage the same table through their migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	resource TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	digest TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStore persists documents in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const documentColumns = `id, resource, title, content, digest, created_at`

func (s *PostgresStore) Put(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(doc.ID),
		doc.Resource,
		doc.Title,
		doc.Content,
		doc.Digest,
		doc.Created,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return dErrors.Newf(dErrors.CodeConflict, "resource %s is already registered", doc.Resource)
		}
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, uuid.UUID(docID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) GetByResource(ctx context.Context, resource string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE resource = $1`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, resource))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document by resource: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Resolve(ctx context.Context, docID id.DocumentID) (string, error) {
	var resource string
	err := s.db.QueryRowContext(ctx, `SELECT resource FROM documents WHERE id = $1`, uuid.UUID(docID)).Scan(&resource)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("resolve document: %w", err)
	}
	return resource, nil
}

func scanDocument(row *sql.Row) (*models.Document, error) {
	var (
		doc   models.Document
		rawID uuid.UUID
	)
	err := row.Scan(
		&rawID,
		&doc.Resource,
		&doc.Title,
		&doc.Content,
		&doc.Digest,
		&doc.Created,
	)
	if err != nil {
		return nil, err
	}
	doc.ID = id.DocumentID(rawID)
	return &doc, nil
}
