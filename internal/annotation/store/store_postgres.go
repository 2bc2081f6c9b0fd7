package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"marginalia/internal/annotation/models"
	id "marginalia/pkg/domain"
)

// Schema is the annotations table DDL. Integration tests bootstrap containers
// with it; deployments manage the same table through their migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS annotations (
	id UUID PRIMARY KEY,
	resource TEXT NOT NULL,
	motivation TEXT NOT NULL,
	exact_text TEXT NOT NULL DEFAULT '',
	start_offset INTEGER NOT NULL,
	end_offset INTEGER NOT NULL,
	prefix TEXT NOT NULL DEFAULT '',
	suffix TEXT NOT NULL DEFAULT '',
	body_kind TEXT NOT NULL DEFAULT 'empty',
	body_value TEXT NOT NULL DEFAULT '',
	body_source TEXT NOT NULL DEFAULT '',
	body_entity_types TEXT[] NOT NULL DEFAULT '{}',
	body_purpose TEXT NOT NULL DEFAULT '',
	creator TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS annotations_resource_idx ON annotations (resource, created_at);
`

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same store can run standalone or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists annotations in PostgreSQL. Pure I/O; conversion
// rules and overlap policy live in the service and segmenter.
type PostgresStore struct {
	db dbtx
}

// NewPostgres constructs a PostgreSQL-backed annotation store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to an open transaction. The caller
// owns commit and rollback.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: tx}
}

const annotationColumns = `id, resource, motivation, exact_text, start_offset, end_offset, prefix, suffix,
	body_kind, body_value, body_source, body_entity_types, body_purpose, creator, created_at`

func (s *PostgresStore) Create(ctx context.Context, resource string, motivation models.Motivation, target models.Target, body models.Body, creator string) (*models.Annotation, error) {
	if target.Source == "" {
		target.Source = resource
	}
	a, err := models.NewAnnotation(id.NewAnnotationID(), motivation, target, body, creator, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO annotations (` + annotationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(a.ID),
		a.Target.Source,
		string(a.Motivation),
		a.Target.Exact,
		a.Target.Start,
		a.Target.End,
		a.Target.Prefix,
		a.Target.Suffix,
		string(a.Body.Kind),
		a.Body.Value,
		a.Body.Source,
		pq.Array(entityTypesOrEmpty(a.Body.EntityTypes)),
		a.Body.Purpose,
		a.Creator,
		a.Created,
	)
	if err != nil {
		return nil, fmt.Errorf("create annotation: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateBody(ctx context.Context, annID id.AnnotationID, body models.Body) (*models.Annotation, error) {
	query := `
		UPDATE annotations
		SET body_kind = $2, body_value = $3, body_source = $4, body_entity_types = $5, body_purpose = $6
		WHERE id = $1
		RETURNING ` + annotationColumns
	row := s.db.QueryRowContext(ctx, query,
		uuid.UUID(annID),
		string(body.Kind),
		body.Value,
		body.Source,
		pq.Array(entityTypesOrEmpty(body.EntityTypes)),
		body.Purpose,
	)
	a, err := scanAnnotation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update annotation body: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Delete(ctx context.Context, annID id.AnnotationID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = $1`, uuid.UUID(annID))
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, annID id.AnnotationID) (*models.Annotation, error) {
	query := `SELECT ` + annotationColumns + ` FROM annotations WHERE id = $1`
	a, err := scanAnnotation(s.db.QueryRowContext(ctx, query, uuid.UUID(annID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get annotation: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) List(ctx context.Context, resource string) ([]*models.Annotation, error) {
	query := `SELECT ` + annotationColumns + ` FROM annotations WHERE resource = $1 ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, resource)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	var out []*models.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("list annotations: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnnotation(row rowScanner) (*models.Annotation, error) {
	var (
		a           models.Annotation
		rawID       uuid.UUID
		motivation  string
		bodyKind    string
		entityTypes pq.StringArray
	)
	err := row.Scan(
		&rawID,
		&a.Target.Source,
		&motivation,
		&a.Target.Exact,
		&a.Target.Start,
		&a.Target.End,
		&a.Target.Prefix,
		&a.Target.Suffix,
		&bodyKind,
		&a.Body.Value,
		&a.Body.Source,
		&entityTypes,
		&a.Body.Purpose,
		&a.Creator,
		&a.Created,
	)
	if err != nil {
		return nil, err
	}
	a.ID = id.AnnotationID(rawID)
	a.Motivation = models.Motivation(motivation)
	a.Body.Kind = models.BodyKind(bodyKind)
	if len(entityTypes) > 0 {
		a.Body.EntityTypes = []string(entityTypes)
	}
	return &a, nil
}

// entityTypesOrEmpty keeps NULL out of the array column.
func entityTypesOrEmpty(types []string) []string {
	if types == nil {
		return []string{}
	}
	return types
}
