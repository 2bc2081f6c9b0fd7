package main

import (
	"context"
	"database/sql"
	"time"

	annotationservice "marginalia/internal/annotation/service"
	annotationstore "marginalia/internal/annotation/store"
	dErrors "marginalia/pkg/domain-errors"
)

const defaultAnnotationTxTimeout = 5 * time.Second

// annotationPostgresTx runs multi-step annotation mutations inside one
// database transaction, so a conversion's delete and recreate are never
// observable halfway.
type annotationPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newAnnotationPostgresTx(db *sql.DB) *annotationPostgresTx {
	return &annotationPostgresTx{db: db}
}

func (t *annotationPostgresTx) RunInTx(ctx context.Context, fn func(store annotationservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultAnnotationTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(annotationstore.NewPostgresTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
