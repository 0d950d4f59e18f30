package persistence

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

type txKey struct{}

// querier is the part of sqlx shared by *sqlx.DB and *sqlx.Tx.
type querier interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// conn returns the transaction carried by ctx, or db outside of one.
func conn(ctx context.Context, db *sqlx.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

type Transactor struct {
	db *sqlx.DB
}

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to commit transaction")
	}
	return nil
}

// lockClause is appended to reads that must hold the row for the rest of a transaction.
// Outside a transaction the lock would be released immediately, so it is omitted.
func lockClause(ctx context.Context) string {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return " FOR UPDATE"
	}
	return ""
}
