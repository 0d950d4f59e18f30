package persistence

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// mapError classifies a driver error. notFound is the message for a missing row.
func mapError(err error, notFound, failed string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewError(errcodes.NotFound, notFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return domain.WrapError(err, errcodes.Conflict, failed+": already exists")
		case pgForeignKeyViolation:
			return domain.WrapError(err, errcodes.NotFound, failed+": referenced row not found")
		}
	}
	return domain.WrapError(err, errcodes.InternalServerError, "repository: "+failed)
}
