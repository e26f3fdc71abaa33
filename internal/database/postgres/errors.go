package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/pgstudio/internal/errs"
)

// PostgreSQL SQLSTATE error codes the admin surface distinguishes.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrUniqueViolation     = "23505"
	pgErrNotNullViolation    = "23502"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
	pgErrDuplicateTable      = "42P07"
	pgErrDuplicateSchema     = "42P06"
	pgErrUndefinedTable      = "42P01"
	pgErrUndefinedColumn     = "42703"
	pgErrInvalidSchemaName   = "3F000"
	pgErrInsufficientPriv    = "42501"
	pgErrQueryCanceled       = "57014"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
// A nil err maps to a nil error interface.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	// Already translated (e.g. Scan on a wrapped row).
	var own *errs.Error
	if errors.As(err, &own) {
		return err
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// No rows
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(kindForCode(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	// Scan/encode problems are client-side but still execution failures.
	if strings.Contains(err.Error(), "cannot scan") || strings.Contains(err.Error(), "failed to encode") {
		return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func kindForCode(code string) errs.ErrKind {
	switch code {
	case pgErrUniqueViolation, pgErrDuplicateTable, pgErrDuplicateSchema:
		return errs.ErrKindConflict
	case pgErrNotNullViolation, pgErrForeignKeyViolation, pgErrCheckViolation:
		return errs.ErrKindInvalidInput
	case pgErrUndefinedTable, pgErrUndefinedColumn, pgErrInvalidSchemaName:
		return errs.ErrKindNotFound
	case pgErrInsufficientPriv:
		return errs.ErrKindPermissionDenied
	case pgErrQueryCanceled:
		return errs.ErrKindTimeout
	}

	switch {
	// Class 08: connection errors
	case strings.HasPrefix(code, "08"):
		return errs.ErrKindConnectionFailed
	// Class 22: data exceptions (bad integer/boolean/date text, value too long)
	case strings.HasPrefix(code, "22"):
		return errs.ErrKindInvalidInput
	// Class 28: invalid authorization
	case strings.HasPrefix(code, "28"):
		return errs.ErrKindPermissionDenied
	}
	return errs.ErrKindQueryFailed
}
