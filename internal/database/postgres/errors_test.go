package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), errs.ErrKindTimeout},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"unique", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, errs.ErrKindConflict},
		{"duplicate schema", &pgconn.PgError{Code: "42P06"}, errs.ErrKindConflict},
		{"not null", &pgconn.PgError{Code: "23502"}, errs.ErrKindInvalidInput},
		{"bad integer text", &pgconn.PgError{Code: "22P02"}, errs.ErrKindInvalidInput},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, errs.ErrKindNotFound},
		{"undefined column", &pgconn.PgError{Code: "42703"}, errs.ErrKindNotFound},
		{"privilege", &pgconn.PgError{Code: "42501"}, errs.ErrKindPermissionDenied},
		{"syntax", &pgconn.PgError{Code: "42601"}, errs.ErrKindQueryFailed},
		{"admin shutdown", &pgconn.PgError{Code: "08006"}, errs.ErrKindConnectionFailed},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "op")
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.NoError(t, mapError(nil, "op"))
}

func TestMapError_KeepsTranslated(t *testing.T) {
	own := errs.New(errs.ErrKindConflict, "exists")
	assert.Same(t, own, mapError(own, "op"))
}

func TestMapError_MessageIncludesServerText(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "42703", Message: `column "nope" does not exist`}, "update failed")
	assert.Equal(t, `update failed: column "nope" does not exist`, errs.Message(err))
}
