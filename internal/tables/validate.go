package tables

import (
	"unicode/utf8"

	"github.com/koustreak/pgstudio/internal/catalog"
	"github.com/koustreak/pgstudio/internal/errs"
)

// validateValue applies the category checks a bulk edit must pass before
// anything is written: nullability, integer, boolean and character length.
// It is not full type coercion; PostgreSQL still has the final word.
func validateValue(col catalog.Column, v any) error {
	if isNull(v) {
		if !col.IsNullable {
			return errs.Newf(errs.ErrKindInvalidInput, "Column '%s' cannot be null", col.Name)
		}
		return nil
	}

	switch {
	case isIntegerType(col.DataType):
		if !looksLikeInteger(v) {
			return errs.Newf(errs.ErrKindInvalidInput, "Column '%s' expects an integer, got %v", col.Name, v)
		}
	case isBooleanType(col.DataType):
		if !looksLikeBoolean(v) {
			return errs.Newf(errs.ErrKindInvalidInput, "Column '%s' expects a boolean, got %v", col.Name, v)
		}
	case isCharType(col.DataType) && col.MaxLength != nil:
		if n := utf8.RuneCountInString(textOf(v)); n > *col.MaxLength {
			return errs.Newf(errs.ErrKindInvalidInput,
				"Value for column '%s' is too long (%d > %d characters)", col.Name, n, *col.MaxLength)
		}
	}
	return nil
}

// validateUpdates checks every update of a batch against the table and
// returns the first failure.
func validateUpdates(t *catalog.Table, updates []RowUpdate) error {
	for i, u := range updates {
		if u.RowID == nil {
			return errs.Newf(errs.ErrKindInvalidInput, "Update %d has no row id", i+1)
		}
		if len(u.Data) == 0 {
			return errs.Newf(errs.ErrKindInvalidInput, "Update for row %v has no data", u.RowID)
		}
		for name, v := range u.Data {
			col, ok := t.Column(name)
			if !ok {
				return errs.Newf(errs.ErrKindInvalidInput, "Column '%s' does not exist in table '%s'", name, t.Name)
			}
			if err := validateValue(col, v); err != nil {
				return err
			}
		}
	}
	return nil
}
