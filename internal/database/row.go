package database

import "github.com/koustreak/pgstudio/internal/errs"

// ResultSet is a result read to the end: the column names in select order
// and one record per row keyed by column name.
type ResultSet struct {
	Columns []string
	Records []map[string]any
}

// Collect drains rows into a ResultSet and closes them. Records is empty,
// not nil, when the result has no rows.
func Collect(rows Rows) (*ResultSet, error) {
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, QueryError("failed to read column names", err)
	}

	set := &ResultSet{Columns: names, Records: []map[string]any{}}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, QueryError("failed to read row", err)
		}
		rec := make(map[string]any, len(names))
		for i, v := range vals {
			if i < len(names) {
				rec[names[i]] = v
			}
		}
		set.Records = append(set.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, QueryError("row iteration failed", err)
	}
	return set, nil
}

// ScanRows is Collect without the column list.
func ScanRows(rows Rows) ([]map[string]any, error) {
	set, err := Collect(rows)
	if err != nil {
		return nil, err
	}
	return set.Records, nil
}

// ScanStrings reads the first column of every row as text and closes rows.
func ScanStrings(rows Rows) ([]string, error) {
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, QueryError("failed to scan value", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, QueryError("row iteration failed", err)
	}
	return out, nil
}

// QueryError keeps errors the driver already classified, so the kind and the
// server's message reach the caller. Anything else becomes QueryFailed.
func QueryError(msg string, err error) error {
	if errs.KindOf(err) != errs.ErrKindUnknown {
		return err
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
