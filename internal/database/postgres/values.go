package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// jsonValue converts decoded pgx values whose default JSON form is unusable
// by the browser (uuid byte arrays, pgtype structs) into plain values.
// time.Time is kept so callers can format it themselves.
func jsonValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int16, int32, int64, float32, float64, time.Time:
		return v
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Numeric:
		b, err := x.MarshalJSON()
		if err != nil || string(b) == "null" {
			return nil
		}
		if strings.HasPrefix(string(b), `"`) {
			return strings.Trim(string(b), `"`) // NaN, Infinity
		}
		return json.Number(b)
	case driver.Valuer:
		out, err := x.Value()
		if err != nil {
			return nil
		}
		return out
	}
	return v
}

func jsonValues(values []any) []any {
	for i, v := range values {
		values[i] = jsonValue(v)
	}
	return values
}
