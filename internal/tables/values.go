package tables

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// bindValue converts a decoded JSON value into a bind parameter. Scalars are
// sent as text so that PostgreSQL parses them according to the column type;
// objects and arrays are sent as their JSON text for json/jsonb columns.
// Empty strings become NULL.
func bindValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if x == "" {
			return nil
		}
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

// keyValue renders a row identifier for comparison against the key column.
func keyValue(v any) any {
	if s, ok := v.(string); ok {
		return s
	}
	return bindValue(v)
}

// isNull reports whether v will be written as NULL.
func isNull(v any) bool {
	return bindValue(v) == nil
}

// unwrapID accepts either a scalar id or a row object and returns the value
// of the key column.
func unwrapID(id any, pk string) (any, bool) {
	m, ok := id.(map[string]any)
	if !ok {
		return id, id != nil
	}
	v, ok := m[pk]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// textOf renders a bound value for length checks.
func textOf(v any) string {
	if s, ok := bindValue(v).(string); ok {
		return s
	}
	return ""
}

func isIntegerType(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "smallint", "integer", "bigint", "int2", "int4", "int8", "smallserial", "serial", "bigserial":
		return true
	}
	return false
}

func isBooleanType(dataType string) bool {
	dt := strings.ToLower(dataType)
	return dt == "boolean" || dt == "bool"
}

func isCharType(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "character varying", "varchar", "character", "char", "bpchar":
		return true
	}
	return false
}

func looksLikeInteger(v any) bool {
	switch x := v.(type) {
	case json.Number:
		_, err := strconv.ParseInt(x.String(), 10, 64)
		return err == nil
	case float64:
		return x == float64(int64(x))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return err == nil
	}
	return false
}

func looksLikeBoolean(v any) bool {
	switch x := v.(type) {
	case bool:
		return true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "false", "t", "f", "1", "0", "yes", "no":
			return true
		}
	}
	return false
}
