package catalog

// Column describes a single column in a table
type Column struct {
	Name          string  `json:"name"`
	DataType      string  `json:"dataType"` // information_schema label: integer, text, timestamp without time zone, ...
	IsNullable    bool    `json:"isNullable"`
	MaxLength     *int    `json:"maxLength,omitempty"` // nil for non-char types
	Default       *string `json:"default,omitempty"`   // nil if no default
	ForeignTable  *string `json:"foreignTableName,omitempty"`
	ForeignColumn *string `json:"foreignColumnName,omitempty"`
}

// Table describes a table and its columns in ordinal order.
// Columns is empty when the table does not exist.
type Table struct {
	Schema  string   `json:"schema"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Exists reports whether the catalog returned any columns for the table.
func (t *Table) Exists() bool {
	return len(t.Columns) > 0
}

// Column looks up a column by exact name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns the column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
