package engine

import "strings"

// Column is a named, DuckDB-typed column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema is an ordered list of columns.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Lookup finds a column by exact name.
func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// LookupFold finds a column by name ignoring case, the way DuckDB resolves
// unquoted and quoted identifiers alike.
func (s Schema) LookupFold(name string) (Column, bool) {
	for _, c := range s {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Has reports whether a column with the given name exists.
func (s Schema) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Missing returns the names in want that are absent from s, preserving order.
func (s Schema) Missing(want []string) []string {
	var out []string
	for _, n := range want {
		if !s.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// Equal reports whether two schemas have the same names and types in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// TextType is the type every disagreeing or mismatched column is coerced to.
const TextType = "VARCHAR"

var numericTypes = map[string]bool{
	"TINYINT": true, "SMALLINT": true, "INTEGER": true, "BIGINT": true, "HUGEINT": true,
	"UTINYINT": true, "USMALLINT": true, "UINTEGER": true, "UBIGINT": true, "UHUGEINT": true,
	"FLOAT": true, "REAL": true, "DOUBLE": true,
}

// IsNumericType reports whether a DuckDB type name is numeric.
func IsNumericType(t string) bool {
	u := strings.ToUpper(strings.TrimSpace(t))
	if strings.HasPrefix(u, "DECIMAL") || strings.HasPrefix(u, "NUMERIC") {
		return true
	}
	return numericTypes[u]
}
