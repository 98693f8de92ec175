// Package ddl builds DuckDB statements for file readers, table materialization and export.
package ddl

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ColumnDef describes a column for CREATE TABLE.
type ColumnDef struct {
	Name string
	Type string
}

// CSVOptions configures read_csv.
type CSVOptions struct {
	Delimiter   string
	Header      bool
	SkipRows    int
	NullValues  []string
	ColumnTypes map[string]string
}

// ReadCSV returns a SELECT over read_csv for a single local file.
//
//	SELECT * FROM read_csv('/data/a.csv', delim = ',', header = true)
func ReadCSV(path string, opts CSVOptions) (string, error) {
	if path == "" {
		return "", fmt.Errorf("source path is required")
	}
	args := []string{QuoteLiteral(path)}
	if opts.Delimiter != "" {
		args = append(args, "delim = "+QuoteLiteral(opts.Delimiter))
	}
	args = append(args, fmt.Sprintf("header = %t", opts.Header))
	if opts.SkipRows > 0 {
		args = append(args, fmt.Sprintf("skip = %d", opts.SkipRows))
	}
	if len(opts.NullValues) > 0 {
		vals := make([]string, len(opts.NullValues))
		for i, v := range opts.NullValues {
			vals[i] = QuoteLiteral(v)
		}
		args = append(args, "nullstr = ["+strings.Join(vals, ", ")+"]")
	}
	if len(opts.ColumnTypes) > 0 {
		cols := make([]string, 0, len(opts.ColumnTypes))
		for c := range opts.ColumnTypes {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		entries := make([]string, len(cols))
		for i, c := range cols {
			t := opts.ColumnTypes[c]
			if err := ValidateColumnType(t); err != nil {
				return "", fmt.Errorf("invalid column type for %q: %w", c, err)
			}
			entries[i] = QuoteLiteral(c) + ": " + QuoteLiteral(strings.ToUpper(t))
		}
		args = append(args, "types = {"+strings.Join(entries, ", ")+"}")
	}
	return "SELECT * FROM read_csv(" + strings.Join(args, ", ") + ")", nil
}

// ReadParquet returns a SELECT over read_parquet for one or more local files.
func ReadParquet(paths ...string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("source path is required")
	}
	quoted := make([]string, len(paths))
	for i, p := range paths {
		if p == "" {
			return "", fmt.Errorf("source path is required")
		}
		quoted[i] = QuoteLiteral(p)
	}
	return fmt.Sprintf("SELECT * FROM read_parquet([%s])", strings.Join(quoted, ", ")), nil
}

// CopyToParquet returns a COPY statement exporting query to a Parquet file.
func CopyToParquet(query, path string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required")
	}
	if path == "" {
		return "", fmt.Errorf("destination path is required")
	}
	return fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET, COMPRESSION ZSTD)", query, QuoteLiteral(path)), nil
}

// CreateTable returns CREATE TABLE "<name>" ("<col1>" TYPE1, ...).
func CreateTable(name string, columns []ColumnDef) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	colDefs := make([]string, 0, len(columns))
	for _, c := range columns {
		if c.Name == "" {
			return "", fmt.Errorf("column name is required")
		}
		if err := ValidateColumnType(c.Type); err != nil {
			return "", fmt.Errorf("invalid column type for %q: %w", c.Name, err)
		}
		colDefs = append(colDefs, fmt.Sprintf("%s %s", QuoteIdentifier(c.Name), c.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdentifier(name), strings.Join(colDefs, ", ")), nil
}

// CreateTableAs returns CREATE TABLE "<name>" AS <query>.
func CreateTableAs(name, query string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required")
	}
	return fmt.Sprintf("CREATE TABLE %s AS %s", QuoteIdentifier(name), query), nil
}

// DropTable returns DROP TABLE IF EXISTS "<name>".
func DropTable(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return "DROP TABLE IF EXISTS " + QuoteIdentifier(name), nil
}

// Cast returns CAST(expr AS typ).
func Cast(expr, typ string) string {
	return fmt.Sprintf("CAST(%s AS %s)", expr, typ)
}

// TypedNull returns a NULL literal of the given type.
func TypedNull(typ string) string {
	return Cast("NULL", typ)
}

// TimestampLiteral renders t (in UTC) as a DuckDB TIMESTAMP literal.
func TimestampLiteral(t time.Time) string {
	return "TIMESTAMP " + QuoteLiteral(t.UTC().Format("2006-01-02 15:04:05.999999"))
}
