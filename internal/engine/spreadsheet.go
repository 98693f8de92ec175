package engine

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/xuri/excelize/v2"

	"dclake/internal/ddl"
)

// SheetOptions configures spreadsheet decoding.
type SheetOptions struct {
	Sheet      string // defaults to the first sheet
	Header     bool
	SkipRows   int
	NullValues []string
}

// LoadSpreadsheet decodes a workbook sheet eagerly into a session table and
// returns a lazy relation over it. Columns whose non-null cells all parse as
// integers become BIGINT, as numbers DOUBLE, everything else VARCHAR.
func (s *Session) LoadSpreadsheet(ctx context.Context, label, path string, opts SheetOptions) (*Relation, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	if opts.SkipRows > 0 {
		if opts.SkipRows >= len(records) {
			records = nil
		} else {
			records = records[opts.SkipRows:]
		}
	}

	header, data := splitSheet(records, opts.Header)
	if len(header) == 0 {
		return nil, fmt.Errorf("sheet %q of %s is empty", sheet, path)
	}

	nulls := map[string]bool{"": true}
	for _, v := range opts.NullValues {
		nulls[v] = true
	}
	cols := make([]ddl.ColumnDef, len(header))
	for i, name := range header {
		cols[i] = ddl.ColumnDef{Name: name, Type: inferCellType(data, i, nulls)}
	}

	name := s.nextName("sheet")
	stmt, err := ddl.CreateTable(name, cols)
	if err != nil {
		return nil, err
	}
	if err := s.exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("stage sheet %s: %w", path, err)
	}

	err = s.conn.Raw(func(raw any) error {
		dc, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected raw conn type %T", raw)
		}
		app, err := duckdb.NewAppenderFromConn(dc, "", name)
		if err != nil {
			return fmt.Errorf("create appender: %w", err)
		}
		defer func() { _ = app.Close() }()

		vals := make([]driver.Value, len(cols))
		for r, row := range data {
			for i, c := range cols {
				vals[i] = cellValue(row, i, c.Type, nulls)
			}
			if err := app.AppendRow(vals...); err != nil {
				return fmt.Errorf("append row %d: %w", r+1, err)
			}
		}
		return app.Flush()
	})
	if err != nil {
		return nil, fmt.Errorf("load sheet %s: %w", path, err)
	}

	return s.Query(label, "SELECT * FROM "+ddl.QuoteIdentifier(name)), nil
}

// splitSheet separates the header from data rows, dropping blank rows and
// naming blank or duplicate headers.
func splitSheet(records [][]string, hasHeader bool) ([]string, [][]string) {
	var rows [][]string
	width := 0
	for _, r := range records {
		if isBlankRow(r) {
			continue
		}
		rows = append(rows, r)
		if len(r) > width {
			width = len(r)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var raw []string
	if hasHeader {
		raw = rows[0]
		rows = rows[1:]
	}
	header := make([]string, width)
	seen := map[string]int{}
	for i := range header {
		name := ""
		if i < len(raw) {
			name = strings.TrimSpace(raw[i])
		}
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		header[i] = name
	}
	return header, rows
}

func isBlankRow(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func inferCellType(rows [][]string, col int, nulls map[string]bool) string {
	allInt, allNum, seen := true, true, false
	for _, r := range rows {
		if col >= len(r) || nulls[strings.TrimSpace(r[col])] {
			continue
		}
		v := strings.TrimSpace(r[col])
		seen = true
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allNum = false
			break
		}
	}
	switch {
	case !seen:
		return TextType
	case allInt:
		return "BIGINT"
	case allNum:
		return "DOUBLE"
	default:
		return TextType
	}
}

func cellValue(row []string, col int, typ string, nulls map[string]bool) driver.Value {
	if col >= len(row) {
		return nil
	}
	v := strings.TrimSpace(row[col])
	if nulls[v] {
		return nil
	}
	switch typ {
	case "BIGINT":
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case "DOUBLE":
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return row[col]
	}
}
