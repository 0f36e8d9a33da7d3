// Package render writes query results as aligned text tables or CSV.
package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
	"github.com/shunichi-ikebuchi/beanquery/pkg/query"
)

// Format is an output format for query results.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Write renders result to w in the given format.
func Write(w io.Writer, result *query.Result, format Format) error {
	switch format {
	case FormatText:
		return WriteText(w, result)
	case FormatCSV:
		return WriteCSV(w, result)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// WriteText renders result as a table with aligned columns and a header
// underline. Numeric columns are right-aligned.
func WriteText(w io.Writer, result *query.Result) error {
	cells := formatRows(result)
	widths := make([]int, len(result.Columns))
	for i, column := range result.Columns {
		widths[i] = len([]rune(column.Name))
	}
	for _, row := range cells {
		for i, cell := range row {
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := make([]string, len(result.Columns))
	rule := make([]string, len(result.Columns))
	for i, column := range result.Columns {
		header[i] = column.Name
		rule[i] = strings.Repeat("-", widths[i])
	}
	writeLine(tw, header)
	writeLine(tw, rule)

	for _, row := range cells {
		line := make([]string, len(row))
		for i, cell := range row {
			if isNumeric(result.Columns[i].Type) {
				cell = strings.Repeat(" ", widths[i]-len([]rune(cell))) + cell
			}
			line[i] = cell
		}
		writeLine(tw, line)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

func writeLine(w io.Writer, cells []string) {
	fmt.Fprintln(w, strings.Join(cells, "\t"))
}

// WriteCSV renders result as CSV with a header row.
func WriteCSV(w io.Writer, result *query.Result) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(result.Columns))
	for i, column := range result.Columns {
		header[i] = column.Name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := cw.WriteAll(formatRows(result)); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return nil
}

func formatRows(result *query.Result) [][]string {
	cells := make([][]string, len(result.Rows))
	for i, row := range result.Rows {
		cells[i] = make([]string, len(row))
		for j, value := range row {
			cells[i][j] = FormatValue(value)
		}
	}
	return cells
}

func isNumeric(t query.DataType) bool {
	return t == query.TypeInt || t == query.TypeDecimal
}

// FormatValue renders a single result value. Nil renders as an empty string.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return v.Format(beancount.DateLayout)
	case decimal.Decimal:
		return v.String()
	case beancount.Amount:
		return v.String()
	case *beancount.Amount:
		if v == nil {
			return ""
		}
		return v.String()
	case beancount.Inventory:
		return v.String()
	case []string:
		items := append([]string(nil), v...)
		sort.Strings(items)
		return strings.Join(items, ",")
	}
	return fmt.Sprint(value)
}
