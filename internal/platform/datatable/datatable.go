// Package datatable provides a generic sortable, filterable table whose
// columns carry their own render, download, filter and sort functions.
package datatable

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
)

// ShowAllPageSize disables paging: every row is shown on one page.
const ShowAllPageSize = -1

// Column describes one table column.
type Column[T any] struct {
	Name string
	// Render produces the cell markup.
	Render func(row T) template.HTML
	// Download produces the plain-text cell for copy and download.
	Download func(row T) string
	// Filter reports whether the row matches. filterUpper is filter
	// upper-cased once per query.
	Filter func(row T, filter, filterUpper string) bool
	// SortBy returns the sort key; columns without it are not sortable.
	SortBy func(row T) string
}

func (c Column[T]) Sortable() bool { return c.SortBy != nil }

// Table holds column definitions and display toggles.
type Table[T any] struct {
	Columns              []Column[T]
	ShowPagination       bool
	ShowFilter           bool
	ShowCopyDownload     bool
	ShowColumnVisibility bool
	ItemsPerPage         int
	ClassName            string
}

// Query selects and orders rows.
type Query struct {
	Filter    string
	SortBy    string
	Ascending bool
	Page      int
}

// Apply filters and sorts rows. A row passes the filter when any column's
// Filter accepts it. Sorting is stable, so rows with equal keys keep their
// input order.
func (t *Table[T]) Apply(rows []T, q Query) []T {
	out := make([]T, 0, len(rows))
	filter := strings.TrimSpace(q.Filter)
	upper := strings.ToUpper(filter)
	for _, r := range rows {
		if filter == "" || t.matches(r, filter, upper) {
			out = append(out, r)
		}
	}

	if col, ok := t.column(q.SortBy); ok && col.Sortable() {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := col.SortBy(out[i]), col.SortBy(out[j])
			if q.Ascending {
				return a < b
			}
			return a > b
		})
	}

	if t.ShowPagination && t.ItemsPerPage > 0 {
		start := q.Page * t.ItemsPerPage
		if start >= len(out) {
			return out[:0]
		}
		end := start + t.ItemsPerPage
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out
}

func (t *Table[T]) matches(row T, filter, upper string) bool {
	for _, c := range t.Columns {
		if c.Filter != nil && c.Filter(row, filter, upper) {
			return true
		}
	}
	return false
}

func (t *Table[T]) column(name string) (Column[T], bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column[T]{}, false
}

// Download writes rows as tab-separated text with a header line.
func (t *Table[T]) Download(w io.Writer, rows []T) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, r := range rows {
		for i, c := range t.Columns {
			if c.Download != nil {
				record[i] = c.Download(r)
			} else {
				record[i] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// View is the rendered form of a table, ready for a template.
type View struct {
	ClassName        string            `json:"class_name,omitempty"`
	Headers          []Header          `json:"headers"`
	Rows             [][]template.HTML `json:"rows"`
	ShowFilter       bool              `json:"show_filter"`
	ShowCopyDownload bool              `json:"show_copy_download"`
	ShowPagination   bool              `json:"show_pagination"`
	Filter           string            `json:"filter,omitempty"`
}

// Header describes a column header in a View.
type Header struct {
	Name     string `json:"name"`
	Sortable bool   `json:"sortable"`
}

// View renders rows through each column's Render function.
func (t *Table[T]) View(rows []T, q Query) View {
	v := View{
		ClassName:        t.ClassName,
		Headers:          make([]Header, len(t.Columns)),
		Rows:             make([][]template.HTML, 0, len(rows)),
		ShowFilter:       t.ShowFilter,
		ShowCopyDownload: t.ShowCopyDownload,
		ShowPagination:   t.ShowPagination,
		Filter:           q.Filter,
	}
	for i, c := range t.Columns {
		v.Headers[i] = Header{Name: c.Name, Sortable: c.Sortable()}
	}
	for _, r := range rows {
		cells := make([]template.HTML, len(t.Columns))
		for i, c := range t.Columns {
			if c.Render != nil {
				cells[i] = c.Render(r)
			} else if c.Download != nil {
				cells[i] = template.HTML(template.HTMLEscapeString(c.Download(r)))
			}
		}
		v.Rows = append(v.Rows, cells)
	}
	return v
}
