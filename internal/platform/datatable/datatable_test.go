package datatable

import (
	"bytes"
	"html/template"
	"strings"
	"testing"
)

type row struct {
	Name  string
	Value string
}

func newTestTable() *Table[row] {
	return &Table[row]{
		Columns: []Column[row]{
			{
				Name:     "Name",
				Render:   func(r row) template.HTML { return template.HTML("<b>" + template.HTMLEscapeString(r.Name) + "</b>") },
				Download: func(r row) string { return r.Name },
				Filter: func(r row, _, upper string) bool {
					return strings.Contains(strings.ToUpper(r.Name), upper)
				},
				SortBy: func(r row) string { return r.Name },
			},
			{
				Name:     "Value",
				Download: func(r row) string { return r.Value },
				Filter: func(r row, _, upper string) bool {
					return strings.Contains(strings.ToUpper(r.Value), upper)
				},
			},
		},
		ShowFilter:   true,
		ItemsPerPage: ShowAllPageSize,
	}
}

var testRows = []row{
	{"Sex", "Male"},
	{"Age", "63"},
	{"Cancer Type", "Breast"},
}

func TestApply_FilterIsCaseInsensitiveAcrossColumns(t *testing.T) {
	tbl := newTestTable()

	got := tbl.Apply(testRows, Query{Filter: "cancer"})
	if len(got) != 1 || got[0].Name != "Cancer Type" {
		t.Errorf("expected Cancer Type, got %+v", got)
	}

	got = tbl.Apply(testRows, Query{Filter: "male"})
	if len(got) != 1 || got[0].Name != "Sex" {
		t.Errorf("expected value column match, got %+v", got)
	}
}

func TestApply_EmptyFilterKeepsOrder(t *testing.T) {
	tbl := newTestTable()
	got := tbl.Apply(testRows, Query{})
	for i := range testRows {
		if got[i] != testRows[i] {
			t.Fatalf("expected input order to be kept, got %+v", got)
		}
	}
}

func TestApply_Sort(t *testing.T) {
	tbl := newTestTable()

	asc := tbl.Apply(testRows, Query{SortBy: "name", Ascending: true})
	if asc[0].Name != "Age" || asc[2].Name != "Sex" {
		t.Errorf("unexpected ascending order: %+v", asc)
	}

	desc := tbl.Apply(testRows, Query{SortBy: "Name"})
	if desc[0].Name != "Sex" {
		t.Errorf("unexpected descending order: %+v", desc)
	}

	unsortable := tbl.Apply(testRows, Query{SortBy: "Value", Ascending: true})
	if unsortable[0].Name != "Sex" {
		t.Errorf("expected unsortable column to keep order, got %+v", unsortable)
	}
}

func TestApply_Pagination(t *testing.T) {
	tbl := newTestTable()
	tbl.ShowPagination = true
	tbl.ItemsPerPage = 2

	if got := tbl.Apply(testRows, Query{Page: 0}); len(got) != 2 {
		t.Errorf("expected 2 rows on first page, got %d", len(got))
	}
	if got := tbl.Apply(testRows, Query{Page: 1}); len(got) != 1 {
		t.Errorf("expected 1 row on second page, got %d", len(got))
	}
	if got := tbl.Apply(testRows, Query{Page: 5}); len(got) != 0 {
		t.Errorf("expected empty page, got %d", len(got))
	}
}

func TestDownload(t *testing.T) {
	tbl := newTestTable()
	var buf bytes.Buffer
	if err := tbl.Download(&buf, testRows[:2]); err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	want := "Name\tValue\nSex\tMale\nAge\t63\n"
	if buf.String() != want {
		t.Errorf("Download() = %q, want %q", buf.String(), want)
	}
}

func TestView(t *testing.T) {
	tbl := newTestTable()
	v := tbl.View(testRows[:1], Query{Filter: "x"})

	if len(v.Headers) != 2 || !v.Headers[0].Sortable || v.Headers[1].Sortable {
		t.Errorf("unexpected headers: %+v", v.Headers)
	}
	if v.Rows[0][0] != "<b>Sex</b>" {
		t.Errorf("expected rendered cell, got %q", v.Rows[0][0])
	}
	if v.Rows[0][1] != "Male" {
		t.Errorf("expected download fallback, got %q", v.Rows[0][1])
	}
	if !v.ShowFilter || v.Filter != "x" {
		t.Errorf("expected filter state to carry through, got %+v", v)
	}
}
