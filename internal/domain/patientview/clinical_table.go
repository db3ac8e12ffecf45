package patientview

import (
	"html/template"
	"sort"
	"strings"

	"github.com/ehr/patientview/internal/domain/patient"
	"github.com/ehr/patientview/internal/platform/clinicalfmt"
	"github.com/ehr/patientview/internal/platform/datatable"
)

// DownloadControlsShowAll is the SKIN_HIDE_DOWNLOAD_CONTROLS value that
// allows copy and download controls.
const DownloadControlsShowAll = "show"

// ClinicalRow is one row of the clinical attribute table.
type ClinicalRow struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// AttributeOrder reports whether a sorts before b.
type AttributeOrder func(a, b patient.ClinicalAttribute) bool

// ByPriorityThenName orders attributes by ascending numeric priority, then by
// display name.
func ByPriorityThenName(a, b patient.ClinicalAttribute) bool {
	pa, pb := a.PriorityValue(), b.PriorityValue()
	if pa != pb {
		return pa < pb
	}
	return strings.ToLower(a.DisplayName) < strings.ToLower(b.DisplayName)
}

// SortClinicalData returns a sorted copy of data. A nil order uses
// ByPriorityThenName.
func SortClinicalData(data []patient.ClinicalData, order AttributeOrder) []patient.ClinicalData {
	if order == nil {
		order = ByPriorityThenName
	}
	out := make([]patient.ClinicalData, len(data))
	copy(out, data)
	sort.SliceStable(out, func(i, j int) bool {
		return order(out[i].ClinicalAttribute, out[j].ClinicalAttribute)
	})
	return out
}

// ClinicalRows sorts data and pairs each attribute's display name with its
// value.
func ClinicalRows(data []patient.ClinicalData, order AttributeOrder) []ClinicalRow {
	sorted := SortClinicalData(data, order)
	rows := make([]ClinicalRow, len(sorted))
	for i, d := range sorted {
		rows[i] = ClinicalRow{Attribute: d.ClinicalAttribute.DisplayName, Value: d.Value}
	}
	return rows
}

// ClinicalTableOptions are the caller-controlled display toggles.
type ClinicalTableOptions struct {
	ShowFilter       bool
	ShowCopyDownload bool
	// HideDownloadControls is the server-wide SKIN_HIDE_DOWNLOAD_CONTROLS
	// setting; copy and download are only shown when it is "show".
	HideDownloadControls string
	OnSelectGenePanel    clinicalfmt.GenePanelSelector
}

// NewClinicalAttributeTable builds the two-column Attribute/Value table.
// Pagination is always off.
func NewClinicalAttributeTable(opts ClinicalTableOptions) *datatable.Table[ClinicalRow] {
	return &datatable.Table[ClinicalRow]{
		Columns: []datatable.Column[ClinicalRow]{
			{
				Name: "Attribute",
				Render: func(r ClinicalRow) template.HTML {
					return template.HTML("<span>" + template.HTMLEscapeString(r.Attribute) + "</span>")
				},
				Download: func(r ClinicalRow) string { return r.Attribute },
				Filter: func(r ClinicalRow, _, upper string) bool {
					return strings.Contains(strings.ToUpper(r.Attribute), upper)
				},
				SortBy: func(r ClinicalRow) string { return r.Attribute },
			},
			{
				Name:   "Value",
				Render: func(r ClinicalRow) template.HTML { return renderValue(r, opts.OnSelectGenePanel) },
				Download: func(r ClinicalRow) string {
					return clinicalfmt.Format(r.Attribute, r.Value)
				},
				Filter: func(r ClinicalRow, _, upper string) bool {
					return strings.Contains(strings.ToUpper(r.Value), upper)
				},
			},
		},
		ShowPagination:       false,
		ShowColumnVisibility: false,
		ShowFilter:           opts.ShowFilter,
		ShowCopyDownload:     opts.ShowCopyDownload && opts.HideDownloadControls == DownloadControlsShowAll,
		ItemsPerPage:         datatable.ShowAllPageSize,
		ClassName:            "patientTable",
	}
}

func renderValue(r ClinicalRow, onSelect clinicalfmt.GenePanelSelector) template.HTML {
	switch {
	case clinicalfmt.IsURL(r.Value):
		v := template.HTMLEscapeString(r.Value)
		return template.HTML(`<a href="` + v + `" target="_blank" rel="noopener">` + v + `</a>`)
	case r.Attribute == clinicalfmt.GenePanelAttribute:
		return clinicalfmt.RenderGenePanelLinks(r.Value, onSelect)
	default:
		return "<span>" + clinicalfmt.HTMLFormat(r.Attribute, r.Value) + "</span>"
	}
}
