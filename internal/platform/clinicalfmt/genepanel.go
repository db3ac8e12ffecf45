package clinicalfmt

import (
	"html/template"
	"strings"
)

// GenePanelSelector returns the link target that selects the given gene
// panel. It is supplied by the page that owns the gene panel modal.
type GenePanelSelector func(panelID string) string

// GenePanelSegment is one entry of a comma-separated gene panel value.
type GenePanelSegment struct {
	Text    string `json:"text"`
	PanelID string `json:"panel_id,omitempty"`
	Link    bool   `json:"link"`
}

// GenePanelLinks splits a comma-separated gene panel value into segments.
// "N/A" entries and "WXS" are not panel ids and stay plain text. For the
// rest, the panel id is the text before the first space, so
// "TESTPANEL2 (mut)" links to TESTPANEL2.
func GenePanelLinks(genePanels string) []GenePanelSegment {
	names := strings.Split(genePanels, ",")
	segments := make([]GenePanelSegment, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || strings.Contains(name, "N/A") || name == "WXS" {
			segments = append(segments, GenePanelSegment{Text: name})
			continue
		}
		id, _, _ := strings.Cut(name, " ")
		segments = append(segments, GenePanelSegment{Text: name, PanelID: id, Link: true})
	}
	return segments
}

// RenderGenePanelLinks renders GenePanelLinks as markup joined by ", ".
func RenderGenePanelLinks(genePanels string, onSelect GenePanelSelector) template.HTML {
	segments := GenePanelLinks(genePanels)
	var b strings.Builder
	b.WriteString("<span>")
	for i, s := range segments {
		if i > 0 {
			b.WriteString(", ")
		}
		if !s.Link {
			b.WriteString(template.HTMLEscapeString(s.Text))
			continue
		}
		b.WriteString(`<a class="gene-panel-link" data-gene-panel="`)
		b.WriteString(template.HTMLEscapeString(s.PanelID))
		b.WriteString(`"`)
		if onSelect != nil {
			b.WriteString(` href="`)
			b.WriteString(template.HTMLEscapeString(onSelect(s.PanelID)))
			b.WriteString(`"`)
		}
		b.WriteString(">")
		b.WriteString(template.HTMLEscapeString(s.Text))
		b.WriteString("</a>")
	}
	b.WriteString("</span>")
	return template.HTML(b.String())
}
