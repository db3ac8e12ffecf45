package clinicalfmt

import (
	"strings"
	"testing"
)

func TestGenePanelLinks(t *testing.T) {
	segs := GenePanelLinks("TESTPANEL2 (mut), N/A, WXS")
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}

	if !segs[0].Link || segs[0].Text != "TESTPANEL2 (mut)" || segs[0].PanelID != "TESTPANEL2" {
		t.Errorf("unexpected first segment: %+v", segs[0])
	}
	if segs[1].Link || segs[1].Text != "N/A" {
		t.Errorf("expected plain N/A, got %+v", segs[1])
	}
	if segs[2].Link || segs[2].Text != "WXS" {
		t.Errorf("expected plain WXS, got %+v", segs[2])
	}
}

func TestGenePanelLinks_NAVariants(t *testing.T) {
	segs := GenePanelLinks("IMPACT468, N/A (cna)")
	if !segs[0].Link || segs[0].PanelID != "IMPACT468" {
		t.Errorf("expected IMPACT468 link, got %+v", segs[0])
	}
	if segs[1].Link {
		t.Errorf("expected N/A variant to stay plain, got %+v", segs[1])
	}
}

func TestRenderGenePanelLinks(t *testing.T) {
	var selected []string
	onSelect := func(id string) string {
		selected = append(selected, id)
		return "?genePanel=" + id
	}

	got := string(RenderGenePanelLinks("TESTPANEL2 (mut), N/A, WXS", onSelect))

	want := `<span><a class="gene-panel-link" data-gene-panel="TESTPANEL2" href="?genePanel=TESTPANEL2">TESTPANEL2 (mut)</a>, N/A, WXS</span>`
	if got != want {
		t.Errorf("RenderGenePanelLinks() =\n%s\nwant\n%s", got, want)
	}
	if len(selected) != 1 || selected[0] != "TESTPANEL2" {
		t.Errorf("expected selector to be called with TESTPANEL2, got %v", selected)
	}
}

func TestRenderGenePanelLinks_NoSelector(t *testing.T) {
	got := string(RenderGenePanelLinks("IMPACT341", nil))
	if strings.Contains(got, "href=") {
		t.Errorf("expected no href without selector, got %s", got)
	}
	if !strings.Contains(got, `data-gene-panel="IMPACT341"`) {
		t.Errorf("expected panel id attribute, got %s", got)
	}
}
