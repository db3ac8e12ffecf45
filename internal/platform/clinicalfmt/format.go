// Package clinicalfmt turns raw clinical attribute values into display text
// and sanitized HTML for the patient view.
package clinicalfmt

import (
	"html/template"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/encoding/charmap"
)

const (
	// OverallSurvivalMonths is displayed as a whole number of months.
	OverallSurvivalMonths = "Overall Survival (Months)"
	// GenePanelAttribute values are rendered as gene panel links.
	GenePanelAttribute = "Gene Panel"
)

// repairTargets are the German characters whose UTF-8 bytes are commonly
// decoded as Windows-1252 upstream ("ä" arrives as "Ã¤").
var repairTargets = []rune{'ä', 'ü', 'ö', 'Ä', 'Ö', 'Ü', 'ß'}

var (
	mojibakeReplacer = newMojibakeReplacer()
	valuePolicy      = bluemonday.UGCPolicy()
)

func newMojibakeReplacer() *strings.Replacer {
	dec := charmap.Windows1252.NewDecoder()
	pairs := make([]string, 0, 2*len(repairTargets))
	for _, r := range repairTargets {
		garbled, err := dec.String(string(r))
		if err != nil {
			continue
		}
		pairs = append(pairs, garbled, string(r))
	}
	return strings.NewReplacer(pairs...)
}

// Format returns the plain-text display value used for downloads.
//
// Non-numeric and whole-number values are returned unchanged. Any value with
// a fractional part is rounded to one decimal place, whether or not the
// attribute is a percentage.
func Format(attribute, value string) string {
	f, ok := parseNumber(value)
	if !ok || f == math.Trunc(f) {
		return value
	}
	return formatPercentValue(f)
}

// HTMLFormat returns the value as sanitized markup for the table cell.
func HTMLFormat(attribute, value string) template.HTML {
	switch attribute {
	case OverallSurvivalMonths:
		f, ok := parseNumber(value)
		if !ok {
			return template.HTML(template.HTMLEscapeString(value))
		}
		return template.HTML(strconv.FormatFloat(math.Round(f), 'f', 0, 64))
	default:
		return template.HTML(valuePolicy.Sanitize(RepairMojibake(value)))
	}
}

// RepairMojibake replaces Windows-1252 mis-decodings of German umlauts and
// sharp s with the intended characters.
func RepairMojibake(s string) string {
	return mojibakeReplacer.Replace(s)
}

// IsURL reports whether s is an absolute http or https URL.
func IsURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

func parseNumber(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// formatPercentValue rounds half away from zero to one decimal place.
func formatPercentValue(f float64) string {
	r := math.Round(f*10) / 10
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', 1, 64)
}
