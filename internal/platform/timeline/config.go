// Package timeline builds clinical event tracks for the patient timeline:
// grouping events into nested tracks, ordering them, applying per-track
// renderers and producing a queryable store.
package timeline

import (
	"regexp"
	"strings"
)

// Attribute is one key/value pair attached to a clinical event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ClinicalEvent is the timeline's input record. Offsets are days since
// diagnosis; a nil EndDay means the event is a point in time.
type ClinicalEvent struct {
	PatientID       string      `json:"patient_id"`
	UniqueSampleKey string      `json:"unique_sample_key,omitempty"`
	EventType       string      `json:"event_type"`
	StartDay        int         `json:"start_day"`
	EndDay          *int        `json:"end_day,omitempty"`
	Attributes      []Attribute `json:"attributes,omitempty"`
}

// Attr returns the value of the first attribute with the given key,
// compared case-insensitively.
func (e ClinicalEvent) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if strings.EqualFold(a.Key, key) {
			return a.Value, true
		}
	}
	return "", false
}

// TrackType selects how a track is drawn.
type TrackType string

const (
	TrackTypeDefault   TrackType = "default"
	TrackTypeLineChart TrackType = "line_chart"
)

// TrackEventRenderer configures every track whose type, or the type of one
// of its ancestors, matches TrackTypeMatch.
type TrackEventRenderer struct {
	Name           string
	TrackTypeMatch *regexp.Regexp
	ConfigureTrack func(t *TrackSpecification)
}

// Config is the mutable track configuration. Site-specific adapters augment
// it in sequence before it is turned into tracks; renderers and color
// getters added later take precedence over earlier ones.
type Config struct {
	// SortOrder lists top-level track types in display order, compared
	// case-insensitively. Unlisted tracks follow in first-seen order.
	SortOrder []string
	// TrackStructures nest a track: the first entry names the event type,
	// the rest are attribute keys to split sub-tracks by, outermost first.
	TrackStructures [][]string
	// TrackEventRenderers are applied in order.
	TrackEventRenderers []TrackEventRenderer
	// EventColorGetter, when set, colors every item last. An empty return
	// leaves the item's color unchanged.
	EventColorGetter func(item *Item) string
}

// AddRenderer appends a renderer.
func (c *Config) AddRenderer(name, pattern string, configure func(t *TrackSpecification)) {
	c.TrackEventRenderers = append(c.TrackEventRenderers, TrackEventRenderer{
		Name:           name,
		TrackTypeMatch: regexp.MustCompile(pattern),
		ConfigureTrack: configure,
	})
}
