package timeline

import (
	"fmt"
	"sort"
	"strings"
)

// Item is one event placed on a track.
type Item struct {
	Start int           `json:"start"`
	End   int           `json:"end"`
	Event ClinicalEvent `json:"event"`
	Color string        `json:"color,omitempty"`
	// Label is short text drawn on the event marker, e.g. a sample number.
	Label string `json:"label,omitempty"`
	// Link is an external deep link opened from the event.
	Link string `json:"link,omitempty"`
}

// TrackSpecification is one timeline lane, possibly with nested lanes.
type TrackSpecification struct {
	UID       string    `json:"uid"`
	Type      string    `json:"type"`
	Label     string    `json:"label"`
	TrackType TrackType `json:"track_type"`
	Color     string    `json:"color,omitempty"`
	// ValueKey names the attribute plotted by line chart tracks.
	ValueKey string                `json:"value_key,omitempty"`
	Items    []*Item               `json:"items"`
	Tracks   []*TrackSpecification `json:"tracks,omitempty"`
}

// Walk visits t and its descendants depth-first.
func (t *TrackSpecification) Walk(fn func(t *TrackSpecification, depth int)) {
	t.walk(fn, 0)
}

func (t *TrackSpecification) walk(fn func(*TrackSpecification, int), depth int) {
	fn(t, depth)
	for _, child := range t.Tracks {
		child.walk(fn, depth+1)
	}
}

// FindTrack returns the direct child whose type matches typ case-insensitively.
func (t *TrackSpecification) FindTrack(typ string) *TrackSpecification {
	for _, child := range t.Tracks {
		if strings.EqualFold(child.Type, typ) {
			return child
		}
	}
	return nil
}

// SortTracks groups events into tracks by event type, nests them according
// to cfg.TrackStructures and orders them by cfg.SortOrder.
func SortTracks(cfg *Config, events []ClinicalEvent) []*TrackSpecification {
	var (
		order  []string
		groups = map[string][]ClinicalEvent{}
		labels = map[string]string{}
	)
	for _, e := range events {
		key := strings.ToUpper(e.EventType)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
			labels[key] = e.EventType
		}
		groups[key] = append(groups[key], e)
	}

	tracks := make([]*TrackSpecification, 0, len(order))
	for _, key := range order {
		label := labels[key]
		track := newTrack(label, label)
		items := toItems(groups[key])
		if structure := findStructure(cfg.TrackStructures, key); structure != nil {
			track.Items, track.Tracks = split(track.UID, items, structure[1:])
		} else {
			track.Items = items
		}
		tracks = append(tracks, track)
	}

	rank := func(t *TrackSpecification) int {
		for i, typ := range cfg.SortOrder {
			if strings.EqualFold(typ, t.Type) {
				return i
			}
		}
		return len(cfg.SortOrder)
	}
	sort.SliceStable(tracks, func(i, j int) bool { return rank(tracks[i]) < rank(tracks[j]) })
	return tracks
}

// ConfigureTracks applies the configured renderers and color getter to the
// tracks and checks that every track is well formed.
func ConfigureTracks(tracks []*TrackSpecification, cfg *Config) error {
	for _, root := range tracks {
		if err := configure(root, nil, cfg); err != nil {
			return err
		}
	}
	if cfg.EventColorGetter == nil {
		return nil
	}
	for _, root := range tracks {
		root.Walk(func(t *TrackSpecification, _ int) {
			for _, it := range t.Items {
				if c := cfg.EventColorGetter(it); c != "" {
					it.Color = c
				}
			}
		})
	}
	return nil
}

func configure(t *TrackSpecification, ancestors []string, cfg *Config) error {
	if strings.TrimSpace(t.Type) == "" {
		return fmt.Errorf("track %q has no type", t.UID)
	}
	for _, it := range t.Items {
		if it.End < it.Start {
			return fmt.Errorf("track %q: event %q ends on day %d before it starts on day %d",
				t.UID, it.Event.EventType, it.End, it.Start)
		}
	}
	lineage := append(ancestors, t.Type)
	for _, r := range cfg.TrackEventRenderers {
		if r.TrackTypeMatch == nil || r.ConfigureTrack == nil {
			continue
		}
		for _, typ := range lineage {
			if r.TrackTypeMatch.MatchString(typ) {
				r.ConfigureTrack(t)
				break
			}
		}
	}
	for _, child := range t.Tracks {
		if err := configure(child, lineage[:len(lineage):len(lineage)], cfg); err != nil {
			return err
		}
	}
	return nil
}

func newTrack(uid, typ string) *TrackSpecification {
	return &TrackSpecification{UID: uid, Type: typ, Label: typ, TrackType: TrackTypeDefault}
}

func toItems(events []ClinicalEvent) []*Item {
	items := make([]*Item, 0, len(events))
	for _, e := range events {
		end := e.StartDay
		if e.EndDay != nil {
			end = *e.EndDay
		}
		items = append(items, &Item{Start: e.StartDay, End: end, Event: e})
	}
	sortItems(items)
	return items
}

func sortItems(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Start != items[j].Start {
			return items[i].Start < items[j].Start
		}
		return items[i].End < items[j].End
	})
}

func findStructure(structures [][]string, eventType string) []string {
	for _, s := range structures {
		if len(s) > 0 && strings.EqualFold(s[0], eventType) {
			return s
		}
	}
	return nil
}

// split partitions items into sub-tracks by the value of keys[0], recursing
// on the remaining keys. Items without the attribute stay with the parent.
func split(parentUID string, items []*Item, keys []string) ([]*Item, []*TrackSpecification) {
	if len(keys) == 0 {
		return items, nil
	}
	var (
		rest   []*Item
		order  []string
		groups = map[string][]*Item{}
	)
	for _, it := range items {
		v, ok := it.Event.Attr(keys[0])
		if !ok || strings.TrimSpace(v) == "" {
			rest = append(rest, it)
			continue
		}
		if _, seen := groups[v]; !seen {
			order = append(order, v)
		}
		groups[v] = append(groups[v], it)
	}

	children := make([]*TrackSpecification, 0, len(order))
	for _, v := range order {
		child := newTrack(parentUID+"."+v, v)
		child.Items, child.Tracks = split(child.UID, groups[v], keys[1:])
		children = append(children, child)
	}
	return rest, children
}
