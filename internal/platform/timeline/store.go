package timeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateType selects how event offsets are labelled.
type DateType string

const (
	DateTypeAbsolute DateType = "absolute"
	DateTypeRelative DateType = "relative"
)

// ReferenceDateLayout is the M/D/YYYY layout used for reference dates.
const ReferenceDateLayout = "1/2/2006"

// ParseDateType returns DateTypeRelative for "relative" and
// DateTypeAbsolute for anything else.
func ParseDateType(s string) DateType {
	if strings.EqualFold(s, string(DateTypeRelative)) {
		return DateTypeRelative
	}
	return DateTypeAbsolute
}

// Toggle returns the other date type.
func (d DateType) Toggle() DateType {
	if d == DateTypeRelative {
		return DateTypeAbsolute
	}
	return DateTypeRelative
}

// ToggleLabel is the caption of the button that switches away from d.
func (d DateType) ToggleLabel() string {
	if d == DateTypeRelative {
		return "Switch to Absolute Dates"
	}
	return "Switch to Relative Dates"
}

// FlatTrack is a track with its nesting depth.
type FlatTrack struct {
	Track *TrackSpecification
	Depth int
}

// Store holds finalized tracks. It is read-only once built.
type Store struct {
	tracks []*TrackSpecification
	flat   []FlatTrack
	count  int
	start  int
	end    int
}

// NewStore builds a store from tracks that have been through ConfigureTracks.
func NewStore(tracks []*TrackSpecification) *Store {
	s := &Store{tracks: tracks}
	first := true
	for _, root := range tracks {
		root.Walk(func(t *TrackSpecification, depth int) {
			s.flat = append(s.flat, FlatTrack{Track: t, Depth: depth})
			for _, it := range t.Items {
				s.count++
				if first || it.Start < s.start {
					s.start = it.Start
				}
				if first || it.End > s.end {
					s.end = it.End
				}
				first = false
			}
		})
	}
	return s
}

func (s *Store) Tracks() []*TrackSpecification { return s.tracks }

func (s *Store) FlattenedTracks() []FlatTrack { return s.flat }

func (s *Store) EventCount() int { return s.count }

// Range returns the first and last day covered by any event.
func (s *Store) Range() (start, end int, ok bool) {
	return s.start, s.end, s.count > 0
}

// Track returns the track with the given uid.
func (s *Store) Track(uid string) (*TrackSpecification, bool) {
	for _, f := range s.flat {
		if f.Track.UID == uid {
			return f.Track, true
		}
	}
	return nil, false
}

// View is a render-ready projection of the store.
type View struct {
	DateType      DateType    `json:"date_type"`
	ReferenceDate string      `json:"reference_date,omitempty"`
	ToggleLabel   string      `json:"toggle_label"`
	Width         int         `json:"width"`
	HeaderWidth   int         `json:"header_width"`
	Ticks         []Tick      `json:"ticks"`
	Tracks        []ViewTrack `json:"tracks"`
}

// Tick is an axis label.
type Tick struct {
	Day     int     `json:"day"`
	Label   string  `json:"label"`
	LeftPct float64 `json:"left_pct"`
}

type ViewTrack struct {
	UID       string     `json:"uid"`
	Label     string     `json:"label"`
	Depth     int        `json:"depth"`
	TrackType TrackType  `json:"track_type"`
	Items     []ViewItem `json:"items"`
}

type ViewItem struct {
	StartLabel string   `json:"start_label"`
	EndLabel   string   `json:"end_label,omitempty"`
	LeftPct    float64  `json:"left_pct"`
	WidthPct   float64  `json:"width_pct"`
	Color      string   `json:"color,omitempty"`
	Label      string   `json:"label,omitempty"`
	Link       string   `json:"link,omitempty"`
	Tooltip    string   `json:"tooltip"`
	Value      *float64 `json:"value,omitempty"`
}

const tickCount = 5

// View lays the store out for rendering. Absolute labels count offsets from
// the reference date (day 0); when the reference date is missing or not in
// M/D/YYYY form, relative labels are used instead.
func (s *Store) View(dateType DateType, referenceDate string, width, headerWidth int) View {
	ref, err := time.Parse(ReferenceDateLayout, referenceDate)
	absolute := dateType == DateTypeAbsolute && err == nil
	label := func(day int) string {
		if absolute {
			return ref.AddDate(0, 0, day).Format(ReferenceDateLayout)
		}
		return "Day " + strconv.Itoa(day)
	}

	v := View{
		DateType:      dateType,
		ReferenceDate: referenceDate,
		ToggleLabel:   dateType.ToggleLabel(),
		Width:         width,
		HeaderWidth:   headerWidth,
	}

	span := float64(s.end - s.start)
	pos := func(day int) float64 {
		if span <= 0 {
			return 0
		}
		return float64(day-s.start) / span * 100
	}

	if s.count > 0 {
		for i := 0; i < tickCount; i++ {
			day := s.start
			if span > 0 {
				day = s.start + int(span*float64(i)/float64(tickCount-1))
			}
			v.Ticks = append(v.Ticks, Tick{Day: day, Label: label(day), LeftPct: pos(day)})
			if span <= 0 {
				break
			}
		}
	}

	for _, f := range s.flat {
		vt := ViewTrack{UID: f.Track.UID, Label: f.Track.Label, Depth: f.Depth, TrackType: f.Track.TrackType}
		for _, it := range f.Track.Items {
			vi := ViewItem{
				StartLabel: label(it.Start),
				LeftPct:    pos(it.Start),
				WidthPct:   pos(it.End) - pos(it.Start),
				Color:      it.Color,
				Label:      it.Label,
				Link:       it.Link,
				Tooltip:    tooltip(it),
			}
			if vi.Color == "" {
				vi.Color = f.Track.Color
			}
			if it.End != it.Start {
				vi.EndLabel = label(it.End)
			}
			if f.Track.TrackType == TrackTypeLineChart && f.Track.ValueKey != "" {
				if raw, ok := it.Event.Attr(f.Track.ValueKey); ok {
					if val, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
						vi.Value = &val
					}
				}
			}
			vt.Items = append(vt.Items, vi)
		}
		v.Tracks = append(v.Tracks, vt)
	}
	return v
}

func tooltip(it *Item) string {
	lines := []string{fmt.Sprintf("%s (day %d)", it.Event.EventType, it.Start)}
	if it.End != it.Start {
		lines[0] = fmt.Sprintf("%s (days %d-%d)", it.Event.EventType, it.Start, it.End)
	}
	attrs := make([]Attribute, len(it.Event.Attributes))
	copy(attrs, it.Event.Attributes)
	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })
	for _, a := range attrs {
		lines = append(lines, a.Key+": "+a.Value)
	}
	return strings.Join(lines, "\n")
}
