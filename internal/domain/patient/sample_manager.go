package patient

import (
	"sort"
	"strconv"
	"strings"
)

// SampleMetaData holds per-sample color, index and label overrides.
type SampleMetaData struct {
	Color map[string]string `json:"color"`
	Index map[string]int    `json:"index"`
	Label map[string]string `json:"label"`
}

// NewSampleMetaData returns empty override maps.
func NewSampleMetaData() SampleMetaData {
	return SampleMetaData{Color: map[string]string{}, Index: map[string]int{}, Label: map[string]string{}}
}

var sampleTypeColors = map[string]string{
	"primary":    "black",
	"progressed": "orange",
	"recurrence": "orange",
	"metastasis": "red",
	"metastatic": "red",
	"cfdna":      "blue",
	"xenograft":  "pink",
}

const defaultSampleColor = "gray"

// specimenEventTypes mark events that record when a sample was taken.
var specimenEventTypes = []string{"SPECIMEN", "SAMPLE ACQUISITION"}

// SampleManager orders a patient's samples and assigns each a 1-based label
// and a color derived from its sample type.
type SampleManager struct {
	samples []ClinicalDataBySampleID
	index   map[string]int
}

// NewSampleManager orders samples by the earliest specimen event that names
// them; samples without such an event follow in their input order.
func NewSampleManager(samples []ClinicalDataBySampleID, events []ClinicalEvent) *SampleManager {
	acquired := map[string]int{}
	for _, e := range events {
		if !isSpecimenEvent(e.EventType) {
			continue
		}
		for _, a := range e.Attributes {
			if !strings.EqualFold(a.Key, "SAMPLE_ID") {
				continue
			}
			if day, ok := acquired[a.Value]; !ok || e.StartNumberOfDaysSinceDiagnosis < day {
				acquired[a.Value] = e.StartNumberOfDaysSinceDiagnosis
			}
		}
	}

	ordered := make([]ClinicalDataBySampleID, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, iok := acquired[ordered[i].ID]
		dj, jok := acquired[ordered[j].ID]
		switch {
		case iok && jok:
			return di < dj
		case iok != jok:
			return iok
		default:
			return false
		}
	})

	m := &SampleManager{samples: ordered, index: make(map[string]int, len(ordered))}
	for i, s := range ordered {
		m.index[s.ID] = i
	}
	return m
}

func isSpecimenEvent(eventType string) bool {
	for _, t := range specimenEventTypes {
		if strings.EqualFold(t, eventType) {
			return true
		}
	}
	return false
}

// Samples returns the samples in display order.
func (m *SampleManager) Samples() []ClinicalDataBySampleID { return m.samples }

// Index returns the 0-based display position of a sample.
func (m *SampleManager) Index(sampleID string) (int, bool) {
	i, ok := m.index[sampleID]
	return i, ok
}

// Label returns the 1-based display number of a sample, or "" if unknown.
func (m *SampleManager) Label(sampleID string) string {
	i, ok := m.index[sampleID]
	if !ok {
		return ""
	}
	return strconv.Itoa(i + 1)
}

// ClinicalValue returns a sample's value for the given attribute id.
func (m *SampleManager) ClinicalValue(sampleID, attrID string) (string, bool) {
	i, ok := m.index[sampleID]
	if !ok {
		return "", false
	}
	for _, d := range m.samples[i].ClinicalData {
		if strings.EqualFold(d.ClinicalAttributeID, attrID) {
			return d.Value, true
		}
	}
	return "", false
}

// Color returns the color for a sample based on its SAMPLE_TYPE.
func (m *SampleManager) Color(sampleID string) string {
	t, ok := m.ClinicalValue(sampleID, "SAMPLE_TYPE")
	if !ok {
		return defaultSampleColor
	}
	if c, ok := sampleTypeColors[strings.ToLower(strings.TrimSpace(t))]; ok {
		return c
	}
	return defaultSampleColor
}

// MetaData returns the manager's colors, indexes and labels with the given
// overrides applied on top.
func (m *SampleManager) MetaData(overrides SampleMetaData) SampleMetaData {
	meta := NewSampleMetaData()
	for _, s := range m.samples {
		meta.Color[s.ID] = m.Color(s.ID)
		meta.Index[s.ID] = m.index[s.ID]
		meta.Label[s.ID] = m.Label(s.ID)
	}
	for id, c := range overrides.Color {
		meta.Color[id] = c
	}
	for id, i := range overrides.Index {
		meta.Index[id] = i
	}
	for id, l := range overrides.Label {
		meta.Label[id] = l
	}
	return meta
}
