package patientview

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ehr/patientview/internal/domain/patient"
)

// DemoFixture describes the synthetic event appended to one demo patient's
// timeline and how its track is drawn.
type DemoFixture struct {
	StudyID   string           `yaml:"study_id"`
	PatientID string           `yaml:"patient_id"`
	Event     DemoEvent        `yaml:"event"`
	Track     DemoTrackOptions `yaml:"track"`
}

// DemoEvent is the fixture's clinical event.
type DemoEvent struct {
	UniquePatientKey string            `yaml:"unique_patient_key"`
	EventType        string            `yaml:"event_type"`
	StartDay         int               `yaml:"start_day"`
	EndDay           *int              `yaml:"end_day"`
	Attributes       []DemoEventAttrib `yaml:"attributes"`
}

type DemoEventAttrib struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// DemoTrackOptions configure the demo track's renderer.
type DemoTrackOptions struct {
	Type           string `yaml:"type"`
	LinkAttribute  string `yaml:"link_attribute"`
	LabelAttribute string `yaml:"label_attribute"`
	Color          string `yaml:"color"`
}

// LoadDemoFixture reads a fixture from a YAML file.
func LoadDemoFixture(path string) (*DemoFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read demo fixture: %w", err)
	}
	return ParseDemoFixture(data)
}

// ParseDemoFixture decodes and validates a YAML fixture.
func ParseDemoFixture(data []byte) (*DemoFixture, error) {
	var f DemoFixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse demo fixture: %w", err)
	}
	if f.StudyID == "" || f.PatientID == "" {
		return nil, fmt.Errorf("demo fixture: study_id and patient_id are required")
	}
	if strings.TrimSpace(f.Event.EventType) == "" {
		return nil, fmt.Errorf("demo fixture: event.event_type is required")
	}
	if f.Event.EndDay != nil && *f.Event.EndDay < f.Event.StartDay {
		return nil, fmt.Errorf("demo fixture: event ends before it starts")
	}
	if f.Track.Type == "" {
		f.Track.Type = f.Event.EventType
	}
	return &f, nil
}

// ClinicalEvent builds the fixture event. Each call gets a fresh sample key.
func (f *DemoFixture) ClinicalEvent() patient.ClinicalEvent {
	e := patient.ClinicalEvent{
		UniquePatientKey:                f.Event.UniquePatientKey,
		UniqueSampleKey:                 uuid.NewString(),
		StudyID:                         f.StudyID,
		PatientID:                       f.PatientID,
		EventType:                       f.Event.EventType,
		StartNumberOfDaysSinceDiagnosis: f.Event.StartDay,
		EndNumberOfDaysSinceDiagnosis:   f.Event.EndDay,
	}
	for _, a := range f.Event.Attributes {
		e.Attributes = append(e.Attributes, patient.ClinicalEventAttribute{Key: a.Key, Value: a.Value})
	}
	return e
}
