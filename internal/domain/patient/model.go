package patient

import (
	"strconv"

	"github.com/ehr/patientview/internal/platform/remotedata"
	"github.com/ehr/patientview/internal/platform/timeline"
)

// Study maps to the study table.
type Study struct {
	StudyID         string `db:"study_id" json:"studyId"`
	Name            string `db:"name" json:"name"`
	Description     string `db:"description" json:"description,omitempty"`
	CancerTypeID    string `db:"cancer_type_id" json:"cancerTypeId,omitempty"`
	ReferenceGenome string `db:"reference_genome" json:"referenceGenome,omitempty"`
}

// Patient maps to the patient table.
type Patient struct {
	UniquePatientKey string `db:"unique_patient_key" json:"uniquePatientKey"`
	StudyID          string `db:"study_id" json:"studyId"`
	PatientID        string `db:"patient_id" json:"patientId"`
}

// ClinicalAttribute describes one clinical field. Priority is kept as the
// string the data source delivers; see PriorityValue.
type ClinicalAttribute struct {
	ClinicalAttributeID string `db:"attr_id" json:"clinicalAttributeId"`
	StudyID             string `db:"study_id" json:"studyId"`
	DisplayName         string `db:"display_name" json:"displayName"`
	Description         string `db:"description" json:"description,omitempty"`
	Datatype            string `db:"datatype" json:"datatype"`
	PatientAttribute    bool   `db:"patient_attribute" json:"patientAttribute"`
	Priority            string `db:"priority" json:"priority"`
}

// PriorityValue parses Priority, treating anything non-numeric as 0.
func (a ClinicalAttribute) PriorityValue() float64 {
	p, err := strconv.ParseFloat(a.Priority, 64)
	if err != nil {
		return 0
	}
	return p
}

// ClinicalData is one attribute value for a patient or a sample.
type ClinicalData struct {
	UniquePatientKey    string            `db:"unique_patient_key" json:"uniquePatientKey"`
	UniqueSampleKey     string            `db:"unique_sample_key" json:"uniqueSampleKey,omitempty"`
	StudyID             string            `db:"study_id" json:"studyId"`
	PatientID           string            `db:"patient_id" json:"patientId"`
	SampleID            string            `db:"sample_id" json:"sampleId,omitempty"`
	ClinicalAttributeID string            `db:"attr_id" json:"clinicalAttributeId"`
	ClinicalAttribute   ClinicalAttribute `json:"clinicalAttribute"`
	Value               string            `db:"attr_value" json:"value"`
}

// Sample maps to the sample table.
type Sample struct {
	UniqueSampleKey  string `db:"unique_sample_key" json:"uniqueSampleKey"`
	UniquePatientKey string `db:"unique_patient_key" json:"uniquePatientKey"`
	StudyID          string `db:"study_id" json:"studyId"`
	PatientID        string `db:"patient_id" json:"patientId"`
	SampleID         string `db:"sample_id" json:"sampleId"`
	SampleType       string `db:"sample_type" json:"sampleType,omitempty"`
}

// ClinicalDataBySampleID groups the clinical data of one sample.
type ClinicalDataBySampleID struct {
	ID           string         `json:"id"`
	ClinicalData []ClinicalData `json:"clinicalData"`
}

// ClinicalEventAttribute is a key/value pair on a clinical event.
type ClinicalEventAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ClinicalEvent maps to the clinical_event table. Offsets are days since
// diagnosis.
type ClinicalEvent struct {
	UniquePatientKey                string                   `db:"unique_patient_key" json:"uniquePatientKey"`
	UniqueSampleKey                 string                   `db:"unique_sample_key" json:"uniqueSampleKey,omitempty"`
	StudyID                         string                   `db:"study_id" json:"studyId"`
	PatientID                       string                   `db:"patient_id" json:"patientId"`
	EventType                       string                   `db:"event_type" json:"eventType"`
	StartNumberOfDaysSinceDiagnosis int                      `db:"start_date" json:"startNumberOfDaysSinceDiagnosis"`
	EndNumberOfDaysSinceDiagnosis   *int                     `db:"stop_date" json:"endNumberOfDaysSinceDiagnosis,omitempty"`
	Attributes                      []ClinicalEventAttribute `json:"attributes"`
}

// ToTimeline converts the event into the timeline's input record.
func (e ClinicalEvent) ToTimeline() timeline.ClinicalEvent {
	out := timeline.ClinicalEvent{
		PatientID:       e.PatientID,
		UniqueSampleKey: e.UniqueSampleKey,
		EventType:       e.EventType,
		StartDay:        e.StartNumberOfDaysSinceDiagnosis,
		EndDay:          e.EndNumberOfDaysSinceDiagnosis,
	}
	for _, a := range e.Attributes {
		out.Attributes = append(out.Attributes, timeline.Attribute{Key: a.Key, Value: a.Value})
	}
	return out
}

// TimelineEvents converts a list of events.
func TimelineEvents(events []ClinicalEvent) []timeline.ClinicalEvent {
	out := make([]timeline.ClinicalEvent, len(events))
	for i, e := range events {
		out[i] = e.ToTimeline()
	}
	return out
}

// PatientClinical is the patient part of ClinicalInformationData.
type PatientClinical struct {
	ID           string         `json:"id"`
	ClinicalData []ClinicalData `json:"clinicalData"`
}

// ClinicalInformationData aggregates everything known clinically about one
// patient. Events is never nil once loaded.
type ClinicalInformationData struct {
	ClinicalData any                      `json:"clinicalData,omitempty"`
	Events       []ClinicalEvent          `json:"events"`
	Patient      *PatientClinical         `json:"patient,omitempty"`
	Samples      []ClinicalDataBySampleID `json:"samples,omitempty"`
	Nodes        []any                    `json:"nodes,omitempty"`
}

// MutationalSignature is one signature contribution for a sample.
type MutationalSignature struct {
	Version    string  `db:"version" json:"version"`
	SampleID   string  `db:"sample_id" json:"sampleId"`
	Signature  string  `db:"signature" json:"signature"`
	Value      float64 `db:"value" json:"value"`
	Confidence float64 `db:"confidence" json:"confidence"`
}

// GroupSignaturesByVersion groups signatures by their version.
func GroupSignaturesByVersion(sigs []MutationalSignature) map[string][]MutationalSignature {
	out := make(map[string][]MutationalSignature)
	for _, s := range sigs {
		out[s.Version] = append(out[s.Version], s)
	}
	return out
}

// GenePanel maps to the gene_panel table.
type GenePanel struct {
	GenePanelID string   `db:"gene_panel_id" json:"genePanelId"`
	Description string   `db:"description" json:"description,omitempty"`
	Genes       []string `json:"genes"`
}

// PageData is the page store's snapshot for one patient. Each field carries
// its own load status; only a missing patient fails the whole load.
type PageData struct {
	StudyID                          string                                              `json:"studyId"`
	PatientID                        string                                              `json:"patientId"`
	PatientViewData                  remotedata.Result[*ClinicalInformationData]         `json:"patientViewData"`
	StudyMetaData                    remotedata.Result[*Study]                           `json:"studyMetaData"`
	AllSamplesForPatient             remotedata.Result[[]Sample]                         `json:"allSamplesForPatient"`
	SampleManager                    remotedata.Result[*SampleManager]                   `json:"-"`
	HasMutationalSignatureData       remotedata.Result[bool]                             `json:"hasMutationalSignatureData"`
	MutationalSignatureDataByVersion remotedata.Result[map[string][]MutationalSignature] `json:"mutationalSignatureDataGroupByVersion"`
	DarwinURL                        remotedata.Result[string]                           `json:"darwinUrl"`
}

// SamplesReady reports the combined status the sample summary row waits on.
func (p *PageData) SamplesReady() remotedata.Status {
	return remotedata.GroupStatus(
		p.StudyMetaData,
		p.HasMutationalSignatureData,
		p.MutationalSignatureDataByVersion,
		p.AllSamplesForPatient,
	)
}
