package patientview

import (
	"time"

	"github.com/ehr/patientview/internal/domain/patient"
	"github.com/ehr/patientview/internal/platform/clinicalfmt"
	"github.com/ehr/patientview/internal/platform/datatable"
	"github.com/ehr/patientview/internal/platform/remotedata"
	"github.com/ehr/patientview/internal/platform/timeline"
)

// TimelineWidth is the rendered timeline width in pixels.
const TimelineWidth = 800

// ReferenceDate formats now as M/D/YYYY.
func ReferenceDate(now time.Time) string {
	return now.Format(timeline.ReferenceDateLayout)
}

// HeaderView is the three-row page header: patient, samples, timeline.
type HeaderView struct {
	StudyID   string         `json:"study_id"`
	PatientID string         `json:"patient_id"`
	Patient   PatientRow     `json:"patient"`
	Samples   SamplesRow     `json:"samples"`
	Timeline  *TimelineRow   `json:"timeline,omitempty"`
	Clinical  datatable.View `json:"clinical"`
	GenePanel *GenePanelView `json:"gene_panel,omitempty"`
}

// PatientRow identifies the patient.
type PatientRow struct {
	ID        string `json:"id"`
	DarwinURL string `json:"darwin_url,omitempty"`
}

// SamplesRow lists the patient's samples once every input it depends on has
// loaded; until then Ready is false and Samples is empty.
type SamplesRow struct {
	Ready   bool              `json:"ready"`
	Status  remotedata.Status `json:"status"`
	Samples []SampleSummary   `json:"samples,omitempty"`
}

// SampleSummary is one numbered, colored sample with its clinical values.
type SampleSummary struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Color    string        `json:"color"`
	Clinical []ClinicalRow `json:"clinical"`
}

// TimelineRow carries the rendered timeline and its controls.
type TimelineRow struct {
	ReferenceDate string        `json:"reference_date"`
	View          timeline.View `json:"view"`
	Site          SiteContext   `json:"site"`
	DownloadURL   string        `json:"download_url,omitempty"`
}

// GenePanelView is the gene panel modal.
type GenePanelView struct {
	ID    string             `json:"id"`
	Panel *patient.GenePanel `json:"panel,omitempty"`
	Error string             `json:"error,omitempty"`
}

// HeaderInput gathers what BuildHeader lays out.
type HeaderInput struct {
	Page        *patient.PageData
	Timeline    *Timeline
	Site        SiteContext
	DateType    timeline.DateType
	Now         time.Time
	Table       ClinicalTableOptions
	Query       datatable.Query
	Order       AttributeOrder
	DownloadURL string
}

// BuildHeader composes the header view model. It never dereferences a
// sample manager or patient record that has not loaded.
func BuildHeader(in HeaderInput) HeaderView {
	page := in.Page
	hv := HeaderView{
		StudyID:   page.StudyID,
		PatientID: page.PatientID,
		Patient:   PatientRow{ID: page.PatientID, DarwinURL: page.DarwinURL.Value},
	}

	status := page.SamplesReady()
	hv.Samples.Status = status
	if status == remotedata.StatusComplete && page.SampleManager.IsComplete() && page.SampleManager.Value != nil {
		hv.Samples.Ready = true
		hv.Samples.Samples = sampleSummaries(page.SampleManager.Value, in.Order)
	}

	var clinical []patient.ClinicalData
	if page.PatientViewData.IsComplete() && page.PatientViewData.Value.Patient != nil {
		clinical = page.PatientViewData.Value.Patient.ClinicalData
	}
	table := NewClinicalAttributeTable(in.Table)
	hv.Clinical = table.View(table.Apply(ClinicalRows(clinical, in.Order), in.Query), in.Query)

	if in.Timeline != nil {
		ref := ReferenceDate(in.Now)
		hv.Timeline = &TimelineRow{
			ReferenceDate: ref,
			View:          in.Timeline.Store.View(in.DateType, ref, TimelineWidth, 0),
			Site:          in.Site,
			DownloadURL:   in.DownloadURL,
		}
	}
	return hv
}

func sampleSummaries(sm *patient.SampleManager, order AttributeOrder) []SampleSummary {
	out := make([]SampleSummary, 0, len(sm.Samples()))
	for _, s := range sm.Samples() {
		rows := ClinicalRows(s.ClinicalData, order)
		for i := range rows {
			rows[i].Value = clinicalfmt.Format(rows[i].Attribute, rows[i].Value)
		}
		out = append(out, SampleSummary{
			ID:       s.ID,
			Label:    sm.Label(s.ID),
			Color:    sm.Color(s.ID),
			Clinical: rows,
		})
	}
	return out
}
