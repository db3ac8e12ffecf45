package patientview

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/patientview/internal/domain/patient"
)

type stubRepo struct {
	study       *patient.Study
	patientID   string
	patientData []patient.ClinicalData
	samples     []patient.Sample
	sampleData  []patient.ClinicalData
	events      []patient.ClinicalEvent
	panels      map[string]*patient.GenePanel
	eventCalls  int
}

func attr(name, priority string) patient.ClinicalAttribute {
	return patient.ClinicalAttribute{DisplayName: name, Priority: priority}
}

func newStubRepo() *stubRepo {
	end := 120
	return &stubRepo{
		study:     &patient.Study{StudyID: "brca_tcga", Name: "Breast"},
		patientID: "TCGA-A1",
		patientData: []patient.ClinicalData{
			{ClinicalAttributeID: "AGE", Value: "61.46", ClinicalAttribute: attr("Age", "2")},
			{ClinicalAttributeID: "SEX", Value: "Female", ClinicalAttribute: attr("Sex", "1")},
			{ClinicalAttributeID: "GENE_PANEL", Value: "IMPACT468 (mut), N/A", ClinicalAttribute: attr("Gene Panel", "3")},
		},
		samples: []patient.Sample{{SampleID: "S-01"}, {SampleID: "S-02"}},
		sampleData: []patient.ClinicalData{
			{SampleID: "S-01", ClinicalAttributeID: "SAMPLE_TYPE", Value: "Primary", ClinicalAttribute: attr("Sample Type", "1")},
			{SampleID: "S-02", ClinicalAttributeID: "SAMPLE_TYPE", Value: "Metastasis", ClinicalAttribute: attr("Sample Type", "1")},
		},
		events: []patient.ClinicalEvent{
			{PatientID: "TCGA-A1", EventType: "SPECIMEN", StartNumberOfDaysSinceDiagnosis: 10,
				Attributes: []patient.ClinicalEventAttribute{{Key: "SAMPLE_ID", Value: "S-01"}}},
			{PatientID: "TCGA-A1", EventType: "TREATMENT", StartNumberOfDaysSinceDiagnosis: 20, EndNumberOfDaysSinceDiagnosis: &end,
				Attributes: []patient.ClinicalEventAttribute{{Key: "AGENT", Value: "Tamoxifen"}}},
			{PatientID: "TCGA-A1", EventType: "STATUS", StartNumberOfDaysSinceDiagnosis: 200},
		},
		panels: map[string]*patient.GenePanel{"IMPACT468": {GenePanelID: "IMPACT468", Genes: []string{"TP53", "KRAS"}}},
	}
}

func (r *stubRepo) GetStudy(_ context.Context, studyID string) (*patient.Study, error) {
	if studyID != r.study.StudyID {
		return nil, patient.ErrStudyNotFound
	}
	return r.study, nil
}

func (r *stubRepo) GetPatient(_ context.Context, studyID, patientID string) (*patient.Patient, error) {
	if studyID != r.study.StudyID || patientID != r.patientID {
		return nil, patient.ErrPatientNotFound
	}
	return &patient.Patient{StudyID: studyID, PatientID: patientID}, nil
}

func (r *stubRepo) ListPatients(_ context.Context, studyID string, _, _ int) ([]*patient.Patient, int, error) {
	return []*patient.Patient{{StudyID: studyID, PatientID: r.patientID}}, 1, nil
}

func (r *stubRepo) ListPatientClinicalData(_ context.Context, _, _ string) ([]patient.ClinicalData, error) {
	return r.patientData, nil
}

func (r *stubRepo) ListSamples(_ context.Context, _, _ string) ([]patient.Sample, error) {
	return r.samples, nil
}

func (r *stubRepo) ListSampleClinicalData(_ context.Context, _ string, _ []string) ([]patient.ClinicalData, error) {
	return r.sampleData, nil
}

func (r *stubRepo) ListClinicalEvents(_ context.Context, _, _ string) ([]patient.ClinicalEvent, error) {
	r.eventCalls++
	return r.events, nil
}

func (r *stubRepo) ListMutationalSignatures(_ context.Context, _, _ string) ([]patient.MutationalSignature, error) {
	return nil, nil
}

func (r *stubRepo) GetGenePanel(_ context.Context, id string) (*patient.GenePanel, error) {
	gp, ok := r.panels[id]
	if !ok {
		return nil, patient.ErrGenePanelNotFound
	}
	return gp, nil
}

func zeroLogger() zerolog.Logger { return zerolog.Nop() }

var fixedNow = time.Date(2026, 3, 7, 15, 4, 5, 0, time.UTC)

func testRules() SiteRules {
	return SiteRules{
		ConsortiumMarker: "genie_bpc",
		ToxicityHosts:    []string{"triage.cbioportal.mskcc.org", "cbioportal.mskcc.org", "private.cbioportal.mskcc.org"},
		Demo:             testFixture(),
	}
}

func testFixture() *DemoFixture {
	f, err := ParseDemoFixture([]byte(demoYAML))
	if err != nil {
		panic(err)
	}
	return f
}

const demoYAML = `
study_id: htan_test_2021
patient_id: HTA9_1
event:
  unique_patient_key: SFRBOV8xOmh0YW5fdGVzdF8yMDIx
  event_type: IMAGING
  start_day: 25726
  end_day: 25726
  attributes:
    - key: linkout
      value: https://minerva.example.org/#s=1
    - key: ASSAY_TYPE
      value: mIHC
track:
  link_attribute: linkout
  label_attribute: ASSAY_TYPE
  color: "#0077b6"
`

func newTestController(t *testing.T, repo patient.Repository, hide string) *Controller {
	t.Helper()
	store := patient.NewPageStore(repo, zerolog.Nop(), "")
	ctrl, err := NewController(store, Options{
		Rules:                testRules(),
		HideDownloadControls: hide,
		Now:                  func() time.Time { return fixedNow },
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(ctrl.Close)
	return ctrl
}
