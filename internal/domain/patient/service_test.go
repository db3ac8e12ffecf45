package patient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/patientview/internal/platform/remotedata"
)

// -- Mock Repository --

type mockRepo struct {
	study       *Study
	patients    map[string]*Patient
	patientData []ClinicalData
	samples     []Sample
	sampleData  []ClinicalData
	events      []ClinicalEvent
	signatures  []MutationalSignature
	panels      map[string]*GenePanel

	eventsErr     error
	signaturesErr error
	studyErr      error
	sampleIDsSeen []string
	mu            sync.Mutex
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		study:    &Study{StudyID: "brca_tcga", Name: "Breast Invasive Carcinoma"},
		patients: map[string]*Patient{"TCGA-A1": {StudyID: "brca_tcga", PatientID: "TCGA-A1", UniquePatientKey: "k1"}},
		patientData: []ClinicalData{
			{PatientID: "TCGA-A1", ClinicalAttributeID: "SEX", Value: "Female",
				ClinicalAttribute: ClinicalAttribute{DisplayName: "Sex", Priority: "1"}},
		},
		samples: []Sample{
			{SampleID: "S-01", PatientID: "TCGA-A1"},
			{SampleID: "S-02", PatientID: "TCGA-A1"},
		},
		sampleData: []ClinicalData{
			{SampleID: "S-02", ClinicalAttributeID: "SAMPLE_TYPE", Value: "Metastasis"},
			{SampleID: "S-01", ClinicalAttributeID: "SAMPLE_TYPE", Value: "Primary"},
		},
		events: []ClinicalEvent{
			{EventType: "SPECIMEN", StartNumberOfDaysSinceDiagnosis: 30,
				Attributes: []ClinicalEventAttribute{{Key: "SAMPLE_ID", Value: "S-02"}}},
			{EventType: "SPECIMEN", StartNumberOfDaysSinceDiagnosis: 90,
				Attributes: []ClinicalEventAttribute{{Key: "SAMPLE_ID", Value: "S-01"}}},
		},
		panels: map[string]*GenePanel{"IMPACT468": {GenePanelID: "IMPACT468", Genes: []string{"TP53"}}},
	}
}

func (m *mockRepo) GetStudy(_ context.Context, studyID string) (*Study, error) {
	if m.studyErr != nil {
		return nil, m.studyErr
	}
	if studyID != m.study.StudyID {
		return nil, ErrStudyNotFound
	}
	return m.study, nil
}

func (m *mockRepo) GetPatient(_ context.Context, studyID, patientID string) (*Patient, error) {
	p, ok := m.patients[patientID]
	if !ok || p.StudyID != studyID {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (m *mockRepo) ListPatients(_ context.Context, studyID string, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		if p.StudyID == studyID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListPatientClinicalData(_ context.Context, _, _ string) ([]ClinicalData, error) {
	return m.patientData, nil
}

func (m *mockRepo) ListSamples(_ context.Context, _, _ string) ([]Sample, error) {
	return m.samples, nil
}

func (m *mockRepo) ListSampleClinicalData(_ context.Context, _ string, ids []string) ([]ClinicalData, error) {
	m.mu.Lock()
	m.sampleIDsSeen = append(m.sampleIDsSeen, ids...)
	m.mu.Unlock()
	return m.sampleData, nil
}

func (m *mockRepo) ListClinicalEvents(_ context.Context, _, _ string) ([]ClinicalEvent, error) {
	return m.events, m.eventsErr
}

func (m *mockRepo) ListMutationalSignatures(_ context.Context, _, _ string) ([]MutationalSignature, error) {
	return m.signatures, m.signaturesErr
}

func (m *mockRepo) GetGenePanel(_ context.Context, id string) (*GenePanel, error) {
	gp, ok := m.panels[id]
	if !ok {
		return nil, ErrGenePanelNotFound
	}
	return gp, nil
}

// -- PageStore Tests --

func TestPageStore_Load(t *testing.T) {
	repo := newMockRepo()
	store := NewPageStore(repo, zerolog.Nop(), "https://darwin.example.org/{studyId}/{patientId}")

	page, err := store.Load(context.Background(), "brca_tcga", "TCGA-A1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !page.PatientViewData.IsComplete() {
		t.Fatalf("expected patient view data complete, got %s", page.PatientViewData.Status)
	}
	info := page.PatientViewData.Value
	if info.Patient.ID != "TCGA-A1" || len(info.Patient.ClinicalData) != 1 {
		t.Errorf("unexpected patient clinical data: %+v", info.Patient)
	}
	if len(info.Samples) != 2 || info.Samples[0].ID != "S-01" {
		t.Errorf("expected samples in sample order, got %+v", info.Samples)
	}
	if len(info.Events) != 2 {
		t.Errorf("expected 2 events, got %d", len(info.Events))
	}
	if len(repo.sampleIDsSeen) != 2 {
		t.Errorf("expected sample data requested for 2 samples, got %v", repo.sampleIDsSeen)
	}
	if page.DarwinURL.Value != "https://darwin.example.org/brca_tcga/TCGA-A1" {
		t.Errorf("unexpected darwin url: %s", page.DarwinURL.Value)
	}
	if page.SamplesReady() != remotedata.StatusComplete {
		t.Errorf("expected samples ready, got %s", page.SamplesReady())
	}
	if page.HasMutationalSignatureData.Value {
		t.Error("expected no mutational signature data")
	}

	sm := page.SampleManager.Value
	if sm == nil {
		t.Fatal("expected sample manager")
	}
	if sm.Label("S-02") != "1" || sm.Label("S-01") != "2" {
		t.Errorf("expected S-02 first by specimen date, got S-02=%s S-01=%s", sm.Label("S-02"), sm.Label("S-01"))
	}
}

func TestPageStore_Load_PatientNotFound(t *testing.T) {
	store := NewPageStore(newMockRepo(), zerolog.Nop(), "")
	_, err := store.Load(context.Background(), "brca_tcga", "missing")
	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestPageStore_Load_MissingIDs(t *testing.T) {
	store := NewPageStore(newMockRepo(), zerolog.Nop(), "")
	if _, err := store.Load(context.Background(), "", "TCGA-A1"); err == nil {
		t.Error("expected error for missing study id")
	}
}

func TestPageStore_Load_PartialFailure(t *testing.T) {
	repo := newMockRepo()
	repo.eventsErr = fmt.Errorf("timeout")
	repo.signaturesErr = fmt.Errorf("unavailable")
	store := NewPageStore(repo, zerolog.Nop(), "")

	page, err := store.Load(context.Background(), "brca_tcga", "TCGA-A1")
	if err != nil {
		t.Fatalf("partial failures must not fail the load: %v", err)
	}
	if page.PatientViewData.Status != remotedata.StatusError {
		t.Errorf("expected patient view data error, got %s", page.PatientViewData.Status)
	}
	if page.SampleManager.Status != remotedata.StatusError {
		t.Errorf("expected sample manager error, got %s", page.SampleManager.Status)
	}
	if page.SamplesReady() != remotedata.StatusError {
		t.Errorf("expected samples row in error, got %s", page.SamplesReady())
	}
	if !page.StudyMetaData.IsComplete() {
		t.Error("study metadata should still be complete")
	}
	if page.DarwinURL.Value != "" {
		t.Errorf("expected empty darwin url, got %q", page.DarwinURL.Value)
	}
}

func TestPageStore_Load_AbortsOnDeadline(t *testing.T) {
	tests := map[string]error{
		"deadline": fmt.Errorf("list events: %w", context.DeadlineExceeded),
		"canceled": fmt.Errorf("list events: %w", context.Canceled),
	}
	for name, loadErr := range tests {
		t.Run(name, func(t *testing.T) {
			repo := newMockRepo()
			repo.eventsErr = loadErr
			store := NewPageStore(repo, zerolog.Nop(), "")

			page, err := store.Load(context.Background(), "brca_tcga", "TCGA-A1")
			if !errors.Is(err, loadErr) {
				t.Fatalf("expected %v, got %v", loadErr, err)
			}
			if page != nil {
				t.Error("expected no page data after an aborted load")
			}
		})
	}
}

func TestPageStore_Load_Signatures(t *testing.T) {
	repo := newMockRepo()
	repo.signatures = []MutationalSignature{
		{Version: "v2", SampleID: "S-01", Signature: "SBS1", Value: 0.4},
		{Version: "v3", SampleID: "S-01", Signature: "SBS2", Value: 0.1},
		{Version: "v2", SampleID: "S-02", Signature: "SBS1", Value: 0.2},
	}
	store := NewPageStore(repo, zerolog.Nop(), "")

	page, err := store.Load(context.Background(), "brca_tcga", "TCGA-A1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !page.HasMutationalSignatureData.Value {
		t.Error("expected mutational signature data")
	}
	byVersion := page.MutationalSignatureDataByVersion.Value
	if len(byVersion["v2"]) != 2 || len(byVersion["v3"]) != 1 {
		t.Errorf("unexpected grouping: %v", byVersion)
	}
}

func TestPageStore_GetGenePanel(t *testing.T) {
	store := NewPageStore(newMockRepo(), zerolog.Nop(), "")
	gp, err := store.GetGenePanel(context.Background(), "IMPACT468")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gp.Genes) != 1 {
		t.Errorf("expected 1 gene, got %d", len(gp.Genes))
	}
	if _, err := store.GetGenePanel(context.Background(), "nope"); !errors.Is(err, ErrGenePanelNotFound) {
		t.Errorf("expected ErrGenePanelNotFound, got %v", err)
	}
	if _, err := store.GetGenePanel(context.Background(), ""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestPageStore_ListPatients_UnknownStudy(t *testing.T) {
	store := NewPageStore(newMockRepo(), zerolog.Nop(), "")
	if _, _, err := store.ListPatients(context.Background(), "nope", 10, 0); !errors.Is(err, ErrStudyNotFound) {
		t.Errorf("expected ErrStudyNotFound, got %v", err)
	}
	items, total, err := store.ListPatients(context.Background(), "brca_tcga", 10, 0)
	if err != nil || total != 1 || len(items) != 1 {
		t.Errorf("unexpected result: %v %d %v", items, total, err)
	}
}

func TestPageStore_SubscribeInvalidate(t *testing.T) {
	store := NewPageStore(newMockRepo(), zerolog.Nop(), "")
	var got []string
	unsubscribe := store.Subscribe(func(studyID, patientID string) {
		got = append(got, studyID+"/"+patientID)
	})

	store.Invalidate("brca_tcga", "TCGA-A1")
	if len(got) != 1 || got[0] != "brca_tcga/TCGA-A1" {
		t.Fatalf("unexpected notifications: %v", got)
	}

	unsubscribe()
	store.Invalidate("brca_tcga", "TCGA-A1")
	if len(got) != 1 {
		t.Errorf("expected no notification after unsubscribe, got %v", got)
	}
}

func TestBuildClinicalInformation_EmptyInputs(t *testing.T) {
	info := BuildClinicalInformation("P1", nil, nil, nil, nil)
	if info.Events == nil {
		t.Error("events must never be nil")
	}
	if info.Patient.ClinicalData == nil {
		t.Error("patient clinical data must never be nil")
	}
	if len(info.Samples) != 0 {
		t.Errorf("expected no samples, got %d", len(info.Samples))
	}
}
