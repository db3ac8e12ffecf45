package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/patientview/internal/platform/remotedata"
)

// ChangeFunc is called when the data of a patient is invalidated.
type ChangeFunc func(studyID, patientID string)

// PageStore loads the data shown on a patient page and notifies
// subscribers when that data goes stale.
type PageStore struct {
	repo      Repository
	logger    zerolog.Logger
	darwinTpl string

	mu          sync.RWMutex
	subscribers map[uuid.UUID]ChangeFunc
}

// NewPageStore creates a PageStore. darwinTpl may contain {studyId} and
// {patientId}; an empty template disables the Darwin link.
func NewPageStore(repo Repository, logger zerolog.Logger, darwinTpl string) *PageStore {
	return &PageStore{
		repo:        repo,
		logger:      logger.With().Str("component", "page_store").Logger(),
		darwinTpl:   darwinTpl,
		subscribers: make(map[uuid.UUID]ChangeFunc),
	}
}

// Load fetches everything a patient page needs. Only a missing patient or a
// failed patient lookup is returned as an error; every other part carries its
// own status in the returned PageData.
func (s *PageStore) Load(ctx context.Context, studyID, patientID string) (*PageData, error) {
	if studyID == "" || patientID == "" {
		return nil, fmt.Errorf("studyId and patientId are required")
	}
	if _, err := s.repo.GetPatient(ctx, studyID, patientID); err != nil {
		return nil, err
	}

	page := &PageData{StudyID: studyID, PatientID: patientID}
	var (
		patientData []ClinicalData
		sampleData  []ClinicalData
		events      []ClinicalEvent
		patientErr  error
		sampleErr   error
		eventsErr   error
	)

	// A failed part only marks its own Result. The group aborts the load
	// when the request is canceled or times out.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		study, err := s.repo.GetStudy(gctx, studyID)
		page.StudyMetaData = remotedata.From(study, err)
		s.logFailure(err, "study", studyID, patientID)
		return abortErr(err)
	})
	g.Go(func() error {
		patientData, patientErr = s.repo.ListPatientClinicalData(gctx, studyID, patientID)
		s.logFailure(patientErr, "patient clinical data", studyID, patientID)
		return abortErr(patientErr)
	})
	g.Go(func() error {
		samples, err := s.repo.ListSamples(gctx, studyID, patientID)
		page.AllSamplesForPatient = remotedata.From(samples, err)
		s.logFailure(err, "samples", studyID, patientID)
		if err != nil {
			sampleErr = err
			return abortErr(err)
		}
		ids := make([]string, len(samples))
		for i, smp := range samples {
			ids[i] = smp.SampleID
		}
		sampleData, sampleErr = s.repo.ListSampleClinicalData(gctx, studyID, ids)
		s.logFailure(sampleErr, "sample clinical data", studyID, patientID)
		return abortErr(sampleErr)
	})
	g.Go(func() error {
		events, eventsErr = s.repo.ListClinicalEvents(gctx, studyID, patientID)
		s.logFailure(eventsErr, "clinical events", studyID, patientID)
		return abortErr(eventsErr)
	})
	g.Go(func() error {
		sigs, err := s.repo.ListMutationalSignatures(gctx, studyID, patientID)
		s.logFailure(err, "mutational signatures", studyID, patientID)
		if err != nil {
			page.HasMutationalSignatureData = remotedata.Failed[bool](err)
			page.MutationalSignatureDataByVersion = remotedata.Failed[map[string][]MutationalSignature](err)
			return abortErr(err)
		}
		page.HasMutationalSignatureData = remotedata.Complete(len(sigs) > 0)
		page.MutationalSignatureDataByVersion = remotedata.Complete(GroupSignaturesByVersion(sigs))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load page data for %s/%s: %w", studyID, patientID, err)
	}

	switch {
	case patientErr != nil:
		page.PatientViewData = remotedata.Failed[*ClinicalInformationData](patientErr)
	case sampleErr != nil:
		page.PatientViewData = remotedata.Failed[*ClinicalInformationData](sampleErr)
	case eventsErr != nil:
		page.PatientViewData = remotedata.Failed[*ClinicalInformationData](eventsErr)
	default:
		page.PatientViewData = remotedata.Complete(BuildClinicalInformation(patientID, patientData, sampleData, page.AllSamplesForPatient.Value, events))
	}

	if page.PatientViewData.IsComplete() {
		info := page.PatientViewData.Value
		page.SampleManager = remotedata.Complete(NewSampleManager(info.Samples, info.Events))
	} else {
		page.SampleManager = remotedata.Failed[*SampleManager](page.PatientViewData.Err)
	}

	page.DarwinURL = remotedata.Complete(s.darwinURL(studyID, patientID))
	return page, nil
}

// abortErr passes on cancellation and deadline errors and swallows the rest.
func abortErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *PageStore) logFailure(err error, part, studyID, patientID string) {
	if err == nil {
		return
	}
	s.logger.Warn().Err(err).
		Str("part", part).
		Str("study_id", studyID).
		Str("patient_id", patientID).
		Msg("page data load failed")
}

func (s *PageStore) darwinURL(studyID, patientID string) string {
	if s.darwinTpl == "" {
		return ""
	}
	return strings.NewReplacer("{studyId}", studyID, "{patientId}", patientID).Replace(s.darwinTpl)
}

// BuildClinicalInformation groups patient and sample clinical data together
// with the patient's events. Samples keep the order given in samples; sample
// data for ids not in that list is appended after them.
func BuildClinicalInformation(patientID string, patientData, sampleData []ClinicalData, samples []Sample, events []ClinicalEvent) *ClinicalInformationData {
	bySample := map[string][]ClinicalData{}
	var order []string
	for _, smp := range samples {
		if _, ok := bySample[smp.SampleID]; !ok {
			bySample[smp.SampleID] = nil
			order = append(order, smp.SampleID)
		}
	}
	for _, d := range sampleData {
		if _, ok := bySample[d.SampleID]; !ok {
			order = append(order, d.SampleID)
		}
		bySample[d.SampleID] = append(bySample[d.SampleID], d)
	}

	info := &ClinicalInformationData{
		Patient: &PatientClinical{ID: patientID, ClinicalData: patientData},
		Events:  events,
	}
	if info.Events == nil {
		info.Events = []ClinicalEvent{}
	}
	if info.Patient.ClinicalData == nil {
		info.Patient.ClinicalData = []ClinicalData{}
	}
	for _, id := range order {
		data := bySample[id]
		if data == nil {
			data = []ClinicalData{}
		}
		info.Samples = append(info.Samples, ClinicalDataBySampleID{ID: id, ClinicalData: data})
	}
	return info
}

// ListPatients returns one page of a study's patients.
func (s *PageStore) ListPatients(ctx context.Context, studyID string, limit, offset int) ([]*Patient, int, error) {
	if _, err := s.repo.GetStudy(ctx, studyID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListPatients(ctx, studyID, limit, offset)
}

// GetGenePanel returns a gene panel by id.
func (s *PageStore) GetGenePanel(ctx context.Context, genePanelID string) (*GenePanel, error) {
	if genePanelID == "" {
		return nil, fmt.Errorf("genePanelId is required")
	}
	return s.repo.GetGenePanel(ctx, genePanelID)
}

// Subscribe registers fn for invalidation events and returns a function that
// removes it.
func (s *PageStore) Subscribe(fn ChangeFunc) (unsubscribe func()) {
	id := uuid.New()
	s.mu.Lock()
	s.subscribers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Invalidate marks the data of one patient as changed.
func (s *PageStore) Invalidate(studyID, patientID string) {
	s.mu.RLock()
	fns := make([]ChangeFunc, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	s.logger.Debug().Str("study_id", studyID).Str("patient_id", patientID).Msg("patient data invalidated")
	for _, fn := range fns {
		fn(studyID, patientID)
	}
}
