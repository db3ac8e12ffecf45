package patient

import (
	"context"
	"errors"
)

var (
	ErrStudyNotFound     = errors.New("study not found")
	ErrPatientNotFound   = errors.New("patient not found")
	ErrGenePanelNotFound = errors.New("gene panel not found")
)

// Repository is the data source behind the page store.
type Repository interface {
	GetStudy(ctx context.Context, studyID string) (*Study, error)
	GetPatient(ctx context.Context, studyID, patientID string) (*Patient, error)
	ListPatients(ctx context.Context, studyID string, limit, offset int) ([]*Patient, int, error)
	ListPatientClinicalData(ctx context.Context, studyID, patientID string) ([]ClinicalData, error)
	ListSamples(ctx context.Context, studyID, patientID string) ([]Sample, error)
	ListSampleClinicalData(ctx context.Context, studyID string, sampleIDs []string) ([]ClinicalData, error)
	ListClinicalEvents(ctx context.Context, studyID, patientID string) ([]ClinicalEvent, error)
	ListMutationalSignatures(ctx context.Context, studyID, patientID string) ([]MutationalSignature, error)
	GetGenePanel(ctx context.Context, genePanelID string) (*GenePanel, error)
}
