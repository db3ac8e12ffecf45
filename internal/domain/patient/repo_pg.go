package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository backed by PostgreSQL.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) GetStudy(ctx context.Context, studyID string) (*Study, error) {
	var s Study
	err := r.pool.QueryRow(ctx, `
		SELECT study_id, name, COALESCE(description, ''), COALESCE(cancer_type_id, ''), COALESCE(reference_genome, '')
		FROM study WHERE study_id = $1`, studyID).
		Scan(&s.StudyID, &s.Name, &s.Description, &s.CancerTypeID, &s.ReferenceGenome)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStudyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get study %s: %w", studyID, err)
	}
	return &s, nil
}

func (r *repoPG) GetPatient(ctx context.Context, studyID, patientID string) (*Patient, error) {
	var p Patient
	err := r.pool.QueryRow(ctx, `
		SELECT unique_patient_key, study_id, patient_id
		FROM patient WHERE study_id = $1 AND patient_id = $2`, studyID, patientID).
		Scan(&p.UniquePatientKey, &p.StudyID, &p.PatientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s/%s: %w", studyID, patientID, err)
	}
	return &p, nil
}

func (r *repoPG) ListPatients(ctx context.Context, studyID string, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE study_id = $1`, studyID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT unique_patient_key, study_id, patient_id
		FROM patient WHERE study_id = $1
		ORDER BY patient_id LIMIT $2 OFFSET $3`, studyID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.UniquePatientKey, &p.StudyID, &p.PatientID); err != nil {
			return nil, 0, err
		}
		items = append(items, &p)
	}
	return items, total, rows.Err()
}

const clinicalDataCols = `cd.unique_patient_key, COALESCE(cd.unique_sample_key, ''), cd.study_id,
	cd.patient_id, COALESCE(cd.sample_id, ''), cd.attr_id, cd.attr_value,
	ca.display_name, COALESCE(ca.description, ''), ca.datatype, ca.patient_attribute, ca.priority`

func scanClinicalData(rows pgx.Rows) ([]ClinicalData, error) {
	defer rows.Close()
	var out []ClinicalData
	for rows.Next() {
		var d ClinicalData
		a := &d.ClinicalAttribute
		if err := rows.Scan(&d.UniquePatientKey, &d.UniqueSampleKey, &d.StudyID,
			&d.PatientID, &d.SampleID, &d.ClinicalAttributeID, &d.Value,
			&a.DisplayName, &a.Description, &a.Datatype, &a.PatientAttribute, &a.Priority); err != nil {
			return nil, err
		}
		a.ClinicalAttributeID = d.ClinicalAttributeID
		a.StudyID = d.StudyID
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repoPG) ListPatientClinicalData(ctx context.Context, studyID, patientID string) ([]ClinicalData, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+clinicalDataCols+`
		FROM clinical_data cd
		JOIN clinical_attribute ca ON ca.study_id = cd.study_id AND ca.attr_id = cd.attr_id
		WHERE cd.study_id = $1 AND cd.patient_id = $2 AND cd.sample_id IS NULL`, studyID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient clinical data: %w", err)
	}
	return scanClinicalData(rows)
}

func (r *repoPG) ListSampleClinicalData(ctx context.Context, studyID string, sampleIDs []string) ([]ClinicalData, error) {
	if len(sampleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+clinicalDataCols+`
		FROM clinical_data cd
		JOIN clinical_attribute ca ON ca.study_id = cd.study_id AND ca.attr_id = cd.attr_id
		WHERE cd.study_id = $1 AND cd.sample_id = ANY($2)`, studyID, sampleIDs)
	if err != nil {
		return nil, fmt.Errorf("list sample clinical data: %w", err)
	}
	return scanClinicalData(rows)
}

func (r *repoPG) ListSamples(ctx context.Context, studyID, patientID string) ([]Sample, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT unique_sample_key, unique_patient_key, study_id, patient_id, sample_id, COALESCE(sample_type, '')
		FROM sample WHERE study_id = $1 AND patient_id = $2
		ORDER BY internal_id`, studyID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.UniqueSampleKey, &s.UniquePatientKey, &s.StudyID, &s.PatientID, &s.SampleID, &s.SampleType); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repoPG) ListClinicalEvents(ctx context.Context, studyID, patientID string) ([]ClinicalEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.clinical_event_id, e.unique_patient_key, COALESCE(e.unique_sample_key, ''), e.study_id,
			e.patient_id, e.event_type, e.start_date, e.stop_date,
			COALESCE(d.key, ''), COALESCE(d.value, '')
		FROM clinical_event e
		LEFT JOIN clinical_event_data d ON d.clinical_event_id = e.clinical_event_id
		WHERE e.study_id = $1 AND e.patient_id = $2
		ORDER BY e.start_date, e.clinical_event_id, d.key`, studyID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list clinical events: %w", err)
	}
	defer rows.Close()

	var (
		out    []ClinicalEvent
		lastID int64 = -1
	)
	for rows.Next() {
		var (
			id         int64
			e          ClinicalEvent
			key, value string
		)
		if err := rows.Scan(&id, &e.UniquePatientKey, &e.UniqueSampleKey, &e.StudyID,
			&e.PatientID, &e.EventType, &e.StartNumberOfDaysSinceDiagnosis, &e.EndNumberOfDaysSinceDiagnosis,
			&key, &value); err != nil {
			return nil, err
		}
		if id != lastID {
			out = append(out, e)
			lastID = id
		}
		if key != "" {
			cur := &out[len(out)-1]
			cur.Attributes = append(cur.Attributes, ClinicalEventAttribute{Key: key, Value: value})
		}
	}
	return out, rows.Err()
}

func (r *repoPG) ListMutationalSignatures(ctx context.Context, studyID, patientID string) ([]MutationalSignature, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ms.version, ms.sample_id, ms.signature, ms.value, ms.confidence
		FROM mutational_signature ms
		JOIN sample s ON s.study_id = ms.study_id AND s.sample_id = ms.sample_id
		WHERE s.study_id = $1 AND s.patient_id = $2
		ORDER BY ms.version, ms.sample_id, ms.signature`, studyID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list mutational signatures: %w", err)
	}
	defer rows.Close()

	var out []MutationalSignature
	for rows.Next() {
		var m MutationalSignature
		if err := rows.Scan(&m.Version, &m.SampleID, &m.Signature, &m.Value, &m.Confidence); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repoPG) GetGenePanel(ctx context.Context, genePanelID string) (*GenePanel, error) {
	var gp GenePanel
	err := r.pool.QueryRow(ctx, `
		SELECT gene_panel_id, COALESCE(description, ''),
			COALESCE(ARRAY(SELECT hugo_gene_symbol FROM gene_panel_gene g
				WHERE g.gene_panel_id = p.gene_panel_id ORDER BY hugo_gene_symbol), '{}')
		FROM gene_panel p WHERE gene_panel_id = $1`, genePanelID).
		Scan(&gp.GenePanelID, &gp.Description, &gp.Genes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGenePanelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get gene panel %s: %w", genePanelID, err)
	}
	return &gp, nil
}
