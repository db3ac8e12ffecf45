package cbioportal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/patientview/internal/domain/patient"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Token: "secret", RateLimit: 1000}, zerolog.Nop())
}

func TestClient_GetPatient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/studies/brca_tcga/patients/TCGA-A1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"uniquePatientKey": "VENHQS1BMQ", "studyId": "brca_tcga", "patientId": "TCGA-A1",
		})
	})
	c := newTestClient(t, mux)

	p, err := c.GetPatient(context.Background(), "brca_tcga", "TCGA-A1")
	require.NoError(t, err)
	assert.Equal(t, "TCGA-A1", p.PatientID)
	assert.Equal(t, "VENHQS1BMQ", p.UniquePatientKey)

	_, err = c.GetPatient(context.Background(), "brca_tcga", "missing")
	assert.ErrorIs(t, err, patient.ErrPatientNotFound)
}

func TestClient_ListClinicalEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/studies/s1/patients/p1/clinical-events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DETAILED", r.URL.Query().Get("projection"))
		_, _ = w.Write([]byte(`[{"eventType":"TREATMENT","patientId":"p1","studyId":"s1",
			"startNumberOfDaysSinceDiagnosis":10,"endNumberOfDaysSinceDiagnosis":40,
			"attributes":[{"key":"AGENT","value":"Cisplatin"}]}]`))
	})
	c := newTestClient(t, mux)

	events, err := c.ListClinicalEvents(context.Background(), "s1", "p1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 10, events[0].StartNumberOfDaysSinceDiagnosis)
	require.NotNil(t, events[0].EndNumberOfDaysSinceDiagnosis)
	assert.Equal(t, 40, *events[0].EndNumberOfDaysSinceDiagnosis)
	assert.Equal(t, "Cisplatin", events[0].Attributes[0].Value)
}

func TestClient_ListSampleClinicalData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/studies/s1/clinical-data/fetch", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "SAMPLE", r.URL.Query().Get("clinicalDataType"))
		var body struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"S1", "S2"}, body.IDs)
		_, _ = w.Write([]byte(`[{"sampleId":"S1","clinicalAttributeId":"SAMPLE_TYPE","value":"Primary",
			"clinicalAttribute":{"displayName":"Sample Type","priority":"1"}}]`))
	})
	c := newTestClient(t, mux)

	data, err := c.ListSampleClinicalData(context.Background(), "s1", []string{"S1", "S2"})
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, "Sample Type", data[0].ClinicalAttribute.DisplayName)

	none, err := c.ListSampleClinicalData(context.Background(), "s1", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClient_ListPatients(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/studies/s1/patients", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("projection") == "META" {
			w.Header().Set("total-count", "42")
			return
		}
		assert.Equal(t, "2", r.URL.Query().Get("pageNumber"))
		_, _ = w.Write([]byte(`[{"patientId":"p21"},{"patientId":"p22"}]`))
	})
	c := newTestClient(t, mux)

	items, total, err := c.ListPatients(context.Background(), "s1", 10, 20)
	require.NoError(t, err)
	assert.Equal(t, 42, total)
	assert.Len(t, items, 2)
}

func TestClient_GetGenePanel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/gene-panels/IMPACT341", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"genePanelId":"IMPACT341","description":"MSK-IMPACT 341",
			"genes":[{"hugoGeneSymbol":"TP53"},{"hugoGeneSymbol":"KRAS"}]}`))
	})
	c := newTestClient(t, mux)

	gp, err := c.GetGenePanel(context.Background(), "IMPACT341")
	require.NoError(t, err)
	assert.Equal(t, []string{"TP53", "KRAS"}, gp.Genes)

	_, err = c.GetGenePanel(context.Background(), "nope")
	assert.ErrorIs(t, err, patient.ErrGenePanelNotFound)
}

func TestClient_CircuitOpensOnServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	for i := 0; i < 3; i++ {
		_, err := c.GetStudy(context.Background(), "s1")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCircuitOpen))
	}

	_, err := c.GetStudy(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	for i := 0; i < 5; i++ {
		_, err := c.GetStudy(context.Background(), "s1")
		assert.ErrorIs(t, err, patient.ErrStudyNotFound)
	}
}

func TestClient_ListMutationalSignatures_LogsUnsupported(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	t.Cleanup(srv.Close)

	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)
	c := NewClient(Config{BaseURL: srv.URL, RateLimit: 1000}, logger)

	sigs, err := c.ListMutationalSignatures(context.Background(), "msk_chord", "P-1")
	require.NoError(t, err)
	assert.Empty(t, sigs)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Contains(t, logs.String(), "mutational signatures not available")
	assert.Contains(t, logs.String(), `"patient_id":"P-1"`)
}
