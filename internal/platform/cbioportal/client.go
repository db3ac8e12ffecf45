// Package cbioportal reads patient page data from a cBioPortal REST API.
package cbioportal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ehr/patientview/internal/domain/patient"
	"github.com/ehr/patientview/pkg/pagination"
)

var (
	ErrNotFound    = errors.New("cbioportal: not found")
	ErrCircuitOpen = errors.New("cbioportal: circuit open")
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	Token     string
	RateLimit float64
	Timeout   time.Duration
}

// Client implements patient.Repository over the cBioPortal web API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

var _ patient.Repository = (*Client)(nil)

// NewClient creates a cBioPortal client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.cbioportal.org"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	logger = logger.With().Str("component", "cbioportal").Logger()

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cbioportal",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return c
}

// do sends one request through the rate limiter and the circuit breaker and
// decodes a JSON response into out. It returns the response headers.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, method, path, query, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	header, _ := res.(http.Header)
	return header, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, out any) (http.Header, error) {
	u := c.baseURL + "/api" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("cbioportal request")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.Header, nil
}

func mapNotFound(err, sentinel error) error {
	if errors.Is(err, ErrNotFound) {
		return sentinel
	}
	return err
}

func (c *Client) GetStudy(ctx context.Context, studyID string) (*patient.Study, error) {
	var s patient.Study
	if _, err := c.do(ctx, http.MethodGet, "/studies/"+url.PathEscape(studyID), nil, nil, &s); err != nil {
		return nil, mapNotFound(err, patient.ErrStudyNotFound)
	}
	return &s, nil
}

func (c *Client) GetPatient(ctx context.Context, studyID, patientID string) (*patient.Patient, error) {
	var p patient.Patient
	path := "/studies/" + url.PathEscape(studyID) + "/patients/" + url.PathEscape(patientID)
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &p); err != nil {
		return nil, mapNotFound(err, patient.ErrPatientNotFound)
	}
	return &p, nil
}

func (c *Client) ListPatients(ctx context.Context, studyID string, limit, offset int) ([]*patient.Patient, int, error) {
	path := "/studies/" + url.PathEscape(studyID) + "/patients"

	header, err := c.do(ctx, http.MethodGet, path, url.Values{"projection": {"META"}}, nil, nil)
	if err != nil {
		return nil, 0, mapNotFound(err, patient.ErrStudyNotFound)
	}
	total, _ := strconv.Atoi(header.Get("total-count"))

	pg := pagination.Params{Limit: limit, Offset: offset}.Normalize()
	q := url.Values{
		"projection": {"SUMMARY"},
		"pageSize":   {strconv.Itoa(pg.Limit)},
		"pageNumber": {strconv.Itoa(pg.PageNumber())},
	}
	var items []*patient.Patient
	if _, err := c.do(ctx, http.MethodGet, path, q, nil, &items); err != nil {
		return nil, 0, mapNotFound(err, patient.ErrStudyNotFound)
	}
	return items, total, nil
}

func (c *Client) ListPatientClinicalData(ctx context.Context, studyID, patientID string) ([]patient.ClinicalData, error) {
	path := "/studies/" + url.PathEscape(studyID) + "/patients/" + url.PathEscape(patientID) + "/clinical-data"
	var out []patient.ClinicalData
	if _, err := c.do(ctx, http.MethodGet, path, url.Values{"projection": {"DETAILED"}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListSamples(ctx context.Context, studyID, patientID string) ([]patient.Sample, error) {
	path := "/studies/" + url.PathEscape(studyID) + "/patients/" + url.PathEscape(patientID) + "/samples"
	var out []patient.Sample
	if _, err := c.do(ctx, http.MethodGet, path, url.Values{"projection": {"DETAILED"}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListSampleClinicalData(ctx context.Context, studyID string, sampleIDs []string) ([]patient.ClinicalData, error) {
	if len(sampleIDs) == 0 {
		return nil, nil
	}
	path := "/studies/" + url.PathEscape(studyID) + "/clinical-data/fetch"
	q := url.Values{"clinicalDataType": {"SAMPLE"}, "projection": {"DETAILED"}}
	body := map[string]any{"ids": sampleIDs}
	var out []patient.ClinicalData
	if _, err := c.do(ctx, http.MethodPost, path, q, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListClinicalEvents(ctx context.Context, studyID, patientID string) ([]patient.ClinicalEvent, error) {
	path := "/studies/" + url.PathEscape(studyID) + "/patients/" + url.PathEscape(patientID) + "/clinical-events"
	var out []patient.ClinicalEvent
	if _, err := c.do(ctx, http.MethodGet, path, url.Values{"projection": {"DETAILED"}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMutationalSignatures reports no signatures; the public web API has no
// per-patient signature endpoint.
func (c *Client) ListMutationalSignatures(_ context.Context, studyID, patientID string) ([]patient.MutationalSignature, error) {
	c.logger.Debug().Str("study_id", studyID).Str("patient_id", patientID).
		Msg("mutational signatures not available from cbioportal; reporting none")
	return nil, nil
}

type genePanelResponse struct {
	GenePanelID string `json:"genePanelId"`
	Description string `json:"description"`
	Genes       []struct {
		HugoGeneSymbol string `json:"hugoGeneSymbol"`
	} `json:"genes"`
}

func (c *Client) GetGenePanel(ctx context.Context, genePanelID string) (*patient.GenePanel, error) {
	var r genePanelResponse
	if _, err := c.do(ctx, http.MethodGet, "/gene-panels/"+url.PathEscape(genePanelID), nil, nil, &r); err != nil {
		return nil, mapNotFound(err, patient.ErrGenePanelNotFound)
	}
	gp := &patient.GenePanel{GenePanelID: r.GenePanelID, Description: r.Description, Genes: make([]string, 0, len(r.Genes))}
	for _, g := range r.Genes {
		gp.Genes = append(gp.Genes, g.HugoGeneSymbol)
	}
	return gp, nil
}
