package patientview

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/ehr/patientview/internal/domain/patient"
	"github.com/ehr/patientview/internal/platform/datatable"
	"github.com/ehr/patientview/internal/platform/timeline"
)

// Options configure a Controller.
type Options struct {
	Rules                SiteRules
	HideDownloadControls string
	CacheSize            int
	Order                AttributeOrder
	Now                  func() time.Time
}

// PageRequest identifies one page view.
type PageRequest struct {
	StudyID     string
	PatientID   string
	Host        string
	URL         string
	DateType    timeline.DateType
	GenePanelID string
	Query       datatable.Query
	DownloadURL string
	Selector    func(panelID string) string
}

// Controller owns the derived view state of patient pages. Initialized
// timelines are cached per patient and site context and dropped when the
// page store reports a change for that patient.
type Controller struct {
	store       *patient.PageStore
	opts        Options
	logger      zerolog.Logger
	timelines   *lru.Cache[string, *Timeline]
	unsubscribe func()
}

// NewController creates a Controller subscribed to store.
func NewController(store *patient.PageStore, opts Options, logger zerolog.Logger) (*Controller, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cache, err := lru.New[string, *Timeline](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create timeline cache: %w", err)
	}
	c := &Controller{
		store:     store,
		opts:      opts,
		logger:    logger.With().Str("component", "patient_view").Logger(),
		timelines: cache,
	}
	c.unsubscribe = store.Subscribe(c.evict)
	return c, nil
}

// Close stops listening for page store changes.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

func patientKey(studyID, patientID string) string {
	return studyID + "\x00" + patientID + "\x00"
}

func timelineKey(studyID, patientID string, site SiteContext) string {
	return fmt.Sprintf("%s%t|%t|%t", patientKey(studyID, patientID), site.ConsortiumStudy, site.DemoPatient, site.ToxicityPortal)
}

func (c *Controller) evict(studyID, patientID string) {
	prefix := patientKey(studyID, patientID)
	for _, k := range c.timelines.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.timelines.Remove(k)
		}
	}
}

// Site detects the site context of a request.
func (c *Controller) Site(req PageRequest) SiteContext {
	return DetectSiteContext(c.opts.Rules, req.StudyID, req.PatientID, req.Host, req.URL)
}

// Load fetches the page data of a patient.
func (c *Controller) Load(ctx context.Context, studyID, patientID string) (*patient.PageData, error) {
	return c.store.Load(ctx, studyID, patientID)
}

// Timeline returns the patient's initialized timeline, building it on first
// use. It returns nil when the patient's clinical data has not loaded.
func (c *Controller) Timeline(page *patient.PageData, site SiteContext) (*Timeline, error) {
	if !page.PatientViewData.IsComplete() {
		return nil, nil
	}
	key := timelineKey(page.StudyID, page.PatientID, site)
	if tl, ok := c.timelines.Get(key); ok {
		return tl, nil
	}

	var sm *patient.SampleManager
	if page.SampleManager.IsComplete() {
		sm = page.SampleManager.Value
	}
	tl, err := InitTimeline(TimelineInput{
		Events:        page.PatientViewData.Value.Events,
		SampleManager: sm,
		CaseMetaData:  patient.NewSampleMetaData(),
		Site:          site,
		Demo:          c.opts.Rules.Demo,
	})
	if err != nil {
		return nil, err
	}
	logApplied(c.logger, page.StudyID, page.PatientID, tl)
	c.timelines.Add(key, tl)
	return tl, nil
}

// TableOptions returns the clinical table toggles for a page.
func (c *Controller) TableOptions(selector func(string) string) ClinicalTableOptions {
	return ClinicalTableOptions{
		ShowFilter:           true,
		ShowCopyDownload:     true,
		HideDownloadControls: c.opts.HideDownloadControls,
		OnSelectGenePanel:    selector,
	}
}

// DownloadsAllowed reports whether copy and download controls are enabled.
func (c *Controller) DownloadsAllowed() bool {
	return c.opts.HideDownloadControls == DownloadControlsShowAll
}

// Header loads a patient and builds its header view.
func (c *Controller) Header(ctx context.Context, req PageRequest) (*HeaderView, error) {
	page, err := c.Load(ctx, req.StudyID, req.PatientID)
	if err != nil {
		return nil, err
	}
	site := c.Site(req)
	tl, err := c.Timeline(page, site)
	if err != nil {
		c.logger.Warn().Err(err).Str("study_id", req.StudyID).Str("patient_id", req.PatientID).
			Msg("timeline unavailable")
	}

	downloadURL := ""
	if c.DownloadsAllowed() {
		downloadURL = req.DownloadURL
	}
	hv := BuildHeader(HeaderInput{
		Page:        page,
		Timeline:    tl,
		Site:        site,
		DateType:    req.DateType,
		Now:         c.opts.Now(),
		Table:       c.TableOptions(req.Selector),
		Query:       req.Query,
		Order:       c.opts.Order,
		DownloadURL: downloadURL,
	})

	if req.GenePanelID != "" {
		gp := &GenePanelView{ID: req.GenePanelID}
		panel, err := c.store.GetGenePanel(ctx, req.GenePanelID)
		if err != nil {
			gp.Error = err.Error()
		} else {
			gp.Panel = panel
		}
		hv.GenePanel = gp
	}
	return &hv, nil
}

// ClinicalRows returns the patient's clinical attribute rows after applying
// the filter and sort in q.
func (c *Controller) ClinicalRows(page *patient.PageData, q datatable.Query) ([]ClinicalRow, *datatable.Table[ClinicalRow]) {
	var data []patient.ClinicalData
	if page.PatientViewData.IsComplete() && page.PatientViewData.Value.Patient != nil {
		data = page.PatientViewData.Value.Patient.ClinicalData
	}
	table := NewClinicalAttributeTable(c.TableOptions(nil))
	return table.Apply(ClinicalRows(data, c.opts.Order), q), table
}
