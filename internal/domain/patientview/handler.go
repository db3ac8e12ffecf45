package patientview

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patientview/internal/domain/patient"
	"github.com/ehr/patientview/internal/platform/auth"
	"github.com/ehr/patientview/internal/platform/blobstore"
	"github.com/ehr/patientview/internal/platform/cbioportal"
	"github.com/ehr/patientview/internal/platform/datatable"
	"github.com/ehr/patientview/internal/platform/timeline"
	"github.com/ehr/patientview/pkg/pagination"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/patient.html"))

type Handler struct {
	ctrl    *Controller
	exports blobstore.BlobStore
	logger  zerolog.Logger
}

func NewHandler(ctrl *Controller, exports blobstore.BlobStore, logger zerolog.Logger) *Handler {
	return &Handler{ctrl: ctrl, exports: exports, logger: logger}
}

// RegisterPageRoutes mounts the HTML dashboard.
func (h *Handler) RegisterPageRoutes(g *echo.Group) {
	g.GET("/patient", h.Page)
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "curator", "viewer"))
	readGroup.GET("/studies/:studyId/patients", h.ListPatients)
	readGroup.GET("/studies/:studyId/patients/:patientId/view", h.GetView)
	readGroup.GET("/studies/:studyId/patients/:patientId/clinical-data", h.GetClinicalData)
	readGroup.GET("/studies/:studyId/patients/:patientId/timeline", h.GetTimeline)
	readGroup.GET("/studies/:studyId/patients/:patientId/timeline/download", h.DownloadTimeline)
	readGroup.POST("/studies/:studyId/patients/:patientId/timeline/exports", h.CreateTimelineExport)
	readGroup.GET("/studies/:studyId/patients/:patientId/timeline/exports", h.ListTimelineExports)
	readGroup.GET("/exports/:id", h.DownloadExport)
	readGroup.GET("/gene-panels/:id", h.GetGenePanel)

	writeGroup := api.Group("", auth.RequireRole("admin", "curator"))
	writeGroup.POST("/studies/:studyId/patients/:patientId/refresh", h.Refresh)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, patient.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, patient.ErrStudyNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "study not found")
	case errors.Is(err, patient.ErrGenePanelNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "gene panel not found")
	case errors.Is(err, blobstore.ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "export not found")
	case errors.Is(err, cbioportal.ErrCircuitOpen):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "data source unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func tableQuery(c echo.Context) datatable.Query {
	return datatable.Query{
		Filter:    c.QueryParam("filter"),
		SortBy:    c.QueryParam("sort"),
		Ascending: !strings.EqualFold(c.QueryParam("direction"), "desc"),
	}
}

func requestURL(c echo.Context) string {
	r := c.Request()
	return c.Scheme() + "://" + r.Host + r.URL.RequestURI()
}

func (h *Handler) pageRequest(c echo.Context, studyID, patientID string) PageRequest {
	return PageRequest{
		StudyID:     studyID,
		PatientID:   patientID,
		Host:        c.Request().Host,
		URL:         requestURL(c),
		DateType:    timeline.ParseDateType(c.QueryParam("dateType")),
		GenePanelID: c.QueryParam("genePanel"),
		Query:       tableQuery(c),
	}
}

func patientPageURL(studyID, patientID string, extra url.Values) string {
	q := url.Values{"studyId": {studyID}, "caseId": {patientID}}
	for k, v := range extra {
		q[k] = v
	}
	return "/patient?" + q.Encode()
}

func apiPatientPath(studyID, patientID string) string {
	return "/api/v1/studies/" + url.PathEscape(studyID) + "/patients/" + url.PathEscape(patientID)
}

type pageData struct {
	Header              *HeaderView
	ToggleURL           string
	CloseGenePanelURL   string
	ClinicalDownloadURL string
}

// Page renders the patient dashboard.
func (h *Handler) Page(c echo.Context) error {
	studyID := c.QueryParam("studyId")
	patientID := c.QueryParam("caseId")
	if patientID == "" {
		patientID = c.QueryParam("patientId")
	}
	if studyID == "" || patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "studyId and caseId are required")
	}

	req := h.pageRequest(c, studyID, patientID)
	req.DownloadURL = apiPatientPath(studyID, patientID) + "/timeline/download"
	req.Selector = func(panelID string) string {
		return patientPageURL(studyID, patientID, url.Values{"genePanel": {panelID}})
	}

	hv, err := h.ctrl.Header(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}

	data := pageData{
		Header:              hv,
		ToggleURL:           patientPageURL(studyID, patientID, url.Values{"dateType": {string(req.DateType.Toggle())}}),
		CloseGenePanelURL:   patientPageURL(studyID, patientID, nil),
		ClinicalDownloadURL: apiPatientPath(studyID, patientID) + "/clinical-data?format=tsv",
	}
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.ctrl.store.ListPatients(c.Request().Context(), c.Param("studyId"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithNext(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) GetView(c echo.Context) error {
	studyID, patientID := c.Param("studyId"), c.Param("patientId")
	req := h.pageRequest(c, studyID, patientID)
	req.DownloadURL = apiPatientPath(studyID, patientID) + "/timeline/download"
	hv, err := h.ctrl.Header(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hv)
}

func (h *Handler) GetClinicalData(c echo.Context) error {
	studyID, patientID := c.Param("studyId"), c.Param("patientId")
	page, err := h.ctrl.Load(c.Request().Context(), studyID, patientID)
	if err != nil {
		return httpError(err)
	}
	rows, table := h.ctrl.ClinicalRows(page, tableQuery(c))

	if c.QueryParam("format") != "tsv" {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": page.PatientViewData.LoadStatus(),
			"rows":   rows,
		})
	}
	if !h.ctrl.DownloadsAllowed() {
		return echo.NewHTTPError(http.StatusForbidden, "downloads are disabled")
	}
	var buf bytes.Buffer
	if err := table.Download(&buf, rows); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s_clinical_data.tsv"`, patientID))
	return c.Blob(http.StatusOK, "text/tab-separated-values", buf.Bytes())
}

func (h *Handler) loadTimeline(c echo.Context) (*Timeline, error) {
	studyID, patientID := c.Param("studyId"), c.Param("patientId")
	page, err := h.ctrl.Load(c.Request().Context(), studyID, patientID)
	if err != nil {
		return nil, httpError(err)
	}
	tl, err := h.ctrl.Timeline(page, h.ctrl.Site(h.pageRequest(c, studyID, patientID)))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if tl == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "clinical events unavailable")
	}
	return tl, nil
}

func (h *Handler) GetTimeline(c echo.Context) error {
	tl, err := h.loadTimeline(c)
	if err != nil {
		return err
	}
	ref := ReferenceDate(h.ctrl.opts.Now())
	dateType := timeline.ParseDateType(c.QueryParam("dateType"))
	return c.JSON(http.StatusOK, tl.Store.View(dateType, ref, TimelineWidth, 0))
}

func (h *Handler) zipTimeline(c echo.Context) (*bytes.Buffer, error) {
	if !h.ctrl.DownloadsAllowed() {
		return nil, echo.NewHTTPError(http.StatusForbidden, "downloads are disabled")
	}
	tl, err := h.loadTimeline(c)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := timeline.ZipTracks(&buf, tl.Events); err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return &buf, nil
}

func (h *Handler) DownloadTimeline(c echo.Context) error {
	buf, err := h.zipTimeline(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, timeline.ExportFileName))
	return c.Blob(http.StatusOK, "application/zip", buf.Bytes())
}

func (h *Handler) CreateTimelineExport(c echo.Context) error {
	buf, err := h.zipTimeline(c)
	if err != nil {
		return err
	}
	studyID, patientID := c.Param("studyId"), c.Param("patientId")
	meta, err := h.exports.Upload(c.Request().Context(), blobstore.BlobMetadata{
		FileName:    fmt.Sprintf("%s_%s_%s", studyID, patientID, timeline.ExportFileName),
		ContentType: "application/zip",
		StudyID:     studyID,
		PatientID:   patientID,
		Category:    blobstore.CategoryTimelineExport,
		CreatedBy:   auth.UserIDFromContext(c.Request().Context()),
	}, buf)
	if err != nil {
		return httpError(err)
	}
	h.logger.Info().Str("export_id", meta.ID).Str("study_id", studyID).Str("patient_id", patientID).
		Int64("size", meta.Size).Msg("timeline export stored")
	return c.JSON(http.StatusCreated, meta)
}

func (h *Handler) ListTimelineExports(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.exports.ListByPatient(c.Request().Context(), c.Param("studyId"), c.Param("patientId"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*blobstore.BlobMetadata{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithNext(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) DownloadExport(c echo.Context) error {
	rc, meta, err := h.exports.Download(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Blob(http.StatusOK, meta.ContentType, data)
}

func (h *Handler) GetGenePanel(c echo.Context) error {
	gp, err := h.ctrl.store.GetGenePanel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, gp)
}

func (h *Handler) Refresh(c echo.Context) error {
	h.ctrl.store.Invalidate(c.Param("studyId"), c.Param("patientId"))
	return c.NoContent(http.StatusNoContent)
}
