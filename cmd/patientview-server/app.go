package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/patientview/internal/config"
	"github.com/ehr/patientview/internal/domain/patient"
	"github.com/ehr/patientview/internal/domain/patientview"
	"github.com/ehr/patientview/internal/platform/blobstore"
	"github.com/ehr/patientview/internal/platform/cbioportal"
	"github.com/ehr/patientview/internal/platform/db"
	"github.com/ehr/patientview/internal/platform/timeline"
)

// app holds the wired services shared by serve and the CLI tools.
type app struct {
	pool    *pgxpool.Pool
	store   *patient.PageStore
	ctrl    *patientview.Controller
	handler *patientview.Handler
}

func (a *app) Close() {
	if a.ctrl != nil {
		a.ctrl.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	repo, pool, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.pool = pool

	rules, err := siteRules(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.store = patient.NewPageStore(repo, logger, cfg.DarwinURLTemplate)
	a.ctrl, err = patientview.NewController(a.store, patientview.Options{
		Rules:                rules,
		HideDownloadControls: cfg.HideDownloadControls,
		CacheSize:            cfg.ViewCacheSize,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	exports, err := buildExportStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.handler = patientview.NewHandler(a.ctrl, exports, logger)
	return a, nil
}

func buildRepository(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (patient.Repository, *pgxpool.Pool, error) {
	switch cfg.DataSource {
	case config.DataSourceCBioPortal:
		logger.Info().Str("url", cfg.CBioPortalURL).Msg("using cBioPortal data source")
		return cbioportal.NewClient(cbioportal.Config{
			BaseURL:   cfg.CBioPortalURL,
			Token:     cfg.CBioPortalToken,
			RateLimit: cfg.CBioPortalRPS,
		}, logger), nil, nil
	case config.DataSourcePostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			DatabaseURL:     cfg.DatabaseURL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			ApplicationName: "patientview",
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("connected to database")
		return patient.NewRepoPG(pool), pool, nil
	default:
		return nil, nil, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}
}

func buildExportStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.ExportStore {
	case config.ExportStoreMinio:
		return blobstore.NewMinioBlobStore(ctx, blobstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case config.ExportStoreMemory, "":
		return blobstore.NewInMemoryBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown export store %q", cfg.ExportStore)
	}
}

// siteRules builds site detection rules. A missing demo fixture file only
// disables the demo patient; a malformed one is an error.
func siteRules(cfg *config.Config, logger zerolog.Logger) (patientview.SiteRules, error) {
	rules := patientview.SiteRules{
		ConsortiumMarker: cfg.ConsortiumMarker,
		ToxicityHosts:    cfg.ToxicityHosts,
	}
	if cfg.DemoFixturesFile == "" {
		return rules, nil
	}
	fixture, err := patientview.LoadDemoFixture(cfg.DemoFixturesFile)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Str("file", cfg.DemoFixturesFile).Msg("demo fixture not found, demo timeline disabled")
		return rules, nil
	}
	if err != nil {
		return rules, err
	}
	rules.Demo = fixture
	return rules, nil
}

// exportTimeline writes the zipped timeline tracks of one patient to w.
func exportTimeline(ctx context.Context, ctrl *patientview.Controller, studyID, patientID string, w io.Writer) error {
	page, err := ctrl.Load(ctx, studyID, patientID)
	if err != nil {
		return fmt.Errorf("load patient %s/%s: %w", studyID, patientID, err)
	}
	tl, err := ctrl.Timeline(page, ctrl.Site(patientview.PageRequest{StudyID: studyID, PatientID: patientID}))
	if err != nil {
		return fmt.Errorf("build timeline: %w", err)
	}
	if tl == nil {
		return fmt.Errorf("clinical events for %s/%s are unavailable: %w", studyID, patientID, page.PatientViewData.Err)
	}
	return timeline.ZipTracks(w, tl.Events)
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
	}
	tw.Flush()
}
