package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DataSourcePostgres   = "postgres"
	DataSourceCBioPortal = "cbioportal"

	ExportStoreMemory = "memory"
	ExportStoreMinio  = "minio"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DataSource           string        `mapstructure:"DATA_SOURCE"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	CBioPortalURL        string        `mapstructure:"CBIOPORTAL_URL"`
	CBioPortalToken      string        `mapstructure:"CBIOPORTAL_TOKEN"`
	CBioPortalRPS        float64       `mapstructure:"CBIOPORTAL_RPS"`
	AuthMode             string        `mapstructure:"AUTH_MODE"`
	AuthSigningKey       string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience         string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	HideDownloadControls string        `mapstructure:"SKIN_HIDE_DOWNLOAD_CONTROLS"`
	ConsortiumMarker     string        `mapstructure:"CONSORTIUM_STUDY_MARKER"`
	ToxicityHosts        []string      `mapstructure:"TOXICITY_HOSTNAMES"`
	DemoFixturesFile     string        `mapstructure:"DEMO_FIXTURES_FILE"`
	DarwinURLTemplate    string        `mapstructure:"DARWIN_URL_TEMPLATE"`
	ViewCacheSize        int           `mapstructure:"VIEW_CACHE_SIZE"`
	ExportStore          string        `mapstructure:"EXPORT_STORE"`
	MinioEndpoint        string        `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey       string        `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey       string        `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket          string        `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL          bool          `mapstructure:"MINIO_USE_SSL"`
}

var keys = []string{
	"PORT", "ENV", "DATA_SOURCE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CBIOPORTAL_URL", "CBIOPORTAL_TOKEN", "CBIOPORTAL_RPS",
	"AUTH_MODE", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"SKIN_HIDE_DOWNLOAD_CONTROLS", "CONSORTIUM_STUDY_MARKER", "TOXICITY_HOSTNAMES",
	"DEMO_FIXTURES_FILE", "DARWIN_URL_TEMPLATE", "VIEW_CACHE_SIZE",
	"EXPORT_STORE", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
	"MINIO_BUCKET", "MINIO_USE_SSL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DATA_SOURCE", DataSourcePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CBIOPORTAL_RPS", 10)
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SKIN_HIDE_DOWNLOAD_CONTROLS", "show")
	v.SetDefault("CONSORTIUM_STUDY_MARKER", "genie_bpc")
	v.SetDefault("TOXICITY_HOSTNAMES", "triage.cbioportal.mskcc.org,cbioportal.mskcc.org,private.cbioportal.mskcc.org")
	v.SetDefault("DEMO_FIXTURES_FILE", "configs/demo_fixtures.yaml")
	v.SetDefault("VIEW_CACHE_SIZE", 256)
	v.SetDefault("EXPORT_STORE", ExportStoreMemory)
	v.SetDefault("MINIO_BUCKET", "patientview-exports")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v, "CORS_ORIGINS", cfg.CORSOrigins)
	cfg.ToxicityHosts = splitList(v, "TOXICITY_HOSTNAMES", cfg.ToxicityHosts)

	if cfg.IsDev() && cfg.ResolvedAuthMode() == "development" {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
	}

	return cfg, nil
}

// splitList handles comma separated env values that viper leaves as a single
// element.
func splitList(v *viper.Viper, key string, parsed []string) []string {
	if len(parsed) > 1 {
		return parsed
	}
	raw := v.GetString(key)
	if raw == "" {
		return parsed
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise "development" in
// development and "jwt" everywhere else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Validate checks that the selected data source, auth mode and export store
// have what they need to start.
func (c *Config) Validate() error {
	switch c.DataSource {
	case DataSourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATA_SOURCE is %q", DataSourcePostgres)
		}
	case DataSourceCBioPortal:
		if c.CBioPortalURL == "" {
			return fmt.Errorf("CBIOPORTAL_URL is required when DATA_SOURCE is %q", DataSourceCBioPortal)
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be %q or %q, got %q", DataSourcePostgres, DataSourceCBioPortal, c.DataSource)
	}

	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE \"development\" is not allowed in production")
		}
	case "jwt":
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required when AUTH_MODE is \"jwt\"")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}

	switch c.ExportStore {
	case ExportStoreMemory:
	case ExportStoreMinio:
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required when EXPORT_STORE is %q", ExportStoreMinio)
		}
	default:
		return fmt.Errorf("EXPORT_STORE must be %q or %q, got %q", ExportStoreMemory, ExportStoreMinio, c.ExportStore)
	}

	switch c.HideDownloadControls {
	case "show", "hide", "data":
	default:
		return fmt.Errorf("SKIN_HIDE_DOWNLOAD_CONTROLS must be \"show\", \"hide\" or \"data\", got %q", c.HideDownloadControls)
	}

	if c.RateLimitRPS < 0 || c.CBioPortalRPS < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	return nil
}
