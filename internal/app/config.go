package app

import (
	"time"

	"github.com/verdantis/esgdata-backend/internal/platform/envutil"
)

type Config struct {
	Mode     string
	HTTPAddr string

	JWTSecretKey string

	// SchemaCatalogURL points at the specification service; when empty,
	// SchemaFixturesDir serves schemas from disk instead.
	SchemaCatalogURL  string
	SchemaFixturesDir string
	CatalogWaitReady  time.Duration

	// BusMode selects redis streams or the in-process bus.
	BusMode string

	Environment string
	Version     string
}

func LoadConfig() Config {
	return Config{
		Mode:              envutil.Str("LOG_MODE", "development"),
		HTTPAddr:          envutil.Str("HTTP_ADDR", ":8080"),
		JWTSecretKey:      envutil.Str("JWT_SECRET_KEY", "defaultsecret"),
		SchemaCatalogURL:  envutil.Str("SCHEMA_CATALOG_URL", ""),
		SchemaFixturesDir: envutil.Str("SCHEMA_FIXTURES_DIR", "./schemas"),
		CatalogWaitReady:  envutil.Dur("SCHEMA_CATALOG_WAIT_READY", 2*time.Minute),
		BusMode:           envutil.Str("EVENTS_BUS_MODE", "redis"),
		Environment:       envutil.Str("ENVIRONMENT", "development"),
		Version:           envutil.Str("SERVICE_VERSION", "dev"),
	}
}
