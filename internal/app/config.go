package app

import (
	"github.com/mindgrove/mindgrove-backend/internal/knowledge/similarity"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
	"github.com/mindgrove/mindgrove-backend/internal/platform/envutil"
)

type Config struct {
	Mode        string
	Environment string
	Version     string

	// DatabaseDSN enables persisted mastery state when set. Driver is
	// "postgres" or "sqlite".
	DatabaseDSN    string
	DatabaseDriver string

	// CatalogPath points at the YAML concept catalog used when no graph
	// database is configured.
	CatalogPath string

	KnownThreshold float64
	MaxReviewItems int
	Clustering     similarity.ClusterOptions
}

func LoadConfig(log *logger.Logger) Config {
	defaults := similarity.DefaultClusterOptions()
	cfg := Config{
		Mode:           envutil.String("APP_MODE", "dev"),
		Environment:    envutil.String("APP_ENV", "local"),
		Version:        envutil.String("APP_VERSION", "dev"),
		DatabaseDSN:    envutil.String("DATABASE_DSN", ""),
		DatabaseDriver: envutil.String("DATABASE_DRIVER", "postgres"),
		CatalogPath:    envutil.String("CATALOG_PATH", "catalog.yaml"),
		KnownThreshold: envutil.Float("MASTERY_KNOWN_THRESHOLD", 0.7),
		MaxReviewItems: envutil.Int("REVIEW_MAX_ITEMS", 10),
		Clustering: similarity.ClusterOptions{
			MinSimilarity:  envutil.Float("CLUSTER_MIN_SIMILARITY", defaults.MinSimilarity),
			MinClusterSize: envutil.Int("CLUSTER_MIN_SIZE", defaults.MinClusterSize),
			MaxClusterSize: envutil.Int("CLUSTER_MAX_SIZE", defaults.MaxClusterSize),
		},
	}
	log.Debug("config loaded",
		"mode", cfg.Mode,
		"catalog_path", cfg.CatalogPath,
		"database_configured", cfg.DatabaseDSN != "",
	)
	return cfg
}
