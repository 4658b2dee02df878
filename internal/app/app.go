package app

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/inference"
	"github.com/mindgrove/mindgrove-backend/internal/mastery"
	"github.com/mindgrove/mindgrove-backend/internal/observability"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
	"github.com/mindgrove/mindgrove-backend/internal/platform/catalogfile"
	"github.com/mindgrove/mindgrove-backend/internal/platform/envutil"
	"github.com/mindgrove/mindgrove-backend/internal/platform/neo4jdb"
	"github.com/mindgrove/mindgrove-backend/internal/repos"
	"github.com/mindgrove/mindgrove-backend/internal/services"
	"github.com/mindgrove/mindgrove-backend/internal/types"
)

// App owns the wired reasoning stack and its external clients.
type App struct {
	Log *logger.Logger
	Cfg Config
	DB  *gorm.DB

	Knowledge      services.KnowledgeService
	Mastery        services.MasteryService
	Recommendation services.RecommendationService

	neo4j        *neo4jdb.Client
	otelShutdown func(context.Context) error
}

// New builds the full stack from environment configuration. Optional pieces
// (relational store, graph database, tracing) degrade to no-ops when not
// configured.
func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("APP_MODE", "dev"))
	if err != nil {
		return nil, fmt.Errorf("app: logger: %w", err)
	}
	cfg := LoadConfig(log)

	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "mindgrove-backend",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	db, err := openDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	var masteryRepo repos.ConceptMasteryRepo
	if db != nil {
		masteryRepo = repos.NewConceptMasteryRepo(db, log)
	}

	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return nil, fmt.Errorf("app: neo4j: %w", err)
	}
	var source services.CatalogSource
	if neoClient != nil {
		source = neoClient
	} else {
		source = catalogfile.New(cfg.CatalogPath, log)
	}

	registry := inference.NewDefaultRegistry()
	knowledge := services.NewKnowledgeService(source, registry, log)

	tracker := mastery.NewTracker(log)
	scheduler := mastery.NewScheduler(tracker, log)
	masterySvc := services.NewMasteryService(tracker, scheduler, masteryRepo, knowledge, nil, cfg.KnownThreshold, log)
	recommendation := services.NewRecommendationService(masterySvc, knowledge, cfg.Clustering, log)

	return &App{
		Log:            log,
		Cfg:            cfg,
		DB:             db,
		Knowledge:      knowledge,
		Mastery:        masterySvc,
		Recommendation: recommendation,
		neo4j:          neoClient,
		otelShutdown:   shutdown,
	}, nil
}

// Close releases external clients. Safe to call once at process exit.
func (a *App) Close(ctx context.Context) {
	if a.neo4j != nil {
		if err := a.neo4j.Close(ctx); err != nil {
			a.Log.Warn("neo4j close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
}

func openDatabase(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	if cfg.DatabaseDSN == "" {
		log.Info("no database configured, mastery state is in-memory only")
		return nil, nil
	}
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("app: unsupported database driver %q", cfg.DatabaseDriver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}
	if err := db.AutoMigrate(&types.ConceptMastery{}); err != nil {
		return nil, fmt.Errorf("app: migrate: %w", err)
	}
	log.Info("database connected", "driver", cfg.DatabaseDriver)
	return db, nil
}
