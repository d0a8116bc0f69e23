package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/loomworks/loom-engine/migrations"
	"github.com/loomworks/loom-engine/pkg/config"
	"github.com/loomworks/loom-engine/pkg/database"
	"github.com/loomworks/loom-engine/pkg/logging"
	"github.com/loomworks/loom-engine/pkg/repositories"
	"github.com/loomworks/loom-engine/pkg/retry"
	"github.com/loomworks/loom-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.PoolConfig().URL())),
		zap.Int("discovery_interval_minutes", cfg.Discovery.IntervalMinutes))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Engine failed", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Apply schema migrations before opening the pool.
	migrationDB, err := sql.Open("pgx", cfg.Database.PoolConfig().URL())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	if err := database.RunMigrations(migrationDB, migrations.FS, logger); err != nil {
		_ = migrationDB.Close()
		return fmt.Errorf("run migrations: %w", err)
	}
	_ = migrationDB.Close()

	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, cfg.Database.PoolConfig())
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	workspaceRepo := repositories.NewWorkspaceRepository(db)
	skillRepo := repositories.NewSkillRepository(db)
	pipeline := services.NewMiningPipeline(
		services.NewEventGraphBuilder(logger),
		services.NewPatternMiner(logger),
		logger,
	)
	discovery := services.NewSkillDiscoveryService(
		workspaceRepo, skillRepo, pipeline, services.NewSkillCompiler(logger), logger,
	)

	if err := sweep(ctx, discovery, workspaceRepo, cfg, logger); err != nil {
		return err
	}
	if cfg.Discovery.IntervalMinutes <= 0 {
		return nil
	}

	ticker := time.NewTicker(time.Duration(cfg.Discovery.IntervalMinutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return nil
		case <-ticker.C:
			if err := sweep(ctx, discovery, workspaceRepo, cfg, logger); err != nil {
				return err
			}
		}
	}
}

// sweep re-mines every workspace. A failure in one workspace is logged
// and does not stop the others.
func sweep(
	ctx context.Context,
	discovery services.SkillDiscoveryService,
	workspaceRepo repositories.WorkspaceRepository,
	cfg *config.Config,
	logger *zap.Logger,
) error {
	workspaces, err := workspaceRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("list workspaces: %w", err)
	}

	miningCfg := cfg.Mining.ToMiningConfig()
	for _, ws := range workspaces {
		var result *services.DiscoveryResult
		err := retry.Do(ctx, retry.DefaultConfig(), func() error {
			var derr error
			result, derr = discovery.DiscoverSkills(ctx, ws.ID, miningCfg, nil)
			return derr
		})
		if err != nil {
			logger.Error("Discovery failed for workspace",
				zap.String("workspace_id", ws.ID.String()),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		logger.Info("Workspace mined",
			zap.String("workspace_id", ws.ID.String()),
			zap.Int("events", result.Events),
			zap.Int("patterns", result.Patterns),
			zap.Int("skills", result.SkillsCompiled))
	}
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Env == "local" {
		return zap.NewDevelopment()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	return zc.Build()
}
