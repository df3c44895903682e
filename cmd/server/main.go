// Package main is the entry point for the compliance oracle service: it
// watches regulator feeds for tokenized real-world-asset rule changes,
// routes breaking updates through an LLM-backed Regulatory Oracle for
// review, simulates investor-base impact, and applies approved patches
// to the per-jurisdiction Ruleset Store.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/compliance-oracle/internal/config"
	"github.com/aristath/compliance-oracle/internal/database"
	"github.com/aristath/compliance-oracle/internal/events"
	"github.com/aristath/compliance-oracle/internal/health"
	"github.com/aristath/compliance-oracle/internal/oracle"
	"github.com/aristath/compliance-oracle/internal/reasoner"
	"github.com/aristath/compliance-oracle/internal/reliability"
	"github.com/aristath/compliance-oracle/internal/rulesets"
	"github.com/aristath/compliance-oracle/internal/scheduler"
	"github.com/aristath/compliance-oracle/internal/scrapers"
	"github.com/aristath/compliance-oracle/internal/server"
	"github.com/aristath/compliance-oracle/internal/simulator"
	"github.com/aristath/compliance-oracle/pkg/logger"
)

// servedJurisdictions lists the jurisdictions this deployment carries
// rulesets for — US (SEC EDGAR) and SG (MAS circulars), per the two
// scrapers wired below.
var servedJurisdictions = []string{"US", "SG"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting compliance oracle")

	evts := events.NewManager(log)

	store := rulesets.New(cfg.DataDir, cfg.JurisdictionAliases, evts, log)

	gateway := reasoner.New(reasoner.Config{
		BaseURL:    cfg.ReasonerBaseURL,
		APIKey:     cfg.ReasonerAPIKey,
		Model:      cfg.ReasonerModel,
		MaxRetries: cfg.ReasonerMaxRetry,
	}, log)

	investorClient := simulator.NewInvestorClient(cfg.InvestorServiceURL, log)
	sim := simulator.New(investorClient, log)

	dbPath := filepath.Join(cfg.DataDir, "pending_changes", "pending_changes.db")
	db, err := database.New(database.Config{Path: dbPath, Profile: database.ProfileStandard, Name: "pending_changes"})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open pending changes database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate pending changes database")
	}
	defer db.Close()

	repo := oracle.NewRepository(db)

	orc := oracle.New(oracle.Config{
		Store:         store,
		Gateway:       gateway,
		Simulator:     sim,
		Repo:          repo,
		Events:        evts,
		MinConfidence: cfg.OracleMinConfidence,
	}, log)

	scraperRegistry := scrapers.NewRegistry(scrapers.RegistryConfig{
		DataDir:       cfg.DataDir,
		SECEnabled:    cfg.SECScraperEnabled,
		SECSinceHours: cfg.SECSinceHours,
		MASEnabled:    cfg.MASScraperEnabled,
		MASSinceHours: cfg.MASSinceHours,
	}, log)

	dailyUpdateJob := scheduler.NewDailyUpdateJob(scraperRegistry, scrapers.RegistryConfig{
		DataDir:       cfg.DataDir,
		SECEnabled:    cfg.SECScraperEnabled,
		SECSinceHours: cfg.SECSinceHours,
		MASEnabled:    cfg.MASScraperEnabled,
		MASSinceHours: cfg.MASSinceHours,
	}, orc, cfg.DataDir, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.SchedulerCron, dailyUpdateJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register daily update job")
	}

	backupDir := filepath.Join(cfg.DataDir, "backups")
	backupService := reliability.NewBackupService(db, backupDir, log)
	if err := sched.AddJob("0 0 3 * * *", reliability.NewDailyBackupJob(backupService)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register daily backup job")
	}
	if err := sched.AddJob("0 30 3 * * *", reliability.NewDailyMaintenanceJob(db, backupDir, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register daily maintenance job")
	}
	if err := sched.AddJob("0 0 4 * * 0", reliability.NewWeeklyMaintenanceJob(db, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register weekly maintenance job")
	}

	if cfg.R2Enabled {
		r2Ctx, r2Cancel := context.WithTimeout(context.Background(), 10*time.Second)
		r2Client, err := reliability.NewR2Client(r2Ctx, reliability.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Bucket:          cfg.R2Bucket,
		})
		r2Cancel()
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize R2 client, offsite backups disabled")
		} else {
			r2BackupService := reliability.NewR2BackupService(r2Client, backupService, cfg.DataDir, log)
			if err := sched.AddJob("0 15 3 * * *", reliability.NewR2BackupJob(r2BackupService, cfg.R2RetentionDays)); err != nil {
				log.Error().Err(err).Msg("Failed to register offsite backup job")
			}
		}
	}

	reasonerStatus := health.ReasonerStatus{
		Enabled: cfg.ReasonerAPIKey != "",
		Model:   cfg.ReasonerModel,
	}
	healthChecker := health.New(store, servedJurisdictions, reasonerStatus, log)

	srv := server.New(server.Config{
		Log:             log,
		Port:            cfg.Port,
		DevMode:         cfg.DevMode,
		Store:           store,
		Gateway:         gateway,
		Oracle:          orc,
		Events:          evts,
		Health:          healthChecker,
		UIFlagThreshold: cfg.UIFlagConfidence,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	sched.Start()
	log.Info().Str("cron", cfg.SchedulerCron).Msg("Scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
