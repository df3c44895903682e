package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compliance-oracle/internal/database"
)

// DailyMaintenanceJob runs the cheap, frequent checks: WAL checkpoint to
// keep pending_changes.db's write-ahead log from growing unbounded, and a
// disk space check so the service halts loudly before it runs out of room
// to write new pending changes or rulesets.
type DailyMaintenanceJob struct {
	db        *database.DB
	backupDir string
	log       zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job.
func NewDailyMaintenanceJob(db *database.DB, backupDir string, log zerolog.Logger) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		db:        db,
		backupDir: backupDir,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the daily maintenance job.
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	var result string
	if err := j.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		j.log.Error().Str("result", result).Msg("CRITICAL: database integrity check failed")
		return fmt.Errorf("CRITICAL: integrity check failed: %s", result)
	}

	if _, err := j.db.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if err := j.verifyYesterdaysBackup(); err != nil {
		j.log.Error().Err(err).Msg("Backup verification failed")
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed successfully")

	return nil
}

// Name returns the job name for the scheduler.
func (j *DailyMaintenanceJob) Name() string { return "daily_maintenance" }

func (j *DailyMaintenanceJob) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	dataDir := filepath.Dir(j.backupDir)
	if err := syscall.Statfs(dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	if availableGB < 0.5 {
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: insufficient disk space, halting")
		return fmt.Errorf("CRITICAL: only %.2f GB free, system halted", availableGB)
	}
	if availableGB < 5.0 {
		j.log.Error().Float64("available_gb", availableGB).Msg("Low disk space, consider cleanup")
	} else if availableGB < 10.0 {
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}

	return nil
}

func (j *DailyMaintenanceJob) verifyYesterdaysBackup() error {
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	backupPath := filepath.Join(j.backupDir, "daily", fmt.Sprintf("pending_changes_%s.db", yesterday))

	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("yesterday's backup not found: %s", backupPath)
	}

	backupDB, err := sql.Open("sqlite", backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backupDB.Close()

	var result string
	if err := backupDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil || result != "ok" {
		return fmt.Errorf("backup integrity check failed: %s", result)
	}

	j.log.Debug().Str("path", backupPath).Msg("Backup verified")
	return nil
}

// WeeklyMaintenanceJob reclaims space with a full VACUUM, which the
// daily job skips because it locks the database for the duration.
type WeeklyMaintenanceJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewWeeklyMaintenanceJob creates a new weekly maintenance job.
func NewWeeklyMaintenanceJob(db *database.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{db: db, log: log.With().Str("job", "weekly_maintenance").Logger()}
}

// Run executes the weekly maintenance job.
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting weekly maintenance")
	startTime := time.Now()

	if err := j.vacuum(); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Weekly maintenance completed successfully")

	return nil
}

// Name returns the job name for the scheduler.
func (j *WeeklyMaintenanceJob) Name() string { return "weekly_maintenance" }

func (j *WeeklyMaintenanceJob) vacuum() error {
	var pageCount, pageSize int
	j.db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	j.db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
	sizeBefore := float64(pageCount*pageSize) / 1024 / 1024

	if _, err := j.db.Conn().Exec("VACUUM"); err != nil {
		return err
	}

	j.db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	sizeAfter := float64(pageCount*pageSize) / 1024 / 1024

	j.log.Info().
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")

	return nil
}
