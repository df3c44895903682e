package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compliance-oracle/internal/database"
)

// BackupService manages local daily backups of the pending_changes
// database, keeping the last 30 days. The jurisdictions/ JSON tree is plain files and is archived
// directly by R2BackupService rather than going through SQLite's VACUUM
// INTO path.
type BackupService struct {
	db        *database.DB
	backupDir string
	log       zerolog.Logger
}

// NewBackupService creates a new backup service.
func NewBackupService(db *database.DB, backupDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		db:        db,
		backupDir: backupDir,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// DailyBackup backs up pending_changes.db, keeping the last 30 days.
func (s *BackupService) DailyBackup() error {
	s.log.Info().Msg("Starting daily backup")
	startTime := time.Now()

	date := time.Now().Format("2006-01-02")
	dailyDir := filepath.Join(s.backupDir, "daily")
	if err := os.MkdirAll(dailyDir, 0755); err != nil {
		return fmt.Errorf("failed to create daily backup directory: %w", err)
	}

	backupPath := filepath.Join(dailyDir, fmt.Sprintf("pending_changes_%s.db", date))
	if err := s.BackupDatabase(backupPath); err != nil {
		return fmt.Errorf("failed to backup pending_changes.db: %w", err)
	}

	if err := s.verifyBackup(backupPath); err != nil {
		os.Remove(backupPath)
		return fmt.Errorf("backup verification failed: %w", err)
	}

	if err := s.rotateDailyBackups(dailyDir); err != nil {
		s.log.Error().Err(err).Msg("Failed to rotate daily backups")
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("backup_path", backupPath).
		Msg("Daily backup completed successfully")

	return nil
}

// BackupDatabase performs an atomic backup of the pending_changes
// database via SQLite's VACUUM INTO, which also compacts the copy.
func (s *BackupService) BackupDatabase(backupPath string) error {
	_, err := s.db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", backupPath))
	if err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}

	info, err := os.Stat(backupPath)
	if err != nil {
		return fmt.Errorf("failed to stat backup: %w", err)
	}

	s.log.Debug().
		Float64("size_mb", float64(info.Size())/1024/1024).
		Msg("Backup created")

	return nil
}

// verifyBackup opens the backup file and runs an integrity check.
func (s *BackupService) verifyBackup(backupPath string) error {
	backupDB, err := sql.Open("sqlite", backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backupDB.Close()

	var result string
	if err := backupDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// rotateDailyBackups deletes daily backup files older than 30 days.
func (s *BackupService) rotateDailyBackups(dailyDir string) error {
	cutoff := time.Now().AddDate(0, 0, -30)

	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		return fmt.Errorf("failed to read daily backup directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(dailyDir, entry.Name())
			if err := os.Remove(path); err != nil {
				s.log.Warn().Str("path", path).Err(err).Msg("Failed to delete old daily backup")
			} else {
				s.log.Debug().Str("path", path).Msg("Deleted old daily backup")
			}
		}
	}

	return nil
}

// DailyBackupJob wraps BackupService.DailyBackup for the scheduler.
type DailyBackupJob struct {
	service *BackupService
}

// NewDailyBackupJob creates a new daily backup job.
func NewDailyBackupJob(service *BackupService) *DailyBackupJob {
	return &DailyBackupJob{service: service}
}

// Run executes the daily backup.
func (j *DailyBackupJob) Run() error { return j.service.DailyBackup() }

// Name returns the job name for the scheduler.
func (j *DailyBackupJob) Name() string { return "daily_backup" }
