package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compliance-oracle/internal/version"
)

// R2BackupService archives the pending_changes database and the
// jurisdictions/ JSON ruleset tree together and ships them to Cloudflare
// R2, so a restore can bring back both decision history and regulatory
// state from a single object.
type R2BackupService struct {
	r2Client      *R2Client
	backupService *BackupService
	dataDir       string
	log           zerolog.Logger
}

// BackupMetadata describes a single archive's contents.
type BackupMetadata struct {
	Timestamp      time.Time `json:"timestamp"`
	ArchiveVersion string    `json:"archive_version"`
	ServiceVersion string    `json:"service_version"`
	DatabaseSize   int64     `json:"database_size_bytes"`
	DatabaseSHA256 string    `json:"database_sha256"`
	JurisdictionFiles int    `json:"jurisdiction_files"`
}

// BackupInfo describes a backup stored in R2.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

const archivePrefix = "compliance-oracle-backup-"

// NewR2BackupService creates a new R2 backup service.
func NewR2BackupService(r2Client *R2Client, backupService *BackupService, dataDir string, log zerolog.Logger) *R2BackupService {
	return &R2BackupService{
		r2Client:      r2Client,
		backupService: backupService,
		dataDir:       dataDir,
		log:           log.With().Str("service", "r2_backup").Logger(),
	}
}

// GetR2Client returns the R2 client, for handlers that need to report
// backup status directly.
func (s *R2BackupService) GetR2Client() *R2Client { return s.r2Client }

// CreateAndUploadBackup stages a fresh database copy plus a snapshot of
// the jurisdictions/ tree, archives them, and uploads the archive to R2.
func (s *R2BackupService) CreateAndUploadBackup(ctx context.Context) error {
	s.log.Info().Msg("Starting R2 backup")
	startTime := time.Now()

	stagingDir := filepath.Join(s.dataDir, "r2-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbPath := filepath.Join(stagingDir, "pending_changes.db")
	if err := s.backupService.BackupDatabase(dbPath); err != nil {
		return fmt.Errorf("failed to back up pending_changes.db: %w", err)
	}

	dbInfo, err := os.Stat(dbPath)
	if err != nil {
		return fmt.Errorf("failed to stat database backup: %w", err)
	}
	dbChecksum, err := s.calculateChecksum(dbPath)
	if err != nil {
		return fmt.Errorf("failed to checksum database backup: %w", err)
	}

	jurisdictionsSrc := filepath.Join(s.dataDir, "jurisdictions")
	jurisdictionsDst := filepath.Join(stagingDir, "jurisdictions")
	fileCount, err := copyJurisdictionsTree(jurisdictionsSrc, jurisdictionsDst)
	if err != nil {
		return fmt.Errorf("failed to snapshot jurisdictions tree: %w", err)
	}

	metadata := BackupMetadata{
		Timestamp:         time.Now().UTC(),
		ArchiveVersion:    "1.0.0",
		ServiceVersion:    version.Version,
		DatabaseSize:      dbInfo.Size(),
		DatabaseSHA256:    dbChecksum,
		JurisdictionFiles: fileCount,
	}
	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := s.writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02-150405")
	archiveName := fmt.Sprintf("%s%s.tar.gz", archivePrefix, timestamp)
	archivePath := filepath.Join(stagingDir, archiveName)

	if err := s.createArchive(archivePath, stagingDir); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.r2Client.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("failed to upload to r2: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int64("size_mb", archiveInfo.Size()/1024/1024).
		Msg("R2 backup completed successfully")

	return nil
}

// ListBackups lists all backups stored in R2, newest first.
func (s *R2BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.r2Client.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list r2 backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}

		filename := *obj.Key
		if !strings.HasPrefix(filename, archivePrefix) || !strings.HasSuffix(filename, ".tar.gz") {
			continue
		}

		timestampStr := strings.TrimSuffix(strings.TrimPrefix(filename, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse("2006-01-02-150405", timestampStr)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("Failed to parse timestamp from filename")
			continue
		}

		var sizeBytes int64
		if obj.Size != nil {
			sizeBytes = *obj.Size
		}

		backups = append(backups, BackupInfo{
			Filename:  filename,
			Timestamp: timestamp,
			SizeBytes: sizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes backups older than retentionDays, always
// keeping at least minBackupsToKeep regardless of age.
func (s *R2BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	s.log.Info().Int("retention_days", retentionDays).Msg("Starting R2 backup rotation")

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	const minBackupsToKeep = 3
	if len(backups) <= minBackupsToKeep {
		s.log.Info().Int("count", len(backups)).Msg("Too few backups to rotate")
		return nil
	}

	var cutoffTime time.Time
	if retentionDays > 0 {
		cutoffTime = time.Now().AddDate(0, 0, -retentionDays)
	}

	deletedCount := 0
	for i, backup := range backups {
		if i < minBackupsToKeep || retentionDays == 0 {
			continue
		}
		if backup.Timestamp.Before(cutoffTime) {
			if err := s.r2Client.Delete(ctx, backup.Filename); err != nil {
				s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
				continue
			}
			s.log.Info().Str("filename", backup.Filename).Time("timestamp", backup.Timestamp).Msg("Deleted old backup")
			deletedCount++
		}
	}

	s.log.Info().Int("deleted", deletedCount).Int("remaining", len(backups)-deletedCount).Msg("R2 backup rotation completed")
	return nil
}

func (s *R2BackupService) calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func (s *R2BackupService) writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive tars and gzips everything under stagingDir (the database
// backup, the jurisdictions/ snapshot, and the metadata file).
func (s *R2BackupService) createArchive(archivePath, stagingDir string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	return filepath.Walk(stagingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || path == archivePath {
			return nil
		}

		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}

		return s.addFileToArchive(tarWriter, path, rel)
	})
}

func (s *R2BackupService) addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}

// copyJurisdictionsTree copies every .json file from src into dst,
// returning the number of files copied. A missing src directory (no
// rulesets written yet) is not an error.
func copyJurisdictionsTree(src, dst string) (int, error) {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return 0, nil
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return 0, err
	}

	count := 0
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, filepath.Base(path)), data, 0644); err != nil {
			return err
		}
		count++
		return nil
	})

	return count, err
}

// R2BackupJob wraps R2BackupService for the scheduler: it uploads a
// fresh archive, then rotates old ones against the configured
// retention window.
type R2BackupJob struct {
	service       *R2BackupService
	retentionDays int
}

// NewR2BackupJob creates a new offsite backup job.
func NewR2BackupJob(service *R2BackupService, retentionDays int) *R2BackupJob {
	return &R2BackupJob{service: service, retentionDays: retentionDays}
}

// Run uploads a new archive and rotates old ones.
func (j *R2BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return fmt.Errorf("r2 backup upload failed: %w", err)
	}
	if err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		return fmt.Errorf("r2 backup rotation failed: %w", err)
	}
	return nil
}

// Name returns the job name for the scheduler.
func (j *R2BackupJob) Name() string { return "r2_backup" }
