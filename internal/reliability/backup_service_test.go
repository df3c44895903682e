package reliability

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/compliance-oracle/internal/database"
)

func newTestBackupDB(t *testing.T) *database.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "pending_changes.db")
	db, err := database.New(database.Config{
		Path:    dbPath,
		Profile: database.ProfileStandard,
		Name:    "pending_changes",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Conn().Exec("CREATE TABLE pending_changes (id TEXT PRIMARY KEY, jurisdiction TEXT)")
	require.NoError(t, err)
	_, err = db.Conn().Exec("INSERT INTO pending_changes (id, jurisdiction) VALUES ('chg_1', 'US'), ('chg_2', 'SG')")
	require.NoError(t, err)

	return db
}

func TestBackupService_DailyBackup_CreatesVerifiedBackup(t *testing.T) {
	backupDir := t.TempDir()
	db := newTestBackupDB(t)
	service := NewBackupService(db, backupDir, zerolog.Nop())

	require.NoError(t, service.DailyBackup())

	date := time.Now().Format("2006-01-02")
	backupPath := filepath.Join(backupDir, "daily", "pending_changes_"+date+".db")

	backupDB, err := sql.Open("sqlite", backupPath)
	require.NoError(t, err)
	defer backupDB.Close()

	var count int
	require.NoError(t, backupDB.QueryRow("SELECT COUNT(*) FROM pending_changes").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestBackupService_VerifyBackup_DetectsCorruption(t *testing.T) {
	tempDir := t.TempDir()
	backupPath := filepath.Join(tempDir, "corrupted.db")
	require.NoError(t, os.WriteFile(backupPath, []byte("not a valid sqlite database"), 0644))

	service := NewBackupService(nil, tempDir, zerolog.Nop())
	assert.Error(t, service.verifyBackup(backupPath))
}

func TestBackupService_RotateDailyBackups_DeletesOldOnly(t *testing.T) {
	tempDir := t.TempDir()
	dailyDir := filepath.Join(tempDir, "daily")
	require.NoError(t, os.MkdirAll(dailyDir, 0755))

	oldBackup := filepath.Join(dailyDir, "pending_changes_2020-01-01.db")
	require.NoError(t, os.WriteFile(oldBackup, []byte("old"), 0644))
	oldTime := time.Now().AddDate(0, 0, -31)
	require.NoError(t, os.Chtimes(oldBackup, oldTime, oldTime))

	recentBackup := filepath.Join(dailyDir, "pending_changes_recent.db")
	require.NoError(t, os.WriteFile(recentBackup, []byte("recent"), 0644))

	service := NewBackupService(nil, tempDir, zerolog.Nop())
	require.NoError(t, service.rotateDailyBackups(dailyDir))

	_, err := os.Stat(oldBackup)
	assert.True(t, os.IsNotExist(err), "old backup should be deleted")

	_, err = os.Stat(recentBackup)
	assert.NoError(t, err, "recent backup should still exist")
}

func TestDailyBackupJob_NameAndRun(t *testing.T) {
	backupDir := t.TempDir()
	db := newTestBackupDB(t)
	job := NewDailyBackupJob(NewBackupService(db, backupDir, zerolog.Nop()))

	assert.Equal(t, "daily_backup", job.Name())
	assert.NoError(t, job.Run())
}
