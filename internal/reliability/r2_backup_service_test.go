package reliability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyJurisdictionsTree_CopiesOnlyJSONFiles(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "snapshot")

	require.NoError(t, os.WriteFile(filepath.Join(src, "US.json"), []byte(`{"jurisdiction":"US"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "SG.json"), []byte(`{"jurisdiction":"SG"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "README.md"), []byte("not json"), 0644))

	count, err := copyJurisdictionsTree(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = os.Stat(filepath.Join(dst, "US.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "SG.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "README.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestCopyJurisdictionsTree_MissingSourceIsNotAnError(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "snapshot")

	count, err := copyJurisdictionsTree(filepath.Join(t.TempDir(), "does-not-exist"), dst)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestR2BackupService_CalculateChecksum_IsStableForSameContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.db")
	require.NoError(t, os.WriteFile(path, []byte("database contents"), 0644))

	service := &R2BackupService{}
	first, err := service.calculateChecksum(path)
	require.NoError(t, err)
	second, err := service.calculateChecksum(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "sha256:")
}

func TestR2BackupJob_Name(t *testing.T) {
	job := NewR2BackupJob(&R2BackupService{}, 30)
	assert.Equal(t, "r2_backup", job.Name())
}
