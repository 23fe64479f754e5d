package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, modTime time.Time) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func TestDeleteStaleArtifacts(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		backupAge     time.Duration
		wantBackupDel bool
	}{
		{name: "expired backup", backupAge: 48 * time.Hour, wantBackupDel: true},
		{name: "fresh backup", backupAge: time.Hour, wantBackupDel: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			install := filepath.Join(dir, "app")
			backup := install + BackupSuffix
			staged := filepath.Join(dir, ".app"+StagedSuffix)
			unrelated := filepath.Join(dir, ".other"+StagedSuffix)

			writeFile(t, install, now)
			writeFile(t, backup, now.Add(-tt.backupAge))
			writeFile(t, staged, now)
			writeFile(t, unrelated, now)

			removed, err := DeleteStaleArtifacts(context.Background(), install, 24*time.Hour, now)
			require.NoError(t, err)

			assert.Contains(t, removed, staged)
			assert.NoFileExists(t, staged)
			assert.FileExists(t, install)
			assert.FileExists(t, unrelated)

			if tt.wantBackupDel {
				assert.Contains(t, removed, backup)
				assert.NoFileExists(t, backup)
			} else {
				assert.NotContains(t, removed, backup)
				assert.FileExists(t, backup)
			}
		})
	}
}

func TestDeleteStaleArtifactsNothingToDo(t *testing.T) {
	dir := t.TempDir()
	install := filepath.Join(dir, "app")
	writeFile(t, install, time.Now())

	removed, err := DeleteStaleArtifacts(context.Background(), install, time.Hour, time.Now())

	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestDeleteStaleArtifactsMissingDir(t *testing.T) {
	install := filepath.Join(t.TempDir(), "missing", "app")

	_, err := DeleteStaleArtifacts(context.Background(), install, time.Hour, time.Now())

	assert.Error(t, err)
}
