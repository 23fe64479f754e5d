// Package cleanup removes files left behind by earlier installs.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/updaterd/internal/logctx"
)

// BackupSuffix marks the previous binary kept by an install.
const BackupSuffix = ".old"

// StagedSuffix is appended to the hidden copy of a download staged for install.
const StagedSuffix = ".new"

// DeleteStaleArtifacts removes the backup of installPath once it is older than
// keepBackupFor, and the staged binary an interrupted install left beside it.
// It returns the removed paths.
func DeleteStaleArtifacts(ctx context.Context, installPath string, keepBackupFor time.Duration, now time.Time) ([]string, error) {
	logger := logctx.LoggerFromContext(ctx)

	dir := filepath.Dir(installPath)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var removed []string

	backup := installPath + BackupSuffix

	info, err := os.Stat(backup)

	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		logger.Error("Failed to stat backup", "file", backup, "err", err)

		return removed, err
	case now.Sub(info.ModTime()) > keepBackupFor:
		if err := os.Remove(backup); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Error("Failed to delete expired backup", "file", backup, "err", err)

			return removed, err
		}

		logger.Info("Deleted expired backup", "file", backup)
		removed = append(removed, backup)
	}

	staged := filepath.Join(dir, "."+filepath.Base(installPath)+StagedSuffix)

	switch err := os.Remove(staged); {
	case err == nil:
		logger.Info("Deleted leftover staged binary", "file", staged)
		removed = append(removed, staged)
	case !errors.Is(err, os.ErrNotExist):
		logger.Error("Failed to delete staged binary", "file", staged, "err", err)

		return removed, err
	}

	return removed, nil
}
