package housekeeping

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/reductor/goldensync/internal/converter"
)

// Clean removes every target output and returns the paths that existed.
// Missing outputs are not errors.
func Clean(targets []converter.Target, logger *slog.Logger) ([]string, error) {
	var removed []string
	for _, target := range targets {
		ok, err := removeFile(target.Path)
		if err != nil {
			return removed, fmt.Errorf("failed to delete %s output %s: %w", target.Format, target.Path, err)
		}
		if ok {
			logger.Info("deleted output", "format", target.Format, "path", target.Path)
			removed = append(removed, target.Path)
		}
	}
	return removed, nil
}

// DeleteBackup removes the editor backup artifact at path, file or directory.
// It reports whether anything was there.
func DeleteBackup(path string, logger *slog.Logger) (bool, error) {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			logger.Debug("no editor backup to delete", "path", path)
			return false, nil
		}
		return false, fmt.Errorf("failed to stat editor backup: %w", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return false, fmt.Errorf("failed to delete editor backup %s: %w", path, err)
	}
	logger.Info("deleted editor backup", "path", path)
	return true, nil
}

func removeFile(path string) (bool, error) {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
