package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupConfig controls periodic database snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	StoragePath   string `yaml:"storage_path"`
	IntervalHours int    `yaml:"interval_hours"`
	RetentionDays int    `yaml:"retention_days"`
}

func (c BackupConfig) interval() time.Duration {
	if c.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.IntervalHours) * time.Hour
}

// RunBackups snapshots the database on a fixed interval until ctx is done.
// The first snapshot is taken immediately.
func (db *DB) RunBackups(ctx context.Context, cfg BackupConfig) {
	if !cfg.Enabled {
		db.logger.Info().Msg("database backups disabled")
		return
	}
	db.logger.Info().
		Str("storage_path", cfg.StoragePath).
		Dur("interval", cfg.interval()).
		Msg("database backups started")

	ticker := time.NewTicker(cfg.interval())
	defer ticker.Stop()

	if err := db.Backup(ctx, cfg.StoragePath); err != nil {
		db.logger.Error().Err(err).Msg("initial backup failed")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.Backup(ctx, cfg.StoragePath); err != nil {
				db.logger.Error().Err(err).Msg("scheduled backup failed")
			}
			db.pruneBackups(cfg)
		}
	}
}

// Backup writes a consistent snapshot into dir. VACUUM INTO goes through the
// open connection, so it stays correct under WAL with concurrent writers,
// unlike copying the file.
func (db *DB) Backup(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	name := fmt.Sprintf("backup_%s.db", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	db.logger.Info().Str("path", path).Msg("database backup written")
	return nil
}

func (db *DB) pruneBackups(cfg BackupConfig) {
	if cfg.RetentionDays <= 0 {
		return
	}
	entries, err := os.ReadDir(cfg.StoragePath)
	if err != nil {
		db.logger.Error().Err(err).Msg("failed to read backup directory")
		return
	}
	cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "backup_") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		db.logger.Info().Str("file", entry.Name()).Msg("removing expired backup")
		os.Remove(filepath.Join(cfg.StoragePath, entry.Name()))
	}
}
