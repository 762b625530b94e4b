package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"barbershop/internal/config"

	"github.com/rs/zerolog"
)

const backupPrefix = "barbershop_"

// BackupService periodically snapshots the database with VACUUM INTO.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	every  time.Duration
	logger *zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, every time.Duration, logger *zerolog.Logger) *BackupService {
	if every <= 0 {
		every = 24 * time.Hour
	}
	return &BackupService{db: db, config: cfg, every: every, logger: logger}
}

// Start blocks until ctx is done, taking a backup right away and then every interval.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	s.logger.Info().Dur("interval", s.every).Str("path", s.config.Path).Msg("Backup service started")

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	path, err := s.db.Backup(ctx, s.config.Path, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Backup failed")
		return
	}
	s.logger.Info().Str("path", path).Msg("Backup completed")

	removed, err := CleanupBackups(s.config.Path, s.config.RetentionDays, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to clean up old backups")
		return
	}
	for _, name := range removed {
		s.logger.Info().Str("file", name).Msg("Deleted old backup")
	}
}

// Backup writes a consistent copy of the database into dir and returns its path.
func (db *DB) Backup(ctx context.Context, dir string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("backup directory is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	dest := filepath.Join(dir, backupPrefix+now.UTC().Format("20060102_150405")+".db")
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return dest, nil
}

// CleanupBackups removes backup files in dir older than retentionDays and returns
// their names. retentionDays <= 0 keeps everything.
func CleanupBackups(dir string, retentionDays int, now time.Time) ([]string, error) {
	if retentionDays <= 0 {
		return nil, nil
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	var removed []string
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, file.Name())); err != nil {
				return removed, err
			}
			removed = append(removed, file.Name())
		}
	}
	return removed, nil
}
