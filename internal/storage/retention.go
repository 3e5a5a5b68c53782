package storage

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig holds the retention window for finished ingest runs.
// Staged rows go with their run via the foreign key cascade; published
// alerts and logs are kept indefinitely.
type RetentionConfig struct {
	RunTTL time.Duration `yaml:"run_ttl"`
}

// DefaultRetentionConfig keeps finished runs for 30 days.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{RunTTL: 30 * 24 * time.Hour}
}

// PurgeRuns deletes finished ingest runs older than the retention window
// and returns how many runs were removed.
func (s *Store) PurgeRuns(ctx context.Context, cfg RetentionConfig) (int64, error) {
	if cfg.RunTTL <= 0 {
		return 0, nil
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	cutoff := time.Now().UTC().Add(-cfg.RunTTL)
	tag, err := s.pool.Exec(qctx, `
		DELETE FROM ingest_runs
		WHERE finished_at IS NOT NULL AND finished_at < $1
	`, cutoff)
	if err != nil {
		return 0, classify("PurgeRuns", "ingest_runs", err)
	}

	purged := tag.RowsAffected()
	if purged > 0 {
		slog.Info("purged expired ingest runs",
			"purged", purged,
			"cutoff", cutoff,
		)
	}
	return purged, nil
}
