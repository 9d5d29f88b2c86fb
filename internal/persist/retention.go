package persist

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunRetention periodically deletes trades older than the retention
// period. Blocks until ctx is cancelled. Pass retentionDays <= 0 to
// disable.
func RunRetention(ctx context.Context, store *Store, retentionDays int, log *zap.Logger) {
	if retentionDays <= 0 {
		log.Info("trade retention disabled (keep forever)")
		return
	}

	interval := 1 * time.Hour
	log.Info("trade retention enabled", zap.Int("retention_days", retentionDays), zap.Duration("interval", interval))

	prune(ctx, store, retentionDays, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune(ctx, store, retentionDays, log)
		}
	}
}

func prune(ctx context.Context, store *Store, retentionDays int, log *zap.Logger) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC().Format(time.RFC3339Nano)

	result, err := store.db.ExecContext(ctx, `DELETE FROM trades WHERE executed_at < ?`, cutoff)
	if err != nil {
		log.Error("trade retention prune error", zap.Error(err))
		return
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		log.Info("trade retention pruned trades", zap.Int64("count", n), zap.String("cutoff", cutoff))
	}
}
