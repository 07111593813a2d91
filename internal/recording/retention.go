package recording

import (
	"context"
	"log/slog"
	"time"

	"github.com/voipbridge/voipbridge/internal/database"
)

// StartRetentionTicker runs a background goroutine that periodically
// deletes recordings older than maxDays. Recordings live as blobs in the
// database, so deletion reclaims the rows directly. A maxDays of zero
// disables retention. The goroutine stops when the context is cancelled.
func StartRetentionTicker(ctx context.Context, recordings database.RecordingRepository, maxDays int, interval time.Duration) {
	if maxDays <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := recordings.DeleteOlderThan(ctx, maxDays)
				if err != nil {
					slog.Error("recording retention cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("recording retention cleanup",
						"deleted", deleted, "max_days", maxDays)
				}
			}
		}
	}()
}
