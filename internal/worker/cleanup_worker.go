package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/propagentic/maintenance-service/internal/config"
	"github.com/propagentic/maintenance-service/internal/repository"
)

// CleanupWorker ages out notifications: archives read ones, purges
// soft-deleted ones, and hard-deletes everything past retention.
type CleanupWorker struct {
	notifications repository.NotificationRepository
	cfg           config.CleanupConfig
	logger        *zap.Logger
}

// NewCleanupWorker creates the worker.
func NewCleanupWorker(notifications repository.NotificationRepository, cfg config.CleanupConfig, logger *zap.Logger) *CleanupWorker {
	return &CleanupWorker{notifications: notifications, cfg: cfg, logger: logger}
}

// Start launches the retention loop until the context is cancelled.
func (w *CleanupWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *CleanupWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes one retention pass.
func (w *CleanupWorker) RunOnce(ctx context.Context) {
	now := time.Now()

	archived, err := w.notifications.ArchiveRead(ctx, now.AddDate(0, 0, -w.cfg.ArchiveAfterDays))
	if err != nil {
		w.logger.Error("archive read notifications", zap.Error(err))
	}
	purged, err := w.notifications.PurgeSoftDeleted(ctx, now.AddDate(0, 0, -w.cfg.PurgeAfterDays))
	if err != nil {
		w.logger.Error("purge soft-deleted notifications", zap.Error(err))
	}
	deleted, err := w.notifications.DeleteOlderThan(ctx, now.AddDate(0, 0, -w.cfg.DeleteAfterDays))
	if err != nil {
		w.logger.Error("delete expired notifications", zap.Error(err))
	}

	if archived+purged+deleted > 0 {
		w.logger.Info("notification retention pass completed",
			zap.Int64("archived", archived),
			zap.Int64("purged", purged),
			zap.Int64("deleted", deleted))
	}
}
