package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/propagentic/maintenance-service/internal/config"
	"github.com/propagentic/maintenance-service/internal/service"
)

const escalationLockKey = "locks:escalation_sweep"

// EscalationWorker runs the SLA sweep on a schedule. When Redis is
// configured a short-lived lock keeps concurrent replicas from sweeping
// the same interval twice; the sweep itself is idempotent either way.
type EscalationWorker struct {
	escalations *service.EscalationService
	redis       *redis.Client
	cfg         config.EscalationConfig
	logger      *zap.Logger
}

// NewEscalationWorker creates the worker.
func NewEscalationWorker(escalations *service.EscalationService, redisClient *redis.Client, cfg config.EscalationConfig, logger *zap.Logger) *EscalationWorker {
	return &EscalationWorker{
		escalations: escalations,
		redis:       redisClient,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start launches the sweep loop until the context is cancelled.
func (w *EscalationWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *EscalationWorker) run(ctx context.Context) {
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

// RunOnce executes a single sweep pass with lease acquisition and bounded
// retries on transient failures.
func (w *EscalationWorker) RunOnce(ctx context.Context) {
	if !w.acquireLease(ctx) {
		w.logger.Debug("escalation sweep lease held elsewhere")
		return
	}

	maxAttempts := w.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := time.Second
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := w.escalations.Sweep(ctx)
		if err == nil {
			if result.Escalated > 0 {
				w.logger.Info("escalation sweep completed",
					zap.Int("scanned", result.Scanned),
					zap.Int("escalated", result.Escalated),
					zap.Int("skipped", result.Skipped))
			}
			return
		}
		w.logger.Error("escalation sweep failed",
			zap.Int("attempt", attempt), zap.Error(err))
		if attempt == maxAttempts {
			return
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
	}
}

func (w *EscalationWorker) acquireLease(ctx context.Context) bool {
	if w.redis == nil {
		return true
	}
	ttl := time.Duration(w.cfg.LockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	acquired, err := w.redis.SetNX(ctx, escalationLockKey, time.Now().Unix(), ttl).Result()
	if err != nil {
		w.logger.Warn("escalation lease check failed; sweeping anyway", zap.Error(err))
		return true
	}
	return acquired
}
