// internal/worker/retention.go
package worker

import (
	"context"
	"time"

	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
)

type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionSweeper deletes notifications past the retention window.
type RetentionSweeper struct {
	purger   Purger
	window   time.Duration
	interval time.Duration
	logger   logger.Logger
	now      func() time.Time
}

func NewRetentionSweeper(purger Purger, days int, interval time.Duration, log logger.Logger) *RetentionSweeper {
	if days <= 0 {
		days = models.RetentionDays
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionSweeper{
		purger:   purger,
		window:   time.Duration(days) * 24 * time.Hour,
		interval: interval,
		logger:   logger.Component(log, "retention"),
		now:      time.Now,
	}
}

// SweepOnce deletes rows created before now minus the window.
func (s *RetentionSweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.window)
	n, err := s.purger.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged expired notifications", map[string]interface{}{
			"count":  n,
			"cutoff": cutoff.Format(time.RFC3339),
		})
	}
	return n, nil
}

func (s *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("retention sweep failed", map[string]interface{}{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
