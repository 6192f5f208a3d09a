package messaging

import (
	"context"
	"time"

	"github.com/richxcame/dispatch-core/pkg/logger"
	"go.uber.org/zap"
)

// RetryQueue periodically re-attempts PENDING notifications that failed
// at least once, honoring RetrySchedule by skipping rows whose last
// attempt is too recent.
type RetryQueue struct {
	svc      *Service
	interval time.Duration
	batch    int
}

// NewRetryQueue builds a sweeper that polls every interval for up to
// batch due notifications per tick.
func NewRetryQueue(svc *Service, interval time.Duration, batch int) *RetryQueue {
	return &RetryQueue{svc: svc, interval: interval, batch: batch}
}

// Start runs the sweep loop until ctx is cancelled.
func (q *RetryQueue) Start(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweep(ctx)
		}
	}
}

func (q *RetryQueue) sweep(ctx context.Context) {
	pending, err := q.svc.repo.PendingRetries(ctx, MaxAttempts, q.batch)
	if err != nil {
		logger.WarnContext(ctx, "retry queue sweep failed to load pending notifications", zap.Error(err))
		return
	}

	for _, n := range pending {
		due := RetrySchedule[0]
		if n.Retries > 0 && n.Retries < len(RetrySchedule) {
			due = RetrySchedule[n.Retries]
		}
		if time.Since(n.UpdatedAt) < due {
			continue
		}
		q.svc.attempt(ctx, n)
	}
}
