package reconciliation

import (
	"context"
	"time"

	"github.com/richxcame/dispatch-core/pkg/logger"
	"go.uber.org/zap"
)

// reconciliationHour is the local wall-clock hour the daily job runs at.
const reconciliationHour = 2

// Scheduler fires Service.RunWindow once a day at 02:00 local for the
// preceding 24h window, aligned to wall-clock time rather than a fixed
// interval from process start.
type Scheduler struct {
	svc *Service
}

// NewScheduler builds a reconciliation Scheduler.
func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{svc: svc}
}

// Start runs the daily sweep loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := nextRunAt(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.run(ctx, next)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, runAt time.Time) {
	end := time.Date(runAt.Year(), runAt.Month(), runAt.Day(), reconciliationHour, 0, 0, 0, runAt.Location())
	start := end.Add(-24 * time.Hour)

	log, err := s.svc.RunWindow(ctx, start, end)
	if err != nil {
		logger.ErrorContext(ctx, "daily reconciliation run failed", zap.Error(err))
	} else {
		logger.InfoContext(ctx, "daily reconciliation run complete",
			zap.Float64("db_total", log.DBTotal), zap.Float64("provider_total", log.ProviderTotal), zap.Float64("mismatch", log.Mismatch))
	}

	checked, mismatched, err := s.svc.VerifyDriverLedgers(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "credit ledger sweep finished with errors", zap.Error(err))
	}
	logger.InfoContext(ctx, "credit ledger sweep complete",
		zap.Int("drivers_checked", checked), zap.Int("drivers_mismatched", mismatched))
}

// nextRunAt returns the next 02:00 local time strictly after now.
func nextRunAt(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), reconciliationHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
