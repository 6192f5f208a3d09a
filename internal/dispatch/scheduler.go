package dispatch

import (
	"context"
	"time"

	"github.com/richxcame/dispatch-core/pkg/logger"
	"go.uber.org/zap"
)

// schedulerInterval is how often the sweep checks for due scheduled trips.
const schedulerInterval = 1 * time.Minute

// Scheduler periodically activates REQUESTED trips whose scheduledFor
// wall-clock time has arrived, starting the normal dispatch chain for
// each. One ticker, run-once-on-start, select over ticker/ctx.Done.
type Scheduler struct {
	svc   *Service
	batch int
}

// NewScheduler builds a sweep bound to svc, processing up to batch due
// trips per tick.
func NewScheduler(svc *Service, batch int) *Scheduler {
	return &Scheduler{svc: svc, batch: batch}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(schedulerInterval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	due, err := s.svc.repo.DueScheduledTrips(ctx, s.batch)
	if err != nil {
		logger.ErrorContext(ctx, "scheduled dispatch sweep failed to load due trips", zap.Error(err))
		return
	}
	for _, trip := range due {
		go s.svc.dispatch(context.WithoutCancel(ctx), trip.ID)
	}
}
