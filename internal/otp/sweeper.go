package otp

import (
	"context"
	"time"

	"github.com/richxcame/dispatch-core/pkg/logger"
	"go.uber.org/zap"
)

const (
	// sweepInterval is how often stale rows are cleaned up.
	sweepInterval = time.Hour
	// sweepRetention keeps expired OTPs and spent rate-limit windows
	// around for a day before deletion.
	sweepRetention = 24 * time.Hour
)

// Sweeper periodically removes OTP rows expired for more than a day and
// rate-limit windows older than a day.
type Sweeper struct {
	svc *Service
}

// NewSweeper builds a Sweeper over the OTP service.
func NewSweeper(svc *Service) *Sweeper {
	return &Sweeper{svc: svc}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.svc.Sweep(ctx, sweepRetention)
			if err != nil {
				logger.ErrorContext(ctx, "otp sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.InfoContext(ctx, "otp sweep complete", zap.Int64("rows_removed", removed))
			}
		}
	}
}
