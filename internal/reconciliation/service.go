package reconciliation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"github.com/richxcame/dispatch-core/pkg/models"
	"go.uber.org/zap"
)

// store is the persistence surface Service needs.
type store interface {
	DBTotal(ctx context.Context, start, end time.Time) (float64, error)
	InsertLog(ctx context.Context, log *models.ReconciliationLog) error
	AllDriverIDs(ctx context.Context) ([]uuid.UUID, error)
}

// mismatchThreshold flags any DB-vs-provider delta exceeding a cent.
const mismatchThreshold = 0.01

// Service runs the daily DB-vs-provider comparison and the per-driver
// credit-ledger invariant sweep.
type Service struct {
	repo     store
	provider ProviderAggregator
	alerter  AdminAlerter
	ledger   LedgerVerifier
}

// NewService wires a reconciliation Service. provider may be nil in
// deployments without a configured payment provider — RunWindow then
// records providerTotal as 0 and always alerts, which is the honest
// behavior rather than silently skipping the check. ledger may be nil
// in tests that only exercise the window comparison.
func NewService(repo *Repository, provider ProviderAggregator, alerter AdminAlerter, ledger LedgerVerifier) *Service {
	return &Service{repo: repo, provider: provider, alerter: alerter, ledger: ledger}
}

// RunWindow executes one reconciliation pass over [start, end),
// persists a ReconciliationLog, and raises an admin alert if the
// mismatch exceeds a cent.
func (s *Service) RunWindow(ctx context.Context, start, end time.Time) (*models.ReconciliationLog, error) {
	dbTotal, err := s.repo.DBTotal(ctx, start, end)
	if err != nil {
		return nil, apperr.NewInternal("failed to aggregate db transactions", err)
	}

	var providerTotal float64
	details := "provider comparison unavailable: no payment provider configured"
	if s.provider != nil {
		cents, err := s.provider.AggregateTotal(ctx, start.Unix(), end.Unix())
		if err != nil {
			return nil, apperr.NewInternal("failed to aggregate provider totals", err)
		}
		providerTotal = float64(cents) / 100
		details = fmt.Sprintf("db_total=%.2f provider_total=%.2f", dbTotal, providerTotal)
	}

	mismatch := math.Abs(dbTotal - providerTotal)
	log := &models.ReconciliationLog{
		PeriodStart:   start,
		PeriodEnd:     end,
		DBTotal:       dbTotal,
		ProviderTotal: providerTotal,
		Mismatch:      mismatch,
		Details:       details,
	}
	if err := s.repo.InsertLog(ctx, log); err != nil {
		return nil, apperr.NewInternal("failed to persist reconciliation log", err)
	}

	if mismatch > mismatchThreshold && s.alerter != nil {
		msg := fmt.Sprintf("reconciliation mismatch of %.2f for window %s–%s", mismatch, start.Format(time.RFC3339), end.Format(time.RFC3339))
		if err := s.alerter.RecordAlert(ctx, "RECONCILIATION_MISMATCH", msg); err != nil {
			logger.WarnContext(ctx, "failed to record reconciliation alert", zap.Error(err))
		}
	}

	return log, nil
}

// VerifyDriverLedgers sweeps every driver and checks
// creditBalance == Σ(ledger.creditsDelta), raising an admin alert per
// drifted driver. A failed check for one driver doesn't stop the sweep;
// the first error is returned after the rest have been visited.
func (s *Service) VerifyDriverLedgers(ctx context.Context) (checked, mismatched int, err error) {
	if s.ledger == nil {
		return 0, 0, nil
	}

	driverIDs, err := s.repo.AllDriverIDs(ctx)
	if err != nil {
		return 0, 0, apperr.NewInternal("failed to list drivers for ledger sweep", err)
	}

	var firstErr error
	for _, driverID := range driverIDs {
		balance, ledgerSum, match, verifyErr := s.ledger.VerifyLedgerInvariant(ctx, driverID)
		if verifyErr != nil {
			if firstErr == nil {
				firstErr = verifyErr
			}
			logger.WarnContext(ctx, "credit ledger check failed",
				zap.String("driver_id", driverID.String()), zap.Error(verifyErr))
			continue
		}
		checked++
		if match {
			continue
		}
		mismatched++
		logger.WarnContext(ctx, "credit ledger drift detected",
			zap.String("driver_id", driverID.String()),
			zap.Int("credit_balance", balance),
			zap.Int("ledger_sum", ledgerSum),
		)
		if s.alerter != nil {
			msg := fmt.Sprintf("driver %s credit balance %d does not equal ledger sum %d", driverID, balance, ledgerSum)
			if alertErr := s.alerter.RecordAlert(ctx, "CREDIT_LEDGER_DRIFT", msg); alertErr != nil {
				logger.WarnContext(ctx, "failed to record ledger drift alert", zap.Error(alertErr))
			}
		}
	}
	return checked, mismatched, firstErr
}
