package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/richxcame/dispatch-core/pkg/eventbus"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"github.com/richxcame/dispatch-core/pkg/models"
	"go.uber.org/zap"
)

// store is the persistence surface Service needs, narrowed from
// *Repository so tests can substitute a fake that never touches Postgres.
type store interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	LoadTripForUpdate(ctx context.Context, tx pgx.Tx, tripID uuid.UUID) (*models.Trip, error)
	WalletBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (float64, error)
	InsertTransactionInTx(ctx context.Context, tx pgx.Tx, txn *models.Transaction) error
	CompleteTripInTx(ctx context.Context, tx pgx.Tx, tripID uuid.UUID, fare, commission, driverEarnings float64) (bool, error)
	DeductCreditInTx(ctx context.Context, tx pgx.Tx, driverID, tripID uuid.UUID) error
	GetPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	GetPayoutByIdempotencyKey(ctx context.Context, key string) (*models.Payout, error)
	CreatePayout(ctx context.Context, p *models.Payout) (*models.Payout, error)
	MarkPayoutProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkPayoutCompleted(ctx context.Context, id uuid.UUID, stripeTransferID string) error
	MarkPayoutFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Config carries the commission rate applied at settlement.
type Config struct {
	CommissionRate float64
}

// DefaultConfig returns the documented 20% platform commission.
func DefaultConfig() Config {
	return Config{CommissionRate: 0.20}
}

// Service implements the atomic settlement transaction and the
// separate, idempotent driver payout path.
type Service struct {
	repo   store
	stripe StripeTransferer
	bus    *eventbus.Bus
	cfg    Config
}

// NewService wires a settlement Service. stripe may be nil — payouts
// then fail closed with ServiceUnavailable rather than silently no-op.
func NewService(repo *Repository, stripe StripeTransferer, bus *eventbus.Bus, cfg Config) *Service {
	return &Service{repo: repo, stripe: stripe, bus: bus, cfg: cfg}
}

// CompleteTrip is the sole settlement entry point, called by
// internal/trip once a driver (or admin) has driven a trip to
// IN_PROGRESS→COMPLETED and stamped its fare/distance/duration. Every
// effect below commits together or not at all:
//  1. load and lock the trip row
//  2. for WALLET trips, debit the rider's aggregated balance (or abort
//     with InsufficientBalance, leaving the trip untouched)
//  3. compute the commission split and CAS the trip to COMPLETED
//  4. deduct one credit from the driver's package
func (s *Service) CompleteTrip(ctx context.Context, tripID uuid.UUID) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return apperr.NewInternal("failed to start settlement transaction", err)
	}
	defer tx.Rollback(ctx)

	trip, err := s.repo.LoadTripForUpdate(ctx, tx, tripID)
	if err != nil {
		return apperr.NewInternal("failed to load trip for settlement", err)
	}
	if trip == nil {
		return apperr.NewNotFound("trip not found", nil)
	}
	if trip.Status != models.TripInProgress {
		return apperr.NewInvalidStateTransition(fmt.Sprintf("trip must be IN_PROGRESS to settle, currently %s", trip.Status))
	}
	if trip.DriverID == nil {
		return apperr.NewInternal("trip has no assigned driver", nil)
	}
	if trip.Fare == nil {
		return apperr.NewBadRequest("trip fare has not been recorded", nil)
	}
	fare := *trip.Fare

	if trip.PaymentMethod == models.PaymentWallet {
		balance, err := s.repo.WalletBalance(ctx, tx, trip.RiderID)
		if err != nil {
			return apperr.NewInternal("failed to compute wallet balance", err)
		}
		if balance < fare {
			return apperr.NewInsufficientBalance("wallet balance is insufficient for this trip's fare")
		}
		if err := s.repo.InsertTransactionInTx(ctx, tx, &models.Transaction{
			UserID: trip.RiderID,
			TripID: &trip.ID,
			Amount: fare,
			Type:   models.TxDebit,
			Status: models.TxCompleted,
		}); err != nil {
			return apperr.NewInternal("failed to record wallet debit", err)
		}
	}

	commission := fare * s.cfg.CommissionRate
	driverEarnings := fare - commission

	ok, err := s.repo.CompleteTripInTx(ctx, tx, tripID, fare, commission, driverEarnings)
	if err != nil {
		return apperr.NewInternal("failed to complete trip", err)
	}
	if !ok {
		return apperr.NewInvalidStateTransition("trip was no longer in progress")
	}

	if err := s.repo.DeductCreditInTx(ctx, tx, *trip.DriverID, tripID); err != nil {
		return apperr.NewInternal("failed to deduct driver credit", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.NewInternal("failed to commit settlement", err)
	}

	s.publish(ctx, eventbus.SubjectSettlementCompleted, tripID, *trip.DriverID, fare, commission, driverEarnings)
	return nil
}

// WalletBalance is the read path behind GET /wallet/balance — the only
// authoritative source, computed fresh every call.
func (s *Service) WalletBalance(ctx context.Context, userID uuid.UUID) (float64, error) {
	balance, err := s.repo.WalletBalance(ctx, nil, userID)
	if err != nil {
		return 0, apperr.NewInternal("failed to compute wallet balance", err)
	}
	return balance, nil
}

// RequestPayout creates a PENDING_MANUAL_REVIEW payout for a driver's
// accrued earnings. idempotencyKey is caller-supplied (e.g. from an
// Idempotency-Key header) so a retried request returns the original
// payout instead of creating a duplicate.
func (s *Service) RequestPayout(ctx context.Context, driverID uuid.UUID, amount float64, idempotencyKey string) (*models.Payout, error) {
	if existing, err := s.repo.GetPayoutByIdempotencyKey(ctx, idempotencyKey); err != nil {
		return nil, apperr.NewInternal("failed to check payout idempotency", err)
	} else if existing != nil {
		return existing, nil
	}

	if amount <= 0 {
		return nil, apperr.NewBadRequest("payout amount must be positive", nil)
	}

	return s.repo.CreatePayout(ctx, &models.Payout{
		DriverID:       driverID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	})
}

// ProcessPayout executes the Stripe transfer for a reviewed payout.
// Calling this twice with the same payout is safe: the second call
// observes the CAS to PROCESSING fail (or the row already COMPLETED)
// and returns the existing result without a second Stripe transfer —
// the idempotency key additionally protects against Stripe retrying
// the same transfer on its own.
func (s *Service) ProcessPayout(ctx context.Context, payoutID uuid.UUID, destinationAccountID string) (*models.Payout, error) {
	payout, err := s.repo.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, apperr.NewInternal("failed to load payout", err)
	}
	if payout == nil {
		return nil, apperr.NewNotFound("payout not found", nil)
	}
	if payout.Status == models.PayoutCompleted || payout.Status == models.PayoutFailed {
		return payout, nil
	}

	ok, err := s.repo.MarkPayoutProcessing(ctx, payoutID)
	if err != nil {
		return nil, apperr.NewInternal("failed to mark payout processing", err)
	}
	if !ok {
		return s.repo.GetPayout(ctx, payoutID)
	}

	if s.stripe == nil {
		_ = s.repo.MarkPayoutFailed(ctx, payoutID, "no payment provider configured")
		return nil, apperr.NewServiceUnavailable("payouts are not configured")
	}

	transferID, err := s.stripe.CreateTransfer(ctx, payout.IdempotencyKey, int64(payout.Amount*100), "usd", destinationAccountID, fmt.Sprintf("driver payout %s", payoutID))
	if err != nil {
		reason := err.Error()
		if markErr := s.repo.MarkPayoutFailed(ctx, payoutID, reason); markErr != nil {
			logger.WarnContext(ctx, "failed to record payout failure", zap.Error(markErr))
		}
		return nil, apperr.NewPaymentProviderError("driver payout transfer failed", err)
	}

	if err := s.repo.MarkPayoutCompleted(ctx, payoutID, transferID); err != nil {
		return nil, apperr.NewInternal("failed to record completed payout", err)
	}
	return s.repo.GetPayout(ctx, payoutID)
}

func (s *Service) publish(ctx context.Context, subject string, tripID, driverID uuid.UUID, fare, commission, driverEarnings float64) {
	if s.bus == nil {
		return
	}
	event, err := eventbus.NewEvent(subject, "settlement", map[string]interface{}{
		"trip_id":         tripID,
		"driver_id":       driverID,
		"fare":            fare,
		"commission":      commission,
		"driver_earnings": driverEarnings,
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to build settlement event", zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, subject, event); err != nil {
		logger.WarnContext(ctx, "failed to publish settlement event", zap.String("subject", subject), zap.Error(err))
	}
}
