package creditledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// store is the persistence surface Service needs, narrowed from
// *Repository so tests can substitute a fake.
type store interface {
	GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error)
	CreatePurchaseRequest(ctx context.Context, req *models.CreditPurchaseRequest) (*models.CreditPurchaseRequest, error)
	GetPurchaseRequest(ctx context.Context, id uuid.UUID) (*models.CreditPurchaseRequest, error)
	ApprovePurchaseRequest(ctx context.Context, requestID, reviewerID uuid.UUID) (bool, error)
	RejectPurchaseRequest(ctx context.Context, requestID, reviewerID uuid.UUID, reason string) (bool, error)
	LedgerSum(ctx context.Context, driverID uuid.UUID) (int, error)
	DeductAdmin(ctx context.Context, driverID uuid.UUID, credits int, reason string) error
}

// Service implements the driver credit ledger's admin-facing
// purchase-approval workflow. Per-trip deduction happens inline in
// internal/settlement's transaction via Repository.DeductOneInTx and
// never passes through this Service.
type Service struct {
	repo store
}

// NewService wires a creditledger Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// RequestPurchase opens a PENDING CreditPurchaseRequest for a driver to
// buy a credits/months package; amountCharged is the quoted price the
// admin review will reconcile against the eventual Stripe charge.
func (s *Service) RequestPurchase(ctx context.Context, driverID uuid.UUID, credits, months int, amountCharged float64) (*models.CreditPurchaseRequest, error) {
	if credits <= 0 || months <= 0 {
		return nil, apperr.NewBadRequest("credits and months must be positive", nil)
	}
	driver, err := s.repo.GetDriver(ctx, driverID)
	if err != nil {
		return nil, apperr.NewInternal("failed to load driver", err)
	}
	if driver == nil {
		return nil, apperr.NewNotFound("driver not found", nil)
	}
	req, err := s.repo.CreatePurchaseRequest(ctx, &models.CreditPurchaseRequest{
		DriverID:      driverID,
		Credits:       credits,
		Months:        months,
		AmountCharged: amountCharged,
	})
	if err != nil {
		return nil, apperr.NewInternal("failed to create purchase request", err)
	}
	return req, nil
}

// GetPurchase loads a purchase request by ID.
func (s *Service) GetPurchase(ctx context.Context, id uuid.UUID) (*models.CreditPurchaseRequest, error) {
	req, err := s.repo.GetPurchaseRequest(ctx, id)
	if err != nil {
		return nil, apperr.NewInternal("failed to load purchase request", err)
	}
	if req == nil {
		return nil, apperr.NewNotFound("purchase request not found", nil)
	}
	return req, nil
}

// ApprovePurchase is the admin-reviewed grant path: within one ACID
// transaction it CAS-moves the request to APPROVED, credits the
// driver's balance, and extends credit_expires_at by months·30d. A
// request that is no longer PENDING (already approved or rejected by
// someone else) fails with Conflict rather than silently double-granting.
func (s *Service) ApprovePurchase(ctx context.Context, requestID, reviewerID uuid.UUID) error {
	ok, err := s.repo.ApprovePurchaseRequest(ctx, requestID, reviewerID)
	if err != nil {
		return apperr.NewInternal("failed to approve purchase request", err)
	}
	if !ok {
		return apperr.NewConflict("purchase request was already reviewed")
	}
	return nil
}

// RejectPurchase is the admin reject path; it only updates the request
// row, never touching credit_balance.
func (s *Service) RejectPurchase(ctx context.Context, requestID, reviewerID uuid.UUID, reason string) error {
	if reason == "" {
		return apperr.NewBadRequest("reject reason is required", nil)
	}
	ok, err := s.repo.RejectPurchaseRequest(ctx, requestID, reviewerID, reason)
	if err != nil {
		return apperr.NewInternal("failed to reject purchase request", err)
	}
	if !ok {
		return apperr.NewConflict("purchase request was already reviewed")
	}
	return nil
}

// AdminAdjust applies a signed admin-initiated credit delta (positive
// grant or negative deduction) outside the purchase-approval flow, e.g.
// a goodwill credit or a manual correction.
func (s *Service) AdminAdjust(ctx context.Context, driverID uuid.UUID, delta int, reason string) error {
	if delta == 0 {
		return apperr.NewBadRequest("delta must be non-zero", nil)
	}
	if reason == "" {
		return apperr.NewBadRequest("reason is required", nil)
	}
	if err := s.repo.DeductAdmin(ctx, driverID, -delta, reason); err != nil {
		return apperr.NewInternal("failed to apply credit adjustment", err)
	}
	return nil
}

// VerifyLedgerInvariant checks Driver.creditBalance == Σ(ledger.creditsDelta)
// for one driver, the per-driver half of the reconciliation sweep.
func (s *Service) VerifyLedgerInvariant(ctx context.Context, driverID uuid.UUID) (balance, ledgerSum int, match bool, err error) {
	driver, err := s.repo.GetDriver(ctx, driverID)
	if err != nil {
		return 0, 0, false, apperr.NewInternal("failed to load driver", err)
	}
	if driver == nil {
		return 0, 0, false, apperr.NewNotFound("driver not found", nil)
	}
	sum, err := s.repo.LedgerSum(ctx, driverID)
	if err != nil {
		return 0, 0, false, apperr.NewInternal("failed to sum credit ledger", err)
	}
	return driver.CreditBalance, sum, driver.CreditBalance == sum, nil
}
