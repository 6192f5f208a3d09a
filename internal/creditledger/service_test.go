package creditledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	drivers    map[uuid.UUID]*models.Driver
	requests   map[uuid.UUID]*models.CreditPurchaseRequest
	ledgerSums map[uuid.UUID]int
	adjustErr  error
	lastAdjust int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		drivers:    map[uuid.UUID]*models.Driver{},
		requests:   map[uuid.UUID]*models.CreditPurchaseRequest{},
		ledgerSums: map[uuid.UUID]int{},
	}
}

func (f *fakeStore) GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	return f.drivers[id], nil
}

func (f *fakeStore) CreatePurchaseRequest(ctx context.Context, req *models.CreditPurchaseRequest) (*models.CreditPurchaseRequest, error) {
	req.ID = uuid.New()
	req.Status = models.CreditPurchasePending
	f.requests[req.ID] = req
	return req, nil
}

func (f *fakeStore) GetPurchaseRequest(ctx context.Context, id uuid.UUID) (*models.CreditPurchaseRequest, error) {
	return f.requests[id], nil
}

func (f *fakeStore) ApprovePurchaseRequest(ctx context.Context, requestID, reviewerID uuid.UUID) (bool, error) {
	req := f.requests[requestID]
	if req == nil || req.Status != models.CreditPurchasePending {
		return false, nil
	}
	req.Status = models.CreditPurchaseApproved
	req.ReviewedBy = &reviewerID
	if d := f.drivers[req.DriverID]; d != nil {
		d.CreditBalance += req.Credits
	}
	f.ledgerSums[req.DriverID] += req.Credits
	return true, nil
}

func (f *fakeStore) RejectPurchaseRequest(ctx context.Context, requestID, reviewerID uuid.UUID, reason string) (bool, error) {
	req := f.requests[requestID]
	if req == nil || req.Status != models.CreditPurchasePending {
		return false, nil
	}
	req.Status = models.CreditPurchaseRejected
	req.ReviewedBy = &reviewerID
	req.RejectReason = &reason
	return true, nil
}

func (f *fakeStore) LedgerSum(ctx context.Context, driverID uuid.UUID) (int, error) {
	return f.ledgerSums[driverID], nil
}

func (f *fakeStore) DeductAdmin(ctx context.Context, driverID uuid.UUID, credits int, reason string) error {
	if f.adjustErr != nil {
		return f.adjustErr
	}
	f.lastAdjust = -credits
	if d := f.drivers[driverID]; d != nil {
		d.CreditBalance -= credits
	}
	f.ledgerSums[driverID] -= credits
	return nil
}

func TestApprovePurchase_GrantsCreditsOnce(t *testing.T) {
	fake := newFakeStore()
	driverID := uuid.New()
	fake.drivers[driverID] = &models.Driver{ID: driverID}
	svc := &Service{repo: fake}

	req, err := svc.RequestPurchase(context.Background(), driverID, 10, 1, 50.0)
	require.NoError(t, err)
	require.Equal(t, models.CreditPurchasePending, req.Status)

	reviewer := uuid.New()
	err = svc.ApprovePurchase(context.Background(), req.ID, reviewer)
	require.NoError(t, err)
	assert.Equal(t, 10, fake.drivers[driverID].CreditBalance)

	// A second approval of the same request is a Conflict — the request
	// already left PENDING.
	err = svc.ApprovePurchase(context.Background(), req.ID, reviewer)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeConflict, appErr.ErrorCode)
	assert.Equal(t, 10, fake.drivers[driverID].CreditBalance, "rejected re-approval must not double-grant")
}

func TestRejectPurchase_NeverTouchesBalance(t *testing.T) {
	fake := newFakeStore()
	driverID := uuid.New()
	fake.drivers[driverID] = &models.Driver{ID: driverID, CreditBalance: 5}
	svc := &Service{repo: fake}

	req, err := svc.RequestPurchase(context.Background(), driverID, 10, 1, 50.0)
	require.NoError(t, err)

	err = svc.RejectPurchase(context.Background(), req.ID, uuid.New(), "fraud suspected")
	require.NoError(t, err)
	assert.Equal(t, models.CreditPurchaseRejected, fake.requests[req.ID].Status)
	assert.Equal(t, 5, fake.drivers[driverID].CreditBalance)
}

func TestVerifyLedgerInvariant_DetectsMismatch(t *testing.T) {
	fake := newFakeStore()
	driverID := uuid.New()
	fake.drivers[driverID] = &models.Driver{ID: driverID, CreditBalance: 7}
	fake.ledgerSums[driverID] = 5
	svc := &Service{repo: fake}

	balance, sum, match, err := svc.VerifyLedgerInvariant(context.Background(), driverID)
	require.NoError(t, err)
	assert.Equal(t, 7, balance)
	assert.Equal(t, 5, sum)
	assert.False(t, match)
}

func TestAdminAdjust_PositiveDeltaGrantsCredits(t *testing.T) {
	fake := newFakeStore()
	driverID := uuid.New()
	fake.drivers[driverID] = &models.Driver{ID: driverID, CreditBalance: 3}
	svc := &Service{repo: fake}

	err := svc.AdminAdjust(context.Background(), driverID, 4, "goodwill credit")
	require.NoError(t, err)
	assert.Equal(t, 7, fake.drivers[driverID].CreditBalance)
}
