package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx embeds the pgx.Tx interface so it only needs to implement the
// methods Service actually calls directly (Commit/Rollback); everything
// else is satisfied by the nil embedded interface and is never invoked
// because fakeStore never touches the tx it's handed.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeStore struct {
	trip             *models.Trip
	walletBalance    float64
	completeOK       bool
	completeErr      error
	deductErr        error
	insertedTxns     []*models.Transaction
	completedFare    float64
	completedComm    float64
	completedEarn    float64
	deductCalledWith uuid.UUID
	payouts          map[uuid.UUID]*models.Payout
	payoutsByKey     map[string]*models.Payout
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		completeOK:   true,
		payouts:      map[uuid.UUID]*models.Payout{},
		payoutsByKey: map[string]*models.Payout{},
	}
}

func (f *fakeStore) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

func (f *fakeStore) LoadTripForUpdate(ctx context.Context, tx pgx.Tx, tripID uuid.UUID) (*models.Trip, error) {
	return f.trip, nil
}

func (f *fakeStore) WalletBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (float64, error) {
	return f.walletBalance, nil
}

func (f *fakeStore) InsertTransactionInTx(ctx context.Context, tx pgx.Tx, txn *models.Transaction) error {
	txn.ID = uuid.New()
	f.insertedTxns = append(f.insertedTxns, txn)
	return nil
}

func (f *fakeStore) CompleteTripInTx(ctx context.Context, tx pgx.Tx, tripID uuid.UUID, fare, commission, driverEarnings float64) (bool, error) {
	f.completedFare, f.completedComm, f.completedEarn = fare, commission, driverEarnings
	return f.completeOK, f.completeErr
}

func (f *fakeStore) DeductCreditInTx(ctx context.Context, tx pgx.Tx, driverID, tripID uuid.UUID) error {
	f.deductCalledWith = driverID
	return f.deductErr
}

func (f *fakeStore) GetPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return f.payouts[id], nil
}

func (f *fakeStore) GetPayoutByIdempotencyKey(ctx context.Context, key string) (*models.Payout, error) {
	return f.payoutsByKey[key], nil
}

func (f *fakeStore) CreatePayout(ctx context.Context, p *models.Payout) (*models.Payout, error) {
	p.ID = uuid.New()
	p.Status = models.PayoutPendingReview
	f.payouts[p.ID] = p
	f.payoutsByKey[p.IdempotencyKey] = p
	return p, nil
}

func (f *fakeStore) MarkPayoutProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	p := f.payouts[id]
	if p == nil || p.Status != models.PayoutPendingReview {
		return false, nil
	}
	p.Status = models.PayoutProcessing
	return true, nil
}

func (f *fakeStore) MarkPayoutCompleted(ctx context.Context, id uuid.UUID, stripeTransferID string) error {
	p := f.payouts[id]
	p.Status = models.PayoutCompleted
	p.StripeTransferID = &stripeTransferID
	return nil
}

func (f *fakeStore) MarkPayoutFailed(ctx context.Context, id uuid.UUID, reason string) error {
	p := f.payouts[id]
	p.Status = models.PayoutFailed
	p.FailureReason = &reason
	return nil
}

type fakeStripe struct {
	transferID string
	err        error
	calls      int
}

func (f *fakeStripe) CreateTransfer(ctx context.Context, idempotencyKey string, amountCents int64, currency, destinationAccountID, description string) (string, error) {
	f.calls++
	return f.transferID, f.err
}

func newTestTrip(driverID uuid.UUID, status models.TripStatus, paymentMethod models.PaymentMethod, fare float64) *models.Trip {
	return &models.Trip{
		ID:            uuid.New(),
		RiderID:       uuid.New(),
		DriverID:      &driverID,
		Status:        status,
		Fare:          &fare,
		PaymentMethod: paymentMethod,
	}
}

func TestCompleteTrip_CashTrip_Success(t *testing.T) {
	driverID := uuid.New()
	trip := newTestTrip(driverID, models.TripInProgress, models.PaymentCash, 100.0)
	fake := newFakeStore()
	fake.trip = trip

	svc := &Service{repo: fake, cfg: Config{CommissionRate: 0.20}}
	err := svc.CompleteTrip(context.Background(), trip.ID)

	require.NoError(t, err)
	assert.Equal(t, 100.0, fake.completedFare)
	assert.Equal(t, 20.0, fake.completedComm)
	assert.Equal(t, 80.0, fake.completedEarn)
	assert.Equal(t, driverID, fake.deductCalledWith)
	assert.Empty(t, fake.insertedTxns, "cash trips never touch the wallet ledger")
}

func TestCompleteTrip_WalletTrip_DebitsBalance(t *testing.T) {
	driverID := uuid.New()
	trip := newTestTrip(driverID, models.TripInProgress, models.PaymentWallet, 50.0)
	fake := newFakeStore()
	fake.trip = trip
	fake.walletBalance = 200.0

	svc := &Service{repo: fake, cfg: Config{CommissionRate: 0.20}}
	err := svc.CompleteTrip(context.Background(), trip.ID)

	require.NoError(t, err)
	require.Len(t, fake.insertedTxns, 1)
	assert.Equal(t, models.TxDebit, fake.insertedTxns[0].Type)
	assert.Equal(t, 50.0, fake.insertedTxns[0].Amount)
}

func TestCompleteTrip_WalletTrip_InsufficientBalance(t *testing.T) {
	driverID := uuid.New()
	trip := newTestTrip(driverID, models.TripInProgress, models.PaymentWallet, 50.0)
	fake := newFakeStore()
	fake.trip = trip
	fake.walletBalance = 10.0

	svc := &Service{repo: fake, cfg: Config{CommissionRate: 0.20}}
	err := svc.CompleteTrip(context.Background(), trip.ID)

	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeInsufficientBalance, appErr.ErrorCode)
	assert.Empty(t, fake.insertedTxns)
}

func TestCompleteTrip_NotInProgress_Rejected(t *testing.T) {
	driverID := uuid.New()
	trip := newTestTrip(driverID, models.TripAccepted, models.PaymentCash, 50.0)
	fake := newFakeStore()
	fake.trip = trip

	svc := &Service{repo: fake, cfg: Config{CommissionRate: 0.20}}
	err := svc.CompleteTrip(context.Background(), trip.ID)

	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeInvalidStateTransition, appErr.ErrorCode)
}

func TestCompleteTrip_LostCASRace_ReturnsInvalidTransition(t *testing.T) {
	driverID := uuid.New()
	trip := newTestTrip(driverID, models.TripInProgress, models.PaymentCash, 50.0)
	fake := newFakeStore()
	fake.trip = trip
	fake.completeOK = false

	svc := &Service{repo: fake, cfg: Config{CommissionRate: 0.20}}
	err := svc.CompleteTrip(context.Background(), trip.ID)

	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeInvalidStateTransition, appErr.ErrorCode)
	assert.Equal(t, uuid.Nil, fake.deductCalledWith, "credit deduction never runs once the CAS is lost")
}

func TestProcessPayout_Idempotent_SecondCallSkipsTransfer(t *testing.T) {
	fake := newFakeStore()
	stripe := &fakeStripe{transferID: "tr_123"}
	svc := &Service{repo: fake, stripe: stripe, cfg: DefaultConfig()}

	driverID := uuid.New()
	payout, err := svc.RequestPayout(context.Background(), driverID, 75.0, "idem-key-1")
	require.NoError(t, err)

	first, err := svc.ProcessPayout(context.Background(), payout.ID, "acct_123")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutCompleted, first.Status)
	assert.Equal(t, 1, stripe.calls)

	second, err := svc.ProcessPayout(context.Background(), payout.ID, "acct_123")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutCompleted, second.Status)
	assert.Equal(t, 1, stripe.calls, "a payout already terminal is never retransferred")
}

func TestProcessPayout_TransferFails_MarksFailed(t *testing.T) {
	fake := newFakeStore()
	stripe := &fakeStripe{err: errors.New("card declined")}
	svc := &Service{repo: fake, stripe: stripe, cfg: DefaultConfig()}

	driverID := uuid.New()
	payout, err := svc.RequestPayout(context.Background(), driverID, 75.0, "idem-key-2")
	require.NoError(t, err)

	_, err = svc.ProcessPayout(context.Background(), payout.ID, "acct_123")
	require.Error(t, err)
	assert.Equal(t, models.PayoutFailed, fake.payouts[payout.ID].Status)
}

func TestRequestPayout_SameIdempotencyKeyReturnsExisting(t *testing.T) {
	fake := newFakeStore()
	svc := &Service{repo: fake, cfg: DefaultConfig()}
	driverID := uuid.New()

	first, err := svc.RequestPayout(context.Background(), driverID, 40.0, "dup-key")
	require.NoError(t, err)

	second, err := svc.RequestPayout(context.Background(), driverID, 40.0, "dup-key")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, fake.payouts, 1)
}
