package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	dbTotal   float64
	inserted  *models.ReconciliationLog
	insertErr error
	driverIDs []uuid.UUID
}

func (f *fakeStore) DBTotal(ctx context.Context, start, end time.Time) (float64, error) {
	return f.dbTotal, nil
}

func (f *fakeStore) InsertLog(ctx context.Context, log *models.ReconciliationLog) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = log
	return nil
}

func (f *fakeStore) AllDriverIDs(ctx context.Context) ([]uuid.UUID, error) {
	return f.driverIDs, nil
}

type fakeProvider struct {
	cents int64
}

func (f *fakeProvider) AggregateTotal(ctx context.Context, startUnix, endUnix int64) (int64, error) {
	return f.cents, nil
}

type fakeAlerter struct {
	calls []string
}

func (f *fakeAlerter) RecordAlert(ctx context.Context, alertType, message string) error {
	f.calls = append(f.calls, alertType)
	return nil
}

func TestRunWindow_MatchingTotals_NoAlert(t *testing.T) {
	store := &fakeStore{dbTotal: 1000.00}
	provider := &fakeProvider{cents: 100000}
	alerter := &fakeAlerter{}
	svc := NewService(nil, provider, alerter, nil)
	svc.repo = store

	end := time.Now()
	start := end.Add(-24 * time.Hour)
	log, err := svc.RunWindow(context.Background(), start, end)
	require.NoError(t, err)
	assert.InDelta(t, 0, log.Mismatch, 0.001)
	assert.Empty(t, alerter.calls)
}

func TestRunWindow_Mismatch_RaisesAlert(t *testing.T) {
	store := &fakeStore{dbTotal: 1000.00}
	provider := &fakeProvider{cents: 99000} // $990.00, $10 off
	alerter := &fakeAlerter{}
	svc := NewService(nil, provider, alerter, nil)
	svc.repo = store

	end := time.Now()
	start := end.Add(-24 * time.Hour)
	log, err := svc.RunWindow(context.Background(), start, end)
	require.NoError(t, err)
	assert.InDelta(t, 10.00, log.Mismatch, 0.001)
	require.Len(t, alerter.calls, 1)
	assert.Equal(t, "RECONCILIATION_MISMATCH", alerter.calls[0])
}

func TestRunWindow_SubCentMismatch_NoAlert(t *testing.T) {
	store := &fakeStore{dbTotal: 999.995}
	provider := &fakeProvider{cents: 99999} // $999.99, half-cent off
	alerter := &fakeAlerter{}
	svc := NewService(nil, provider, alerter, nil)
	svc.repo = store

	end := time.Now()
	start := end.Add(-24 * time.Hour)
	_, err := svc.RunWindow(context.Background(), start, end)
	require.NoError(t, err)
	assert.Empty(t, alerter.calls, "a sub-cent float rounding difference must not page anyone")
}

func TestRunWindow_NoProviderConfigured_StillPersistsAndAlerts(t *testing.T) {
	store := &fakeStore{dbTotal: 500.00}
	alerter := &fakeAlerter{}
	svc := NewService(nil, nil, alerter, nil)
	svc.repo = store

	end := time.Now()
	start := end.Add(-24 * time.Hour)
	log, err := svc.RunWindow(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, 0.0, log.ProviderTotal)
	assert.Equal(t, 500.00, log.Mismatch)
	require.NotNil(t, store.inserted)
}

type fakeLedger struct {
	balances map[uuid.UUID]int
	sums     map[uuid.UUID]int
	errFor   map[uuid.UUID]error
}

func (f *fakeLedger) VerifyLedgerInvariant(ctx context.Context, driverID uuid.UUID) (int, int, bool, error) {
	if err := f.errFor[driverID]; err != nil {
		return 0, 0, false, err
	}
	balance := f.balances[driverID]
	sum := f.sums[driverID]
	return balance, sum, balance == sum, nil
}

func TestVerifyDriverLedgers_AllBalanced_NoAlert(t *testing.T) {
	d1, d2 := uuid.New(), uuid.New()
	store := &fakeStore{driverIDs: []uuid.UUID{d1, d2}}
	alerter := &fakeAlerter{}
	ledger := &fakeLedger{
		balances: map[uuid.UUID]int{d1: 10, d2: 0},
		sums:     map[uuid.UUID]int{d1: 10, d2: 0},
	}
	svc := NewService(nil, nil, alerter, ledger)
	svc.repo = store

	checked, mismatched, err := svc.VerifyDriverLedgers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	assert.Zero(t, mismatched)
	assert.Empty(t, alerter.calls)
}

func TestVerifyDriverLedgers_DriftRaisesAlertPerDriver(t *testing.T) {
	balanced, drifted := uuid.New(), uuid.New()
	store := &fakeStore{driverIDs: []uuid.UUID{balanced, drifted}}
	alerter := &fakeAlerter{}
	ledger := &fakeLedger{
		balances: map[uuid.UUID]int{balanced: 5, drifted: 7},
		sums:     map[uuid.UUID]int{balanced: 5, drifted: 4},
	}
	svc := NewService(nil, nil, alerter, ledger)
	svc.repo = store

	checked, mismatched, err := svc.VerifyDriverLedgers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	assert.Equal(t, 1, mismatched)
	require.Len(t, alerter.calls, 1)
	assert.Equal(t, "CREDIT_LEDGER_DRIFT", alerter.calls[0])
}

func TestVerifyDriverLedgers_OneFailureDoesNotStopTheSweep(t *testing.T) {
	failing, healthy := uuid.New(), uuid.New()
	store := &fakeStore{driverIDs: []uuid.UUID{failing, healthy}}
	alerter := &fakeAlerter{}
	ledger := &fakeLedger{
		balances: map[uuid.UUID]int{healthy: 3},
		sums:     map[uuid.UUID]int{healthy: 3},
		errFor:   map[uuid.UUID]error{failing: errors.New("driver row locked")},
	}
	svc := NewService(nil, nil, alerter, ledger)
	svc.repo = store

	checked, mismatched, err := svc.VerifyDriverLedgers(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, checked)
	assert.Zero(t, mismatched)
	assert.Empty(t, alerter.calls)
}

func TestVerifyDriverLedgers_NoVerifierConfiguredIsANoOp(t *testing.T) {
	store := &fakeStore{driverIDs: []uuid.UUID{uuid.New()}}
	svc := NewService(nil, nil, nil, nil)
	svc.repo = store

	checked, mismatched, err := svc.VerifyDriverLedgers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, checked)
	assert.Zero(t, mismatched)
}
