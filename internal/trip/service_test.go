package trip

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
	trip          *models.Trip
	driverForUser map[uuid.UUID]uuid.UUID
	transitionOK  bool
	transitions   []models.TripStatus
	cancelReason  *string
	sosEvents     []*models.SOSEvent
	metricsFare   float64
}

func newFakeStore(trip *models.Trip) *fakeStore {
	return &fakeStore{
		trip:          trip,
		driverForUser: make(map[uuid.UUID]uuid.UUID),
		transitionOK:  true,
	}
}

func (f *fakeStore) GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	if f.trip == nil || f.trip.ID != id {
		return nil, nil
	}
	cp := *f.trip
	return &cp, nil
}

func (f *fakeStore) ActiveTripForDriver(ctx context.Context, driverID uuid.UUID) (*models.Trip, error) {
	if f.trip != nil && f.trip.DriverID != nil && *f.trip.DriverID == driverID && !models.IsTerminal(f.trip.Status) {
		cp := *f.trip
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) Transition(ctx context.Context, tripID uuid.UUID, from, to models.TripStatus, cancelReason *string) (bool, error) {
	if !f.transitionOK || f.trip == nil || f.trip.Status != from {
		return false, nil
	}
	f.trip.Status = to
	f.transitions = append(f.transitions, to)
	f.cancelReason = cancelReason
	return true, nil
}

func (f *fakeStore) DriverIDForUser(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	if id, ok := f.driverForUser[userID]; ok {
		return &id, nil
	}
	return nil, nil
}

func (f *fakeStore) SetTripMetrics(ctx context.Context, tripID uuid.UUID, fare, distanceKm float64, durationSec int) error {
	f.metricsFare = fare
	return nil
}

func (f *fakeStore) MarkPaymentCollected(ctx context.Context, tripID uuid.UUID) (bool, error) {
	return true, nil
}

func (f *fakeStore) InsertSOSEvent(ctx context.Context, e *models.SOSEvent) (*models.SOSEvent, error) {
	e.ID = uuid.New()
	f.sosEvents = append(f.sosEvents, e)
	return e, nil
}

func (f *fakeStore) ListSOSEvents(ctx context.Context, tripID uuid.UUID) ([]*models.SOSEvent, error) {
	return f.sosEvents, nil
}

func acceptedTrip(riderID, driverID uuid.UUID) *models.Trip {
	return &models.Trip{
		ID:       uuid.New(),
		RiderID:  riderID,
		DriverID: &driverID,
		Status:   models.TripAccepted,
	}
}

func TestTransition_RiderCannotComplete(t *testing.T) {
	riderID := uuid.New()
	store := newFakeStore(acceptedTrip(riderID, uuid.New()))
	svc := NewService(store, nil, nil, nil, nil)

	_, err := svc.Transition(context.Background(), Actor{UserID: riderID, Role: models.RoleRider}, store.trip.ID, models.TripCompleted, "")
	require.Error(t, err)
	assert.Equal(t, models.TripAccepted, store.trip.Status)
}

func TestTransition_IllegalEdgeIsRejected(t *testing.T) {
	riderID, driverUserID, driverID := uuid.New(), uuid.New(), uuid.New()
	store := newFakeStore(acceptedTrip(riderID, driverID))
	store.driverForUser[driverUserID] = driverID
	svc := NewService(store, nil, nil, nil, nil)

	// ACCEPTED -> IN_PROGRESS skips ARRIVED.
	_, err := svc.Transition(context.Background(), Actor{UserID: driverUserID, Role: models.RoleDriver}, store.trip.ID, models.TripInProgress, "")
	require.Error(t, err)
	appErr, ok := err.(*apperr.AppError)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeInvalidStateTransition, appErr.ErrorCode)
	assert.Equal(t, models.TripAccepted, store.trip.Status)
}

func TestTransition_DriverAdvancesOwnTrip(t *testing.T) {
	riderID, driverUserID, driverID := uuid.New(), uuid.New(), uuid.New()
	store := newFakeStore(acceptedTrip(riderID, driverID))
	store.driverForUser[driverUserID] = driverID
	svc := NewService(store, nil, nil, nil, nil)

	updated, err := svc.Transition(context.Background(), Actor{UserID: driverUserID, Role: models.RoleDriver}, store.trip.ID, models.TripArrived, "")
	require.NoError(t, err)
	assert.Equal(t, models.TripArrived, updated.Status)
}

func TestTransition_ForeignDriverIsForbidden(t *testing.T) {
	riderID, intruderUserID, intruderDriverID := uuid.New(), uuid.New(), uuid.New()
	store := newFakeStore(acceptedTrip(riderID, uuid.New()))
	store.driverForUser[intruderUserID] = intruderDriverID
	svc := NewService(store, nil, nil, nil, nil)

	_, err := svc.Transition(context.Background(), Actor{UserID: intruderUserID, Role: models.RoleDriver}, store.trip.ID, models.TripArrived, "")
	require.Error(t, err)
	assert.Equal(t, models.TripAccepted, store.trip.Status)
}

func TestTransition_RiderCancelsBeforeInProgress(t *testing.T) {
	riderID := uuid.New()
	store := newFakeStore(acceptedTrip(riderID, uuid.New()))
	svc := NewService(store, nil, nil, nil, nil)

	updated, err := svc.Transition(context.Background(), Actor{UserID: riderID, Role: models.RoleRider}, store.trip.ID, models.TripCancelled, "change of plans")
	require.NoError(t, err)
	assert.Equal(t, models.TripCancelled, updated.Status)
	require.NotNil(t, store.cancelReason)
	assert.Equal(t, "change of plans", *store.cancelReason)
}

func TestTransition_RiderCannotCancelInProgress(t *testing.T) {
	riderID := uuid.New()
	trip := acceptedTrip(riderID, uuid.New())
	trip.Status = models.TripInProgress
	store := newFakeStore(trip)
	svc := NewService(store, nil, nil, nil, nil)

	_, err := svc.Transition(context.Background(), Actor{UserID: riderID, Role: models.RoleRider}, trip.ID, models.TripCancelled, "")
	require.Error(t, err)
	assert.Equal(t, models.TripInProgress, store.trip.Status)
}

func TestTransition_AdminMayForceAnyValidEdge(t *testing.T) {
	trip := acceptedTrip(uuid.New(), uuid.New())
	store := newFakeStore(trip)
	svc := NewService(store, nil, nil, nil, nil)

	updated, err := svc.Transition(context.Background(), Actor{UserID: uuid.New(), Role: models.RoleAdmin}, trip.ID, models.TripCancelled, "fraud review")
	require.NoError(t, err)
	assert.Equal(t, models.TripCancelled, updated.Status)
}

func TestTransition_CASMissSurfacesConflict(t *testing.T) {
	trip := acceptedTrip(uuid.New(), uuid.New())
	store := newFakeStore(trip)
	store.transitionOK = false
	svc := NewService(store, nil, nil, nil, nil)

	_, err := svc.Transition(context.Background(), Actor{UserID: uuid.New(), Role: models.RoleAdmin}, trip.ID, models.TripCancelled, "")
	require.Error(t, err)
}

func TestSOS_RecordsAuditWithoutStatusChange(t *testing.T) {
	riderID := uuid.New()
	trip := acceptedTrip(riderID, uuid.New())
	store := newFakeStore(trip)
	svc := NewService(store, nil, nil, nil, nil)

	event, err := svc.SOS(context.Background(), Actor{UserID: riderID, Role: models.RoleRider}, trip.ID, 34.5333, 69.1667, "help")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, models.TripAccepted, store.trip.Status)
	assert.Len(t, store.sosEvents, 1)
}

func TestCompleteTrip_RequiresInProgress(t *testing.T) {
	riderID, driverUserID, driverID := uuid.New(), uuid.New(), uuid.New()
	trip := acceptedTrip(riderID, driverID)
	store := newFakeStore(trip)
	store.driverForUser[driverUserID] = driverID
	svc := NewService(store, nil, nil, nil, nil)

	_, err := svc.CompleteTrip(context.Background(), Actor{UserID: driverUserID, Role: models.RoleDriver}, trip.ID, 15, 4.2, 600)
	require.Error(t, err)
	assert.Equal(t, models.TripAccepted, store.trip.Status)
}
