package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	trip     *models.Trip
	offers   map[uuid.UUID]*models.TripOffer
	outcomes []bool
}

func newAcceptFixture() (*fakeStore, *models.TripOffer, uuid.UUID) {
	driverID := uuid.New()
	trip := &models.Trip{
		ID:        uuid.New(),
		RiderID:   uuid.New(),
		Status:    models.TripRequested,
		PickupLat: 34.5333,
		PickupLng: 69.1667,
	}
	offer := &models.TripOffer{
		ID:        uuid.New(),
		TripID:    trip.ID,
		DriverID:  driverID,
		Status:    models.OfferPending,
		ExpiresAt: time.Now().Add(30 * time.Second),
	}
	store := &fakeStore{
		trip:   trip,
		offers: map[uuid.UUID]*models.TripOffer{offer.ID: offer},
	}
	return store, offer, driverID
}

func (f *fakeStore) CreateTrip(ctx context.Context, t *models.Trip) (*models.Trip, error) {
	t.ID = uuid.New()
	f.trip = t
	return t, nil
}

func (f *fakeStore) GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trip == nil || f.trip.ID != id {
		return nil, nil
	}
	cp := *f.trip
	return &cp, nil
}

func (f *fakeStore) DueScheduledTrips(ctx context.Context, limit int) ([]*models.Trip, error) {
	return nil, nil
}

func (f *fakeStore) CancelTrip(ctx context.Context, tripID uuid.UUID, fromStatus models.TripStatus, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trip == nil || f.trip.Status != fromStatus {
		return false, nil
	}
	f.trip.Status = models.TripCancelled
	return true, nil
}

func (f *fakeStore) EligibleDrivers(ctx context.Context, driverIDs []uuid.UUID, tripID uuid.UUID) ([]eligibleDriver, error) {
	return nil, nil
}

func (f *fakeStore) CreateOffer(ctx context.Context, o *models.TripOffer) (*models.TripOffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.ID = uuid.New()
	o.Status = models.OfferPending
	f.offers[o.ID] = o
	return o, nil
}

func (f *fakeStore) GetOffer(ctx context.Context, id uuid.UUID) (*models.TripOffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.offers[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) PendingOfferForDriver(ctx context.Context, tripID, driverID uuid.UUID) (*models.TripOffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.offers {
		if o.TripID == tripID && o.DriverID == driverID && o.Status == models.OfferPending {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CountOffers(ctx context.Context, tripID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.offers {
		if o.TripID == tripID {
			n++
		}
	}
	return n, nil
}

// AcceptOffer mirrors the repository's CAS semantics: exactly one caller
// can move offer PENDING→ACCEPTED and trip REQUESTED→ACCEPTED.
func (f *fakeStore) AcceptOffer(ctx context.Context, offerID, tripID, driverID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.offers[offerID]
	if !ok || o.Status != models.OfferPending {
		return false, nil
	}
	if f.trip == nil || f.trip.ID != tripID || f.trip.Status != models.TripRequested {
		return false, nil
	}
	o.Status = models.OfferAccepted
	f.trip.Status = models.TripAccepted
	f.trip.DriverID = &driverID
	return true, nil
}

func (f *fakeStore) SettleOffer(ctx context.Context, offerID uuid.UUID, to models.OfferStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.offers[offerID]
	if !ok || o.Status != models.OfferPending {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (f *fakeStore) RecordOfferOutcome(ctx context.Context, driverID uuid.UUID, accepted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, accepted)
	return nil
}

func (f *fakeStore) SetLastAccepted(ctx context.Context, driverID uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeStore) GetDispatchConfig(ctx context.Context) (models.DispatchConfig, error) {
	return models.DefaultDispatchConfig(), nil
}

func (f *fakeStore) UserPhone(ctx context.Context, userID uuid.UUID) (string, error) {
	return "+15551234567", nil
}

func (f *fakeStore) DriverPhone(ctx context.Context, driverID uuid.UUID) (string, error) {
	return "+15557654321", nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *fakeBroadcaster) EmitToRoom(ctx context.Context, room, event string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, room+"|"+event)
	return nil
}

func TestAcceptOffer_FirstCallerWinsExclusively(t *testing.T) {
	store, offer, driverID := newAcceptFixture()
	broadcaster := &fakeBroadcaster{}
	svc := NewService(store, nil, nil, nil, nil)
	svc.SetBroadcaster(broadcaster)

	trip, err := svc.AcceptOffer(context.Background(), offer.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, models.TripAccepted, trip.Status)
	require.NotNil(t, trip.DriverID)
	assert.Equal(t, driverID, *trip.DriverID)

	// The same offer accepted again loses the CAS.
	_, err = svc.AcceptOffer(context.Background(), offer.ID, driverID)
	require.Error(t, err)
	appErr, ok := err.(*apperr.AppError)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeOfferExpired, appErr.ErrorCode)

	// Exactly one acceptance reached the rooms.
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	accepted := 0
	for _, e := range broadcaster.events {
		if e == "user:"+store.trip.RiderID.String()+"|trip:accepted" {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestAcceptOfferForTrip_NoPendingOfferIsExpired(t *testing.T) {
	store, offer, driverID := newAcceptFixture()
	svc := NewService(store, nil, nil, nil, nil)

	// A competing driver with no pending offer on this trip.
	_, err := svc.AcceptOfferForTrip(context.Background(), offer.TripID, uuid.New())
	require.Error(t, err)
	appErr, ok := err.(*apperr.AppError)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeOfferExpired, appErr.ErrorCode)

	// The real candidate still wins afterwards.
	trip, err := svc.AcceptOfferForTrip(context.Background(), offer.TripID, driverID)
	require.NoError(t, err)
	assert.Equal(t, models.TripAccepted, trip.Status)
}

func TestAcceptOffer_PastDeadlineRejected(t *testing.T) {
	store, offer, driverID := newAcceptFixture()
	store.offers[offer.ID].ExpiresAt = time.Now().Add(-time.Second)
	svc := NewService(store, nil, nil, nil, nil)

	_, err := svc.AcceptOffer(context.Background(), offer.ID, driverID)
	require.Error(t, err)
	assert.Equal(t, models.TripRequested, store.trip.Status)
}

func TestAcceptOffer_WrongDriverForbidden(t *testing.T) {
	store, offer, _ := newAcceptFixture()
	svc := NewService(store, nil, nil, nil, nil)

	_, err := svc.AcceptOffer(context.Background(), offer.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, models.TripRequested, store.trip.Status)
}

// noDriversLocator finds nobody nearby, so the re-dispatch that
// RejectOffer starts in the background ends without another offer.
type noDriversLocator struct{}

func (noDriversLocator) FindNearbyDrivers(ctx context.Context, lat, lng float64, maxDrivers int) ([]uuid.UUID, error) {
	return nil, nil
}

func TestRejectOffer_SettlesAndRecordsOutcome(t *testing.T) {
	store, offer, driverID := newAcceptFixture()
	svc := NewService(store, noDriversLocator{}, nil, nil, nil)

	err := svc.RejectOffer(context.Background(), offer.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferRejected, store.offers[offer.ID].Status)
	assert.Equal(t, []bool{false}, store.outcomes)
}

func TestAcceptOffer_ConcurrentCallersOnlyOneWins(t *testing.T) {
	store, offer, driverID := newAcceptFixture()
	svc := NewService(store, nil, nil, nil, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AcceptOffer(context.Background(), offer.ID, driverID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, models.TripAccepted, store.trip.Status)
}
