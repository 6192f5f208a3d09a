package spatial

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/internal/geohash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOffers struct {
	acceptErr error
	accepted  []uuid.UUID
}

func (f *fakeOffers) AcceptOfferForTrip(ctx context.Context, tripID, driverID uuid.UUID) error {
	if f.acceptErr != nil {
		return f.acceptErr
	}
	f.accepted = append(f.accepted, tripID)
	return nil
}

func (f *fakeOffers) RejectOfferForTrip(ctx context.Context, tripID, driverID uuid.UUID) error {
	return nil
}

type fakeLocations struct {
	result *LocationResult
	calls  int
}

func (f *fakeLocations) UpdateDriverLocation(ctx context.Context, driverID uuid.UUID, lat, lng, bearing float64) (*LocationResult, error) {
	f.calls++
	return f.result, nil
}

func driverClient(hub *Hub) *Client {
	driverID := uuid.New()
	c := newTestClient(uuid.New(), "driver", hub)
	c.DriverID = &driverID
	hub.Join(c, DriverRoom(driverID))
	return c
}

func TestConnectLocation_JoinsGeoRoom(t *testing.T) {
	hub := NewHub(nil)
	BindHandlers(hub, Bindings{})
	rider := newTestClient(uuid.New(), "rider", hub)

	hub.handleClientMessage(rider, &ClientMessage{
		Event: "connect:location",
		Data:  map[string]interface{}{"lat": 40.7130, "lng": -74.0062},
	})

	hash := geohash.Encode(40.7130, -74.0062, geohash.DefaultPrecision)
	assert.Equal(t, hash, rider.geoHash())
	assert.Equal(t, 1, hub.RoomSize(GeoRoom(hash)))
}

func TestConnectLocation_RejectsOutOfRangeCoordinates(t *testing.T) {
	hub := NewHub(nil)
	BindHandlers(hub, Bindings{})
	rider := newTestClient(uuid.New(), "rider", hub)

	hub.handleClientMessage(rider, &ClientMessage{
		Event: "connect:location",
		Data:  map[string]interface{}{"lat": 95.0, "lng": -74.0062},
	})

	assert.Empty(t, rider.geoHash())
}

func TestOfferAccept_LostRaceEmitsOfferError(t *testing.T) {
	hub := NewHub(nil)
	offers := &fakeOffers{acceptErr: errors.New("Offer expired or already accepted")}
	BindHandlers(hub, Bindings{Offers: offers})
	driver := driverClient(hub)

	hub.handleClientMessage(driver, &ClientMessage{
		Event: "offer:accept",
		Data:  map[string]interface{}{"tripId": uuid.NewString()},
	})

	select {
	case msg := <-driver.Send:
		assert.Equal(t, "offer:error", msg.Event)
		data := msg.Data.(map[string]interface{})
		assert.Equal(t, "Offer expired or already accepted", data["message"])
	default:
		t.Fatal("expected offer:error delivered to the losing driver")
	}
}

func TestOfferAccept_IgnoredFromRiderSocket(t *testing.T) {
	hub := NewHub(nil)
	offers := &fakeOffers{}
	BindHandlers(hub, Bindings{Offers: offers})
	rider := newTestClient(uuid.New(), "rider", hub)
	hub.Join(rider, UserRoom(rider.EntityID))

	hub.handleClientMessage(rider, &ClientMessage{
		Event: "offer:accept",
		Data:  map[string]interface{}{"tripId": uuid.NewString()},
	})

	assert.Empty(t, offers.accepted)
}

func TestDriverLocation_FlaggedFixNotifiesDriver(t *testing.T) {
	hub := NewHub(nil)
	locations := &fakeLocations{result: &LocationResult{Flagged: true, AnomalyCount: 2}}
	BindHandlers(hub, Bindings{Locations: locations})
	driver := driverClient(hub)

	hub.handleClientMessage(driver, &ClientMessage{
		Event: "driver:location",
		Data:  map[string]interface{}{"lat": 40.7128, "lng": -74.0060, "bearing": 45.0},
	})

	require.Equal(t, 1, locations.calls)
	select {
	case msg := <-driver.Send:
		assert.Equal(t, "driver:flagged", msg.Event)
		data := msg.Data.(map[string]interface{})
		assert.Equal(t, 2, data["anomaly_count"])
	default:
		t.Fatal("expected driver:flagged delivered to the driver")
	}
}

func TestDriverLocation_IgnoredWithoutDriverIdentity(t *testing.T) {
	hub := NewHub(nil)
	locations := &fakeLocations{result: &LocationResult{}}
	BindHandlers(hub, Bindings{Locations: locations})
	rider := newTestClient(uuid.New(), "rider", hub)

	hub.handleClientMessage(rider, &ClientMessage{
		Event: "driver:location",
		Data:  map[string]interface{}{"lat": 40.7128, "lng": -74.0060},
	})

	assert.Zero(t, locations.calls)
}
