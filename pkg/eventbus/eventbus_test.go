package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// NewEvent
// ---------------------------------------------------------------------------

func TestNewEvent_Success(t *testing.T) {
	data := map[string]string{"trip_id": "abc"}

	event, err := NewEvent("trips.requested", "dispatch-core", data)
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, "trips.requested", event.Type)
	assert.Equal(t, "dispatch-core", event.Source)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())

	_, err = uuid.Parse(event.ID)
	assert.NoError(t, err)

	var decoded map[string]string
	err = json.Unmarshal(event.Data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "abc", decoded["trip_id"])
}

func TestNewEvent_NilData(t *testing.T) {
	event, err := NewEvent("test.event", "test-source", nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("null"), event.Data)
}

func TestNewEvent_ComplexData(t *testing.T) {
	data := TripRequestedData{
		TripID:      uuid.New(),
		RiderID:     uuid.New(),
		PickupLat:   40.7128,
		PickupLng:   -74.0060,
		DropoffLat:  40.7580,
		DropoffLng:  -73.9855,
		ServiceType: "economy",
		RequestedAt: time.Now(),
	}

	event, err := NewEvent(SubjectTripRequested, "dispatch-core", data)
	require.NoError(t, err)

	var decoded TripRequestedData
	err = json.Unmarshal(event.Data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, data.TripID, decoded.TripID)
	assert.Equal(t, data.RiderID, decoded.RiderID)
	assert.Equal(t, data.PickupLat, decoded.PickupLat)
	assert.Equal(t, data.ServiceType, decoded.ServiceType)
}

func TestNewEvent_UnmarshalableData(t *testing.T) {
	event, err := NewEvent("test", "src", make(chan int))
	assert.Error(t, err)
	assert.Nil(t, event)
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		event, err := NewEvent("test", "src", nil)
		require.NoError(t, err)
		assert.False(t, ids[event.ID], "duplicate event ID generated")
		ids[event.ID] = true
	}
}

func TestNewEvent_TimestampIsUTC(t *testing.T) {
	event, err := NewEvent("test", "src", nil)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, event.Timestamp.Location())
}

// ---------------------------------------------------------------------------
// Event JSON serialization round-trip
// ---------------------------------------------------------------------------

func TestEvent_JSONRoundTrip(t *testing.T) {
	original, err := NewEvent("trips.completed", "dispatch-core", map[string]int{"fare": 25})
	require.NoError(t, err)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Event
	err = json.Unmarshal(data, &restored)
	require.NoError(t, err)

	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.Type, restored.Type)
	assert.Equal(t, original.Source, restored.Source)
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

// ---------------------------------------------------------------------------
// Subject constants
// ---------------------------------------------------------------------------

func TestSubjectConstants(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		expected string
	}{
		{"TripRequested", SubjectTripRequested, "trips.requested"},
		{"TripAccepted", SubjectTripAccepted, "trips.accepted"},
		{"TripArrived", SubjectTripArrived, "trips.arrived"},
		{"TripStarted", SubjectTripStarted, "trips.started"},
		{"TripCompleted", SubjectTripCompleted, "trips.completed"},
		{"TripCancelled", SubjectTripCancelled, "trips.cancelled"},
		{"OfferCreated", SubjectOfferCreated, "offers.created"},
		{"OfferExpired", SubjectOfferExpired, "offers.expired"},
		{"SettlementCompleted", SubjectSettlementCompleted, "settlements.completed"},
		{"SettlementFailed", SubjectSettlementFailed, "settlements.failed"},
		{"DriverLocationUpdated", SubjectDriverLocationUpdated, "drivers.location.updated"},
		{"DriverOnline", SubjectDriverOnline, "drivers.online"},
		{"DriverOffline", SubjectDriverOffline, "drivers.offline"},
		{"DriverFlagged", SubjectDriverFlagged, "drivers.flagged"},
		{"SOSTriggered", SubjectSOSTriggered, "safety.sos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.subject)
		})
	}
}

// ---------------------------------------------------------------------------
// DefaultConfig
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, "dispatch-core", cfg.Name)
	assert.Equal(t, "DISPATCH", cfg.StreamName)
}

// ---------------------------------------------------------------------------
// Config struct
// ---------------------------------------------------------------------------

func TestConfig_Fields(t *testing.T) {
	cfg := Config{
		URL:        "nats://custom:4222",
		Name:       "my-service",
		StreamName: "MYSTREAM",
	}

	assert.Equal(t, "nats://custom:4222", cfg.URL)
	assert.Equal(t, "my-service", cfg.Name)
	assert.Equal(t, "MYSTREAM", cfg.StreamName)
}

// ---------------------------------------------------------------------------
// HandlerFunc type
// ---------------------------------------------------------------------------

func TestHandlerFunc_Invocation(t *testing.T) {
	var called bool
	var receivedEvent *Event

	handler := HandlerFunc(func(ctx context.Context, event *Event) error {
		called = true
		receivedEvent = event
		return nil
	})

	event, _ := NewEvent("test.event", "test", map[string]string{"key": "value"})
	err := handler(context.Background(), event)

	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, event.ID, receivedEvent.ID)
}

func TestHandlerFunc_ReturnsError(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, event *Event) error {
		return assert.AnError
	})

	event, _ := NewEvent("test", "src", nil)
	err := handler(context.Background(), event)

	assert.ErrorIs(t, err, assert.AnError)
}

// ---------------------------------------------------------------------------
// Event data types – serialization
// ---------------------------------------------------------------------------

func TestTripRequestedData_Serialization(t *testing.T) {
	scheduledFor := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	data := TripRequestedData{
		TripID:       uuid.New(),
		RiderID:      uuid.New(),
		PickupLat:    37.7749,
		PickupLng:    -122.4194,
		DropoffLat:   37.3382,
		DropoffLng:   -121.8863,
		ServiceType:  "premium",
		ScheduledFor: &scheduledFor,
		RequestedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded TripRequestedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.TripID, decoded.TripID)
	assert.Equal(t, data.RiderID, decoded.RiderID)
	assert.Equal(t, data.PickupLat, decoded.PickupLat)
	assert.Equal(t, data.PickupLng, decoded.PickupLng)
	assert.Equal(t, data.ServiceType, decoded.ServiceType)
	require.NotNil(t, decoded.ScheduledFor)
	assert.Equal(t, scheduledFor, *decoded.ScheduledFor)
}

func TestTripAcceptedData_Serialization(t *testing.T) {
	data := TripAcceptedData{
		TripID:     uuid.New(),
		RiderID:    uuid.New(),
		DriverID:   uuid.New(),
		AcceptedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded TripAcceptedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.TripID, decoded.TripID)
	assert.Equal(t, data.DriverID, decoded.DriverID)
}

func TestTripCompletedData_Serialization(t *testing.T) {
	data := TripCompletedData{
		TripID:      uuid.New(),
		RiderID:     uuid.New(),
		DriverID:    uuid.New(),
		FareAmount:  25.50,
		DistanceKm:  12.3,
		DurationMin: 18.5,
		CompletedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded TripCompletedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.FareAmount, decoded.FareAmount)
	assert.Equal(t, data.DistanceKm, decoded.DistanceKm)
	assert.Equal(t, data.DurationMin, decoded.DurationMin)
}

func TestTripCancelledData_Serialization(t *testing.T) {
	driverID := uuid.New()
	data := TripCancelledData{
		TripID:      uuid.New(),
		RiderID:     uuid.New(),
		DriverID:    &driverID,
		CancelledBy: "rider",
		Reason:      "changed mind",
		CancelledAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded TripCancelledData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.CancelledBy, decoded.CancelledBy)
	assert.Equal(t, data.Reason, decoded.Reason)
	require.NotNil(t, decoded.DriverID)
	assert.Equal(t, driverID, *decoded.DriverID)
}

func TestOfferCreatedData_Serialization(t *testing.T) {
	data := OfferCreatedData{
		OfferID:   uuid.New(),
		TripID:    uuid.New(),
		DriverID:  uuid.New(),
		ExpiresAt: time.Now().Add(30 * time.Second).UTC().Truncate(time.Millisecond),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded OfferCreatedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.OfferID, decoded.OfferID)
	assert.Equal(t, data.TripID, decoded.TripID)
}

func TestSettlementCompletedData_Serialization(t *testing.T) {
	data := SettlementCompletedData{
		TripID:           uuid.New(),
		DriverID:         uuid.New(),
		FareAmount:       45.99,
		CommissionAmount: 9.20,
		DriverEarnings:   36.79,
		PaymentMethod:    "WALLET",
		SettledAt:        time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded SettlementCompletedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.FareAmount, decoded.FareAmount)
	assert.Equal(t, data.CommissionAmount, decoded.CommissionAmount)
	assert.Equal(t, data.DriverEarnings, decoded.DriverEarnings)
}

func TestSettlementFailedData_Serialization(t *testing.T) {
	data := SettlementFailedData{
		TripID:   uuid.New(),
		DriverID: uuid.New(),
		Reason:   "insufficient wallet balance",
		FailedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded SettlementFailedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.Reason, decoded.Reason)
}

func TestDriverLocationUpdatedData_Serialization(t *testing.T) {
	data := DriverLocationUpdatedData{
		DriverID:  uuid.New(),
		Latitude:  37.7749,
		Longitude: -122.4194,
		Bearing:   90.0,
		GeoHash:   "9q8yyk",
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded DriverLocationUpdatedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.GeoHash, decoded.GeoHash)
	assert.Equal(t, data.Bearing, decoded.Bearing)
}

func TestDriverFlaggedData_Serialization(t *testing.T) {
	data := DriverFlaggedData{
		DriverID:     uuid.New(),
		Reason:       "teleport",
		AnomalyCount: 2,
		FlaggedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded DriverFlaggedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.Reason, decoded.Reason)
	assert.Equal(t, data.AnomalyCount, decoded.AnomalyCount)
}

func TestSOSTriggeredData_Serialization(t *testing.T) {
	data := SOSTriggeredData{
		TripID:      uuid.New(),
		TriggeredBy: uuid.New(),
		Role:        "rider",
		Latitude:    40.7128,
		Longitude:   -74.0060,
		TriggeredAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded SOSTriggeredData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.Role, decoded.Role)
	assert.Equal(t, data.TripID, decoded.TripID)
}

// ---------------------------------------------------------------------------
// NewEvent with each event data type – integration
// ---------------------------------------------------------------------------

func TestNewEvent_WithTripStartedData(t *testing.T) {
	data := TripStartedData{
		TripID:    uuid.New(),
		RiderID:   uuid.New(),
		DriverID:  uuid.New(),
		StartedAt: time.Now().UTC(),
	}

	event, err := NewEvent(SubjectTripStarted, "dispatch-core", data)
	require.NoError(t, err)
	assert.Equal(t, SubjectTripStarted, event.Type)

	var decoded TripStartedData
	err = json.Unmarshal(event.Data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, data.TripID, decoded.TripID)
}

// ---------------------------------------------------------------------------
// Bus struct – nil-safety of Connected()
// ---------------------------------------------------------------------------

func TestBus_Connected_NilConn(t *testing.T) {
	bus := &Bus{}
	assert.False(t, bus.Connected())
}

// ---------------------------------------------------------------------------
// Bus struct – Close with empty subs
// ---------------------------------------------------------------------------

func TestBus_Close_NoSubs(t *testing.T) {
	bus := &Bus{}
	bus.Close()
}

// ---------------------------------------------------------------------------
// Event struct – zero value
// ---------------------------------------------------------------------------

func TestEvent_ZeroValue(t *testing.T) {
	var event Event
	assert.Empty(t, event.ID)
	assert.Empty(t, event.Type)
	assert.Empty(t, event.Source)
	assert.True(t, event.Timestamp.IsZero())
	assert.Nil(t, event.Data)
}
