package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name   string
		email  string
		expect bool
	}{
		{"valid email", "rider@example.com", true},
		{"valid with plus", "rider+tag@example.com", true},
		{"missing at", "riderexample.com", false},
		{"missing domain", "rider@", false},
		{"empty", "", false},
		{"whitespace only", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ValidateEmail(tt.email))
		})
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	tests := []struct {
		name   string
		phone  string
		expect bool
	}{
		{"valid E.164", "+15551234567", true},
		{"valid short country code", "+93701234567", true},
		{"missing plus", "15551234567", false},
		{"letters", "+1555abc4567", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ValidatePhoneNumber(tt.phone))
		})
	}
}

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name      string
		latitude  float64
		longitude float64
		wantErr   bool
	}{
		{"valid", 34.5333, 69.1667, false},
		{"boundary north pole", 90, 0, false},
		{"boundary date line", 0, -180, false},
		{"latitude too high", 90.1, 0, true},
		{"latitude too low", -90.1, 0, true},
		{"longitude too high", 0, 180.1, true},
		{"longitude too low", 0, -180.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCoordinates(tt.latitude, tt.longitude)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDistance(t *testing.T) {
	assert.NoError(t, ValidateDistance(0))
	assert.NoError(t, ValidateDistance(12.4))
	assert.NoError(t, ValidateDistance(1000))
	assert.Error(t, ValidateDistance(-0.1))
	assert.Error(t, ValidateDistance(1000.1))
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(0))
	assert.NoError(t, ValidateAmount(15.50))
	assert.NoError(t, ValidateAmount(100000))
	assert.Error(t, ValidateAmount(-1))
	assert.Error(t, ValidateAmount(100000.01))
}

func TestValidateStringLength(t *testing.T) {
	assert.NoError(t, ValidateStringLength("hello", 1, 10))
	assert.NoError(t, ValidateStringLength("  hi  ", 2, 2)) // trimmed
	assert.Error(t, ValidateStringLength("", 1, 10))
	assert.Error(t, ValidateStringLength("too long for the cap", 1, 5))
}

func TestValidateUUID(t *testing.T) {
	assert.True(t, ValidateUUID("550e8400-e29b-41d4-a716-446655440000"))
	assert.False(t, ValidateUUID("not-a-uuid"))
	assert.False(t, ValidateUUID(""))
	assert.False(t, ValidateUUID("550e8400e29b41d4a716446655440000"))
}

func TestValidationError_Error(t *testing.T) {
	verr := &ValidationError{}
	verr.AddError("phone", "phone is required")
	assert.Contains(t, verr.Error(), "phone")
	assert.True(t, verr.HasErrors())
}

func TestValidationError_AddError_NilMap(t *testing.T) {
	var verr ValidationError
	verr.AddError("code", "code must be 6 digits")
	assert.True(t, verr.HasErrors())
}

func TestValidateStruct_CreateTripRequest_Valid(t *testing.T) {
	req := CreateTripRequest{
		PickupLat:     34.5333,
		PickupLng:     69.1667,
		DropLat:       34.5500,
		DropLng:       69.2000,
		PaymentMethod: "WALLET",
	}
	assert.NoError(t, ValidateStruct(&req))
}

func TestValidateStruct_CreateTripRequest_BadPaymentMethod(t *testing.T) {
	req := CreateTripRequest{
		PickupLat:     34.5333,
		PickupLng:     69.1667,
		DropLat:       34.5500,
		DropLng:       69.2000,
		PaymentMethod: "CREDIT_CARD",
	}
	err := ValidateStruct(&req)
	require.Error(t, err)
	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Contains(t, verr.Errors, "payment_method")
}

func TestValidateStruct_CreateTripRequest_OutOfRangeLatitude(t *testing.T) {
	req := CreateTripRequest{
		PickupLat:     95,
		PickupLng:     69.1667,
		DropLat:       34.5500,
		DropLng:       69.2000,
		PaymentMethod: "CASH",
	}
	assert.Error(t, ValidateStruct(&req))
}

func TestValidateStruct_CreateTripRequest_ScheduledInPast(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	req := CreateTripRequest{
		PickupLat:     34.5333,
		PickupLng:     69.1667,
		DropLat:       34.5500,
		DropLng:       69.2000,
		PaymentMethod: "CASH",
		ScheduledFor:  &past,
	}
	assert.Error(t, ValidateStruct(&req))
}

func TestValidateStruct_RequestOTP(t *testing.T) {
	assert.NoError(t, ValidateStruct(&RequestOTPRequest{Phone: "+15551234567"}))
	assert.Error(t, ValidateStruct(&RequestOTPRequest{Phone: "5551234567"}))
	assert.Error(t, ValidateStruct(&RequestOTPRequest{}))
}

func TestValidateStruct_VerifyOTP(t *testing.T) {
	assert.NoError(t, ValidateStruct(&VerifyOTPRequest{Phone: "+15551234567", Code: "123456"}))
	assert.Error(t, ValidateStruct(&VerifyOTPRequest{Phone: "+15551234567", Code: "12345"}))
	assert.Error(t, ValidateStruct(&VerifyOTPRequest{Phone: "+15551234567", Code: "12345a"}))
}

func TestValidateStruct_UpdateTripStatus(t *testing.T) {
	assert.NoError(t, ValidateStruct(&UpdateTripStatusRequest{Status: "ACCEPTED"}))
	assert.NoError(t, ValidateStruct(&UpdateTripStatusRequest{Status: "CANCELLED", Reason: "rider changed plans"}))
	assert.Error(t, ValidateStruct(&UpdateTripStatusRequest{Status: "TELEPORTED"}))
	assert.Error(t, ValidateStruct(&UpdateTripStatusRequest{}))
}

func TestValidateStruct_CompleteTrip(t *testing.T) {
	assert.NoError(t, ValidateStruct(&CompleteTripRequest{Fare: 12.50, DistanceKm: 4.2, DurationSec: 780}))
	assert.Error(t, ValidateStruct(&CompleteTripRequest{Fare: 0}))
	assert.Error(t, ValidateStruct(&CompleteTripRequest{Fare: 100001}))
}

func TestValidateStruct_UpdateDriverLocation(t *testing.T) {
	assert.NoError(t, ValidateStruct(&UpdateDriverLocationRequest{Latitude: 40.7128, Longitude: -74.0060, Bearing: 90}))
	assert.Error(t, ValidateStruct(&UpdateDriverLocationRequest{Latitude: 40.7128, Longitude: -74.0060, Bearing: 361}))
}

func TestValidateTripRequest_PickupEqualsDropoff(t *testing.T) {
	req := &CreateTripRequest{
		PickupLat:     34.5333,
		PickupLng:     69.1667,
		DropLat:       34.5333,
		DropLng:       69.1667,
		PaymentMethod: "CASH",
	}
	assert.Error(t, ValidateTripRequest(req))
}

func TestValidateDateRange(t *testing.T) {
	now := time.Now()
	assert.NoError(t, ValidateDateRange(now.Add(-time.Hour), now))
	assert.Error(t, ValidateDateRange(now, now.Add(-time.Hour)))
}
