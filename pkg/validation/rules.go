package validation

import "time"

// Common validation rules and request structs

// CreateTripRequest represents a rider's `POST /trips` body (dispatch's
// RequestTrip entry point).
type CreateTripRequest struct {
	PickupLat      float64    `json:"pickup_lat" validate:"required,latitude"`
	PickupLng      float64    `json:"pickup_lng" validate:"required,longitude"`
	DropLat        float64    `json:"drop_lat" validate:"required,latitude"`
	DropLng        float64    `json:"drop_lng" validate:"required,longitude"`
	ServiceType    string     `json:"service_type" validate:"omitempty,service_type"`
	PaymentMethod  string     `json:"payment_method" validate:"required,payment_method"`
	BookingChannel string     `json:"booking_channel" validate:"omitempty,oneof=APP PHONE"`
	ScheduledFor   *time.Time `json:"scheduled_for" validate:"omitempty,future"`
}

// RequestOTPRequest represents `POST /auth/request-otp`.
type RequestOTPRequest struct {
	Phone string `json:"phone" validate:"required,phone"`
}

// VerifyOTPRequest represents `POST /auth/verify-otp`.
type VerifyOTPRequest struct {
	Phone string `json:"phone" validate:"required,phone"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// UpdateDriverLocationRequest represents the `driver:location` event
// and its REST equivalent.
type UpdateDriverLocationRequest struct {
	Latitude  float64 `json:"lat" validate:"required,latitude"`
	Longitude float64 `json:"lng" validate:"required,longitude"`
	Bearing   float64 `json:"bearing" validate:"omitempty,gte=0,lte=360"`
}

// UpdateTripStatusRequest represents `PATCH /trips/{id}/status`.
type UpdateTripStatusRequest struct {
	Status string `json:"status" validate:"required,trip_status"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// CompleteTripRequest represents `POST /trips/{id}/settle`'s reported
// fare/distance/duration, read before the atomic settlement.
type CompleteTripRequest struct {
	Fare        float64 `json:"fare" validate:"required,gt=0,lte=100000"`
	DistanceKm  float64 `json:"distance_km" validate:"omitempty,gte=0,lte=1000"`
	DurationSec int     `json:"duration_sec" validate:"omitempty,gte=0"`
}

// SOSRequest represents `POST /trips/{id}/sos`. lat/lng are optional —
// a participant may trigger SOS without a fresh location fix.
type SOSRequest struct {
	Lat  float64 `json:"lat" validate:"omitempty,latitude"`
	Lng  float64 `json:"lng" validate:"omitempty,longitude"`
	Note string  `json:"note" validate:"omitempty,max=500"`
}

// PaymentCollectedRequest represents `POST /trips/{id}/payment-collected`.
// The trip is identified by URL and the driver by the auth context;
// callers may still attach a note.
type PaymentCollectedRequest struct {
	Note string `json:"note" validate:"omitempty,max=500"`
}

// ProcessTripPaymentRequest represents `POST /wallet/process-trip-payment`.
type ProcessTripPaymentRequest struct {
	TripID string `json:"trip_id" validate:"required,uuid"`
}

// RequestPayoutRequest represents `POST /payouts` (driver).
type RequestPayoutRequest struct {
	Amount         float64 `json:"amount" validate:"required,gt=0,lte=100000"`
	IdempotencyKey string  `json:"idempotency_key" validate:"required,min=8,max=255"`
}

// ProcessPayoutRequest represents `POST /payouts/{id}/process` (admin).
type ProcessPayoutRequest struct {
	DestinationAccountID string `json:"destination_account_id" validate:"required,min=1,max=255"`
}

// CreditPurchaseRequestBody represents `POST /credits/purchase-requests`
// (driver): the package-purchase submission awaiting admin review.
type CreditPurchaseRequestBody struct {
	Credits       int     `json:"credits" validate:"required,gt=0,lte=100000"`
	Months        int     `json:"months" validate:"required,gt=0,lte=24"`
	AmountCharged float64 `json:"amount_charged" validate:"required,gt=0,lte=100000"`
}

// RejectCreditPurchaseRequest represents
// `POST /admin/credits/purchase-requests/{id}/reject`.
type RejectCreditPurchaseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// PaginationRequest represents common pagination parameters used by the
// admin read-only list views (`GET /dispatch/offers` and similar).
type PaginationRequest struct {
	Limit   int    `json:"limit" validate:"omitempty,gte=1,lte=100"`
	Offset  int    `json:"offset" validate:"omitempty,gte=0"`
	SortBy  string `json:"sort_by" validate:"omitempty,alpha"`
	SortDir string `json:"sort_dir" validate:"omitempty,oneof=asc desc"`
}

// DateRangeRequest represents a date range filter, e.g. for the
// reconciliation admin view.
type DateRangeRequest struct {
	StartDate time.Time `json:"start_date" validate:"omitempty"`
	EndDate   time.Time `json:"end_date" validate:"omitempty"`
}

// ValidateTripRequest validates a CreateTripRequest's struct tags, plus
// the one cross-field business rule a struct tag can't express: pickup
// and drop must differ.
func ValidateTripRequest(req *CreateTripRequest) error {
	if err := ValidateStruct(req); err != nil {
		return err
	}

	validationErr := &ValidationError{Errors: make(map[string]string)}
	if req.PickupLat == req.DropLat && req.PickupLng == req.DropLng {
		validationErr.AddError("drop_lat", "pickup and drop locations cannot be the same")
	}
	if validationErr.HasErrors() {
		return validationErr
	}
	return nil
}

// ValidateDateRange validates that end date is after start date
func ValidateDateRange(start, end time.Time) error {
	if end.Before(start) {
		return &ValidationError{
			Errors: map[string]string{
				"date_range": "end date must be after start date",
			},
		}
	}
	return nil
}
