package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// store is the persistence surface Service and Scheduler need, narrowed
// from *Repository so tests can substitute an in-memory fake instead of
// a live Postgres connection.
type store interface {
	CreateTrip(ctx context.Context, t *models.Trip) (*models.Trip, error)
	GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	DueScheduledTrips(ctx context.Context, limit int) ([]*models.Trip, error)
	CancelTrip(ctx context.Context, tripID uuid.UUID, fromStatus models.TripStatus, reason string) (bool, error)

	EligibleDrivers(ctx context.Context, driverIDs []uuid.UUID, tripID uuid.UUID) ([]eligibleDriver, error)

	CreateOffer(ctx context.Context, o *models.TripOffer) (*models.TripOffer, error)
	GetOffer(ctx context.Context, id uuid.UUID) (*models.TripOffer, error)
	PendingOfferForDriver(ctx context.Context, tripID, driverID uuid.UUID) (*models.TripOffer, error)
	CountOffers(ctx context.Context, tripID uuid.UUID) (int, error)
	AcceptOffer(ctx context.Context, offerID, tripID, driverID uuid.UUID) (bool, error)
	SettleOffer(ctx context.Context, offerID uuid.UUID, to models.OfferStatus) (bool, error)
	RecordOfferOutcome(ctx context.Context, driverID uuid.UUID, accepted bool) error
	SetLastAccepted(ctx context.Context, driverID uuid.UUID, at time.Time) error

	GetDispatchConfig(ctx context.Context) (models.DispatchConfig, error)

	UserPhone(ctx context.Context, userID uuid.UUID) (string, error)
	DriverPhone(ctx context.Context, driverID uuid.UUID) (string, error)
}
