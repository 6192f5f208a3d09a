package trip

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// store is the persistence surface Service needs, narrowed from
// *Repository so tests can substitute an in-memory fake.
type store interface {
	GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	ActiveTripForDriver(ctx context.Context, driverID uuid.UUID) (*models.Trip, error)
	Transition(ctx context.Context, tripID uuid.UUID, from, to models.TripStatus, cancelReason *string) (bool, error)
	DriverIDForUser(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)
	SetTripMetrics(ctx context.Context, tripID uuid.UUID, fare, distanceKm float64, durationSec int) error
	MarkPaymentCollected(ctx context.Context, tripID uuid.UUID) (bool, error)
	InsertSOSEvent(ctx context.Context, e *models.SOSEvent) (*models.SOSEvent, error)
	ListSOSEvents(ctx context.Context, tripID uuid.UUID) ([]*models.SOSEvent, error)
}
