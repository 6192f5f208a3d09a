package trip

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/richxcame/dispatch-core/pkg/eventbus"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"github.com/richxcame/dispatch-core/pkg/models"
	"go.uber.org/zap"
)

// Service implements the trip state machine: guarded, CAS-style
// status transitions with ownership and role authorization, the
// auto-arrival hook the location pipeline drives, and the SOS audit trail.
type Service struct {
	repo        store
	registrar   ActiveTripRegistrar
	broadcaster Broadcaster
	settler     Settler
	bus         *eventbus.Bus
}

// NewService wires the trip state machine. registrar, broadcaster, and
// settler may be nil in tests that don't exercise those paths.
func NewService(repo store, registrar ActiveTripRegistrar, broadcaster Broadcaster, settler Settler, bus *eventbus.Bus) *Service {
	return &Service{repo: repo, registrar: registrar, broadcaster: broadcaster, settler: settler, bus: bus}
}

// Transition drives any guarded move except COMPLETED, which requires
// the atomic settlement transaction and goes through CompleteTrip
// instead. reason is only persisted when to is CANCELLED.
func (s *Service) Transition(ctx context.Context, actor Actor, tripID uuid.UUID, to models.TripStatus, reason string) (*models.Trip, error) {
	if to == models.TripCompleted {
		return nil, apperr.NewBadRequest("use the complete endpoint to finish a trip", nil)
	}

	trip, callerDriverID, err := s.loadForTransition(ctx, actor, tripID, to)
	if err != nil {
		return nil, err
	}

	var cancelReason *string
	if to == models.TripCancelled && reason != "" {
		cancelReason = &reason
	}

	ok, err := s.repo.Transition(ctx, tripID, trip.Status, to, cancelReason)
	if err != nil {
		return nil, apperr.NewInternal("failed to transition trip", err)
	}
	if !ok {
		return nil, apperr.NewInvalidStateTransition("trip state changed concurrently")
	}

	updated, err := s.repo.GetTrip(ctx, tripID)
	if err != nil || updated == nil {
		return nil, apperr.NewInternal("failed to reload transitioned trip", err)
	}

	switch to {
	case models.TripArrived:
		s.onArrived(ctx, updated)
	case models.TripInProgress:
		s.onStarted(ctx, updated, callerDriverID)
	case models.TripCancelled:
		s.onCancelled(ctx, updated, cancelledByLabel(actor), reason)
	}

	_ = callerDriverID
	return updated, nil
}

// loadForTransition loads the trip, validates the edge is legal in the
// state machine, resolves the caller's driver row when relevant, and
// authorizes the attempt.
func (s *Service) loadForTransition(ctx context.Context, actor Actor, tripID uuid.UUID, to models.TripStatus) (*models.Trip, *uuid.UUID, error) {
	trip, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, nil, apperr.NewInternal("failed to load trip", err)
	}
	if trip == nil {
		return nil, nil, apperr.NewNotFound("trip not found", nil)
	}
	if !models.CanTransition(trip.Status, to) {
		return nil, nil, apperr.NewInvalidStateTransition(fmt.Sprintf("cannot move trip from %s to %s", trip.Status, to))
	}

	var callerDriverID *uuid.UUID
	if actor.Role == models.RoleDriver {
		callerDriverID, err = s.repo.DriverIDForUser(ctx, actor.UserID)
		if err != nil {
			return nil, nil, apperr.NewInternal("failed to resolve driver", err)
		}
	}

	if err := authorize(actor, trip, to, callerDriverID); err != nil {
		return nil, nil, err
	}
	return trip, callerDriverID, nil
}

// authorize enforces: rider may cancel their own trip only before
// IN_PROGRESS; a driver may advance only a trip they own, forward only
// (CanTransition already rules out skipping ahead); admin may force any
// valid edge.
func authorize(actor Actor, trip *models.Trip, to models.TripStatus, callerDriverID *uuid.UUID) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}

	if to == models.TripCancelled {
		switch actor.Role {
		case models.RoleRider:
			if trip.RiderID != actor.UserID {
				return apperr.NewForbidden("trip does not belong to this rider")
			}
			if trip.Status == models.TripInProgress {
				return apperr.NewForbidden("trip can no longer be cancelled once in progress")
			}
			return nil
		case models.RoleDriver:
			if callerDriverID == nil || trip.DriverID == nil || *trip.DriverID != *callerDriverID {
				return apperr.NewForbidden("trip does not belong to this driver")
			}
			return nil
		default:
			return apperr.NewForbidden("not authorized to cancel this trip")
		}
	}

	if actor.Role != models.RoleDriver {
		return apperr.NewForbidden("only the assigned driver may advance this trip")
	}
	if callerDriverID == nil || trip.DriverID == nil || *trip.DriverID != *callerDriverID {
		return apperr.NewForbidden("trip does not belong to this driver")
	}
	return nil
}

func cancelledByLabel(actor Actor) string {
	switch actor.Role {
	case models.RoleRider:
		return "rider"
	case models.RoleDriver:
		return "driver"
	case models.RoleAdmin:
		return "admin"
	default:
		return "system"
	}
}

// RouteLeg mirrors geo.RouteLeg's shape without importing that package,
// so the deviation check's caller keeps driving the dependency instead
// of trip reaching into geo internals.
type RouteLeg struct {
	FromLat, FromLng float64
	ToLat, ToLng     float64
}

// ActiveRouteLeg implements geo.ActiveTripLookup: it gives the location service's anomaly
// filter the pickup-to-dropoff leg of a driver's current IN_PROGRESS
// trip, the only phase the deviation rule applies to — before pickup
// there is no fixed leg to deviate from.
func (s *Service) ActiveRouteLeg(ctx context.Context, driverID uuid.UUID) (RouteLeg, bool, error) {
	trip, err := s.repo.ActiveTripForDriver(ctx, driverID)
	if err != nil {
		return RouteLeg{}, false, apperr.NewInternal("failed to load active trip", err)
	}
	if trip == nil {
		return RouteLeg{}, false, nil
	}
	return RouteLeg{
		FromLat: trip.PickupLat,
		FromLng: trip.PickupLng,
		ToLat:   trip.DropLat,
		ToLng:   trip.DropLng,
	}, true, nil
}

// MarkArrived implements geo.ArrivalNotifier: the ETA tracker calls
// this the moment a driver's snapped position lands within the pickup
// radius while the trip is still ACCEPTED. There is no human actor
// here, so it bypasses Transition's authorization and is idempotent —
// a trip that already moved on is simply left alone.
func (s *Service) MarkArrived(ctx context.Context, tripID uuid.UUID) error {
	trip, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if trip == nil || trip.Status != models.TripAccepted {
		return nil
	}

	ok, err := s.repo.Transition(ctx, tripID, models.TripAccepted, models.TripArrived, nil)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	updated, err := s.repo.GetTrip(ctx, tripID)
	if err != nil || updated == nil {
		return err
	}
	s.onArrived(ctx, updated)
	return nil
}

// CompleteTrip is the driver-facing (or admin-forced) trip-end action.
// It stamps the reported fare/distance/duration, then hands off to the
// settlement transaction, which alone performs the atomic
// IN_PROGRESS→COMPLETED CAS together with the commission split.
func (s *Service) CompleteTrip(ctx context.Context, actor Actor, tripID uuid.UUID, fare, distanceKm float64, durationSec int) (*models.Trip, error) {
	trip, _, err := s.loadForTransition(ctx, actor, tripID, models.TripCompleted)
	if err != nil {
		return nil, err
	}
	if trip.Status != models.TripInProgress {
		return nil, apperr.NewInvalidStateTransition("trip must be in progress to complete")
	}

	if err := s.repo.SetTripMetrics(ctx, tripID, fare, distanceKm, durationSec); err != nil {
		return nil, apperr.NewInternal("failed to record trip metrics", err)
	}

	if s.settler == nil {
		return nil, apperr.NewServiceUnavailable("settlement is not configured")
	}
	if err := s.settler.CompleteTrip(ctx, tripID); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetTrip(ctx, tripID)
	if err != nil || updated == nil {
		return nil, apperr.NewInternal("failed to reload completed trip", err)
	}

	if s.registrar != nil && updated.DriverID != nil {
		s.registrar.UnregisterActiveTrip(ctx, *updated.DriverID)
	}
	s.broadcast(ctx, trip.RiderID, updated.DriverID, "trip:completed", map[string]interface{}{
		"trip_id": updated.ID,
		"status":  updated.Status,
	})

	return updated, nil
}

// CompleteTripAsPlanned finishes a trip using the fare, distance, and
// duration already stored on the row (the request-time estimate) — the
// path taken by clients that complete with a bare trip id instead of
// re-measured metrics.
func (s *Service) CompleteTripAsPlanned(ctx context.Context, actor Actor, tripID uuid.UUID) (*models.Trip, error) {
	trip, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, apperr.NewInternal("failed to load trip", err)
	}
	if trip == nil {
		return nil, apperr.NewNotFound("trip not found", nil)
	}

	var fare, distance float64
	var duration int
	if trip.Fare != nil {
		fare = *trip.Fare
	}
	if trip.Distance != nil {
		distance = *trip.Distance
	}
	if trip.Duration != nil {
		duration = *trip.Duration
	}
	return s.CompleteTrip(ctx, actor, tripID, fare, distance, duration)
}

// MarkPaymentCollected is the cash-leg counterpart to settlement's
// wallet debit: the driver confirms cash was received in hand, which
// flips payment_status PENDING→COLLECTED without touching trip status.
// Only the owning driver or an admin may confirm collection.
func (s *Service) MarkPaymentCollected(ctx context.Context, actor Actor, tripID uuid.UUID) (*models.Trip, error) {
	trip, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, apperr.NewInternal("failed to load trip", err)
	}
	if trip == nil {
		return nil, apperr.NewNotFound("trip not found", nil)
	}
	if actor.Role != models.RoleAdmin {
		driverID, err := s.repo.DriverIDForUser(ctx, actor.UserID)
		if err != nil {
			return nil, apperr.NewInternal("failed to resolve driver", err)
		}
		if driverID == nil || trip.DriverID == nil || *driverID != *trip.DriverID {
			return nil, apperr.NewForbidden("only the trip's driver may confirm payment collection")
		}
	}
	if trip.PaymentMethod != models.PaymentCash {
		return nil, apperr.NewValidation("payment-collected only applies to cash trips")
	}

	ok, err := s.repo.MarkPaymentCollected(ctx, tripID)
	if err != nil {
		return nil, apperr.NewInternal("failed to mark payment collected", err)
	}
	if !ok {
		return nil, apperr.NewConflict("payment was already collected or failed")
	}

	updated, err := s.repo.GetTrip(ctx, tripID)
	if err != nil || updated == nil {
		return nil, apperr.NewInternal("failed to reload trip", err)
	}
	return updated, nil
}

// SOS records an audit event without touching trip status. Any
// participant (rider, driver, or an admin on their behalf) may trigger
// it at any non-terminal trip state.
func (s *Service) SOS(ctx context.Context, actor Actor, tripID uuid.UUID, lat, lng float64, note string) (*models.SOSEvent, error) {
	trip, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, apperr.NewInternal("failed to load trip", err)
	}
	if trip == nil {
		return nil, apperr.NewNotFound("trip not found", nil)
	}
	if models.IsTerminal(trip.Status) {
		return nil, apperr.NewConflict("trip has already ended")
	}
	if actor.Role != models.RoleAdmin && trip.RiderID != actor.UserID {
		callerDriverID, err := s.repo.DriverIDForUser(ctx, actor.UserID)
		if err != nil {
			return nil, apperr.NewInternal("failed to resolve driver", err)
		}
		if callerDriverID == nil || trip.DriverID == nil || *trip.DriverID != *callerDriverID {
			return nil, apperr.NewForbidden("not a participant on this trip")
		}
	}

	var notePtr *string
	if note != "" {
		notePtr = &note
	}
	event, err := s.repo.InsertSOSEvent(ctx, &models.SOSEvent{TripID: tripID, TriggeredBy: actor.UserID, Note: notePtr})
	if err != nil {
		return nil, apperr.NewInternal("failed to record SOS event", err)
	}

	s.publishSOS(ctx, event, actor, lat, lng)
	if s.broadcaster != nil {
		if err := s.broadcaster.EmitToRoom(ctx, "admin", "trip:sos", payload{
			"trip_id":      event.TripID,
			"triggered_by": event.TriggeredBy,
			"note":         event.Note,
		}); err != nil {
			logger.WarnContext(ctx, "failed to broadcast sos to admin room", zap.Error(err))
		}
	}
	return event, nil
}

// ListSOS returns the SOS audit trail for a trip, for the admin
// read-only view.
func (s *Service) ListSOS(ctx context.Context, tripID uuid.UUID) ([]*models.SOSEvent, error) {
	events, err := s.repo.ListSOSEvents(ctx, tripID)
	if err != nil {
		return nil, apperr.NewInternal("failed to list SOS events", err)
	}
	return events, nil
}

func (s *Service) onArrived(ctx context.Context, trip *models.Trip) {
	s.publish(ctx, eventbus.SubjectTripArrived, map[string]interface{}{
		"trip_id":    trip.ID,
		"rider_id":   trip.RiderID,
		"driver_id":  trip.DriverID,
		"arrived_at": time.Now().UTC(),
	})
	s.broadcast(ctx, trip.RiderID, trip.DriverID, "trip:arrived", payload{"trip_id": trip.ID})
}

func (s *Service) onStarted(ctx context.Context, trip *models.Trip, _ *uuid.UUID) {
	if s.registrar != nil && trip.DriverID != nil {
		if err := s.registrar.RegisterActiveTrip(ctx, &ActiveTripInfo{
			TripID:     trip.ID,
			RiderID:    trip.RiderID,
			DriverID:   *trip.DriverID,
			PickupLat:  trip.PickupLat,
			PickupLng:  trip.PickupLng,
			DropoffLat: trip.DropLat,
			DropoffLng: trip.DropLng,
			Status:     string(models.TripInProgress),
		}); err != nil {
			logger.WarnContext(ctx, "failed to register dropoff leg for ETA tracking", zap.Error(err))
		}
	}
	s.publish(ctx, eventbus.SubjectTripStarted, map[string]interface{}{
		"trip_id":    trip.ID,
		"rider_id":   trip.RiderID,
		"driver_id":  trip.DriverID,
		"started_at": time.Now().UTC(),
	})
	s.broadcast(ctx, trip.RiderID, trip.DriverID, "trip:started", payload{"trip_id": trip.ID})
}

func (s *Service) onCancelled(ctx context.Context, trip *models.Trip, cancelledBy, reason string) {
	if s.registrar != nil && trip.DriverID != nil {
		s.registrar.UnregisterActiveTrip(ctx, *trip.DriverID)
	}
	s.publish(ctx, eventbus.SubjectTripCancelled, map[string]interface{}{
		"trip_id":      trip.ID,
		"rider_id":     trip.RiderID,
		"driver_id":    trip.DriverID,
		"cancelled_by": cancelledBy,
		"reason":       reason,
		"cancelled_at": time.Now().UTC(),
	})
	s.broadcast(ctx, trip.RiderID, trip.DriverID, "trip:cancelled", payload{"trip_id": trip.ID, "reason": reason})
}

func (s *Service) publishSOS(ctx context.Context, event *models.SOSEvent, actor Actor, lat, lng float64) {
	role := "rider"
	if actor.Role == models.RoleDriver {
		role = "driver"
	}
	s.publish(ctx, eventbus.SubjectSOSTriggered, map[string]interface{}{
		"trip_id":      event.TripID,
		"triggered_by": event.TriggeredBy,
		"role":         role,
		"latitude":     lat,
		"longitude":    lng,
		"triggered_at": event.CreatedAt,
	})
}

func (s *Service) publish(ctx context.Context, subject string, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	event, err := eventbus.NewEvent(subject, "trip", data)
	if err != nil {
		logger.WarnContext(ctx, "failed to build trip event", zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, subject, event); err != nil {
		logger.WarnContext(ctx, "failed to publish trip event", zap.String("subject", subject), zap.Error(err))
	}
}

type payload = map[string]interface{}

func (s *Service) broadcast(ctx context.Context, riderID uuid.UUID, driverID *uuid.UUID, eventName string, payload interface{}) {
	if s.broadcaster == nil || eventName == "" {
		return
	}
	if riderID != uuid.Nil {
		if err := s.broadcaster.EmitToRoom(ctx, fmt.Sprintf("user:%s", riderID), eventName, payload); err != nil {
			logger.DebugContext(ctx, "failed to broadcast to rider room", zap.Error(err))
		}
	}
	if driverID != nil {
		if err := s.broadcaster.EmitToRoom(ctx, fmt.Sprintf("driver:%s", *driverID), eventName, payload); err != nil {
			logger.DebugContext(ctx, "failed to broadcast to driver room", zap.Error(err))
		}
	}
}
