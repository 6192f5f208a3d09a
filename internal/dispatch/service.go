package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/internal/routing"
	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/richxcame/dispatch-core/pkg/eventbus"
	"github.com/richxcame/dispatch-core/pkg/geo"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"github.com/richxcame/dispatch-core/pkg/models"
	"go.uber.org/zap"
)

// reasonNoDrivers is the cancel reason recorded when the offer chain
// exhausts maxOffers without an acceptance.
const reasonNoDrivers = "NO_DRIVERS_AVAILABLE"

// candidateFetchMultiplier over-fetches from the geo index since not
// every nearby driver survives the EligibleDrivers filters.
const candidateFetchMultiplier = 4

// TripRequest is the input to RequestTrip.
type TripRequest struct {
	RiderID        uuid.UUID
	PickupLat      float64
	PickupLng      float64
	DropLat        float64
	DropLng        float64
	ServiceType    string
	PaymentMethod  models.PaymentMethod
	ScheduledFor   *time.Time
	BookingChannel models.BookingChannel
}

// Service implements the dispatch engine: candidate selection,
// scoring, and the sequential exclusive offer protocol.
type Service struct {
	repo        store
	locator     CandidateLocator
	eta         RouteETA
	notifier    Notifier
	broadcaster Broadcaster
	demand      DemandRecorder
	bus         *eventbus.Bus

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

// NewService wires the dispatch engine. eta and notifier may be nil —
// when eta is nil every candidate uses the Haversine fallback; when
// notifier is nil offer/outcome notifications are skipped.
func NewService(repo store, locator CandidateLocator, eta RouteETA, notifier Notifier, bus *eventbus.Bus) *Service {
	return &Service{
		repo:     repo,
		locator:  locator,
		eta:      eta,
		notifier: notifier,
		bus:      bus,
		timers:   make(map[uuid.UUID]*time.Timer),
	}
}

// SetBroadcaster wires the spatial hub so offers and acceptances reach
// connected clients over their driver:/user: rooms in addition to the
// push/SMS notification path.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetDemandRecorder wires the zone index that aggregates pickup demand
// for surge pricing and the admin heatmap.
func (s *Service) SetDemandRecorder(d DemandRecorder) {
	s.demand = d
}

func (s *Service) emitToRoom(ctx context.Context, room, event string, data map[string]interface{}) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.EmitToRoom(ctx, room, event, data); err != nil {
		logger.DebugContext(ctx, "failed to emit room event", zap.String("room", room), zap.String("event", event), zap.Error(err))
	}
}

// RequestTrip creates a REQUESTED trip and, unless it's scheduled for
// the future, immediately starts the dispatch chain in the background —
// RequestTrip never blocks the caller on driver search.
func (s *Service) RequestTrip(ctx context.Context, req TripRequest) (*models.Trip, error) {
	trip := &models.Trip{
		RiderID:        req.RiderID,
		PickupLat:      req.PickupLat,
		PickupLng:      req.PickupLng,
		DropLat:        req.DropLat,
		DropLng:        req.DropLng,
		ServiceType:    req.ServiceType,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  models.TripPaymentPending,
		ScheduledFor:   req.ScheduledFor,
		BookingChannel: req.BookingChannel,
	}

	created, err := s.repo.CreateTrip(ctx, trip)
	if err != nil {
		return nil, apperr.NewInternal("failed to create trip", err)
	}

	if s.demand != nil {
		s.demand.IncrementDemand(ctx, req.PickupLat, req.PickupLng)
	}

	if req.ScheduledFor == nil || !req.ScheduledFor.After(time.Now()) {
		go s.dispatch(context.WithoutCancel(ctx), created.ID)
	}

	return created, nil
}

// AcceptOffer is the driver-facing accept path. It CAS-accepts the
// offer and trip together; a lost race (offer already expired or the
// trip already claimed) surfaces as OfferExpired rather than a silent
// no-op, so the driver's app can show an accurate "too late" message.
func (s *Service) AcceptOffer(ctx context.Context, offerID, driverID uuid.UUID) (*models.Trip, error) {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, apperr.NewInternal("failed to load offer", err)
	}
	if offer == nil {
		return nil, apperr.NewNotFound("offer not found", nil)
	}
	if offer.DriverID != driverID {
		return nil, apperr.NewForbidden("offer does not belong to this driver")
	}
	if time.Now().After(offer.ExpiresAt) {
		return nil, apperr.NewOfferExpired("offer has expired")
	}

	ok, err := s.repo.AcceptOffer(ctx, offerID, offer.TripID, driverID)
	if err != nil {
		return nil, apperr.NewInternal("failed to accept offer", err)
	}
	if !ok {
		return nil, apperr.NewOfferExpired("offer is no longer available")
	}

	s.cancelTimer(offerID)

	now := time.Now()
	if err := s.repo.RecordOfferOutcome(ctx, driverID, true); err != nil {
		logger.WarnContext(ctx, "failed to record offer acceptance", zap.Error(err))
	}
	if err := s.repo.SetLastAccepted(ctx, driverID, now); err != nil {
		logger.WarnContext(ctx, "failed to stamp last accepted time", zap.Error(err))
	}

	trip, err := s.repo.GetTrip(ctx, offer.TripID)
	if err != nil || trip == nil {
		return nil, apperr.NewInternal("failed to reload accepted trip", err)
	}

	s.publish(ctx, eventbus.SubjectTripAccepted, trip.ID, driverID)
	s.notifyRider(ctx, trip, "trip_accepted", nil)

	accepted := map[string]interface{}{
		"trip_id":   trip.ID.String(),
		"driver_id": driverID.String(),
		"status":    string(trip.Status),
	}
	s.emitToRoom(ctx, fmt.Sprintf("user:%s", trip.RiderID), "trip:accepted", accepted)
	s.emitToRoom(ctx, fmt.Sprintf("driver:%s", driverID), "trip:accepted", accepted)

	return trip, nil
}

// AcceptOfferForTrip resolves the trip's PENDING offer for this driver
// and accepts it — the `offer:accept {tripId}` event carries a trip id,
// not an offer id.
func (s *Service) AcceptOfferForTrip(ctx context.Context, tripID, driverID uuid.UUID) (*models.Trip, error) {
	offer, err := s.repo.PendingOfferForDriver(ctx, tripID, driverID)
	if err != nil {
		return nil, apperr.NewInternal("failed to look up pending offer", err)
	}
	if offer == nil {
		return nil, apperr.NewOfferExpired("Offer expired or already accepted")
	}
	return s.AcceptOffer(ctx, offer.ID, driverID)
}

// RejectOfferForTrip is the trip-keyed counterpart of RejectOffer.
func (s *Service) RejectOfferForTrip(ctx context.Context, tripID, driverID uuid.UUID) error {
	offer, err := s.repo.PendingOfferForDriver(ctx, tripID, driverID)
	if err != nil {
		return apperr.NewInternal("failed to look up pending offer", err)
	}
	if offer == nil {
		return apperr.NewOfferExpired("Offer expired or already accepted")
	}
	return s.RejectOffer(ctx, offer.ID, driverID)
}

// RejectOffer is the driver-facing reject path: settle the offer, score
// the outcome against the driver's acceptance rate, and issue the next
// offer in the chain.
func (s *Service) RejectOffer(ctx context.Context, offerID, driverID uuid.UUID) error {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return apperr.NewInternal("failed to load offer", err)
	}
	if offer == nil {
		return apperr.NewNotFound("offer not found", nil)
	}
	if offer.DriverID != driverID {
		return apperr.NewForbidden("offer does not belong to this driver")
	}

	ok, err := s.repo.SettleOffer(ctx, offerID, models.OfferRejected)
	if err != nil {
		return apperr.NewInternal("failed to reject offer", err)
	}
	if !ok {
		return apperr.NewOfferExpired("offer already settled")
	}

	s.cancelTimer(offerID)
	if err := s.repo.RecordOfferOutcome(ctx, driverID, false); err != nil {
		logger.WarnContext(ctx, "failed to record offer rejection", zap.Error(err))
	}

	go s.dispatch(context.WithoutCancel(ctx), offer.TripID)
	return nil
}

// dispatch runs one round of candidate selection + scoring and issues
// the top-ranked offer. It's safe to call repeatedly for the same trip
// (each call re-queries eligibility, which already excludes drivers
// previously offered this trip), so rejection, timeout, and the
// scheduled sweep all re-enter through this single path.
func (s *Service) dispatch(ctx context.Context, tripID uuid.UUID) {
	trip, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		logger.ErrorContext(ctx, "dispatch failed to load trip", zap.Error(err))
		return
	}
	if trip == nil || trip.Status != models.TripRequested {
		return
	}

	cfg, err := s.repo.GetDispatchConfig(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "dispatch failed to load config", zap.Error(err))
		return
	}

	issued, err := s.repo.CountOffers(ctx, tripID)
	if err != nil {
		logger.ErrorContext(ctx, "dispatch failed to count offers", zap.Error(err))
		return
	}
	if issued >= cfg.MaxOffers {
		s.exhaust(ctx, trip, reasonNoDrivers)
		return
	}

	ranked, err := s.rankedCandidates(ctx, trip, cfg)
	if err != nil {
		logger.ErrorContext(ctx, "dispatch failed to rank candidates", zap.Error(err))
		return
	}
	if len(ranked) == 0 {
		s.exhaust(ctx, trip, reasonNoDrivers)
		return
	}

	s.issueOffer(ctx, trip, cfg, ranked[0])
}

// exhaust CAS-cancels the trip once the offer chain has no more
// candidates or hit maxOffers, and notifies the rider.
func (s *Service) exhaust(ctx context.Context, trip *models.Trip, reason string) {
	ok, err := s.repo.CancelTrip(ctx, trip.ID, models.TripRequested, reason)
	if err != nil {
		logger.ErrorContext(ctx, "failed to cancel exhausted trip", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	s.publish(ctx, eventbus.SubjectTripCancelled, trip.ID, uuid.Nil)
	s.notifyRider(ctx, trip, "trip_cancelled", map[string]string{"reason": reason})
}

// issueOffer persists the PENDING offer, notifies the driver, and
// starts the offerTimeoutSec timer.
func (s *Service) issueOffer(ctx context.Context, trip *models.Trip, cfg models.DispatchConfig, c candidate) {
	offer := &models.TripOffer{
		TripID:     trip.ID,
		DriverID:   c.driverID,
		Score:      c.score,
		ETAMinutes: c.etaMinutes,
		ExpiresAt:  time.Now().Add(time.Duration(cfg.OfferTimeoutSec) * time.Second),
	}

	created, err := s.repo.CreateOffer(ctx, offer)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create offer", zap.Error(err))
		return
	}

	s.publish(ctx, eventbus.SubjectOfferCreated, trip.ID, c.driverID)
	s.notifyDriver(ctx, trip, c.driverID, "trip_requested", nil)
	s.emitToRoom(ctx, fmt.Sprintf("driver:%s", c.driverID), "trip:requested", map[string]interface{}{
		"trip_id":     trip.ID.String(),
		"offer_id":    created.ID.String(),
		"pickup_lat":  trip.PickupLat,
		"pickup_lng":  trip.PickupLng,
		"drop_lat":    trip.DropLat,
		"drop_lng":    trip.DropLng,
		"fare":        trip.Fare,
		"eta_minutes": c.etaMinutes,
		"expires_at":  created.ExpiresAt,
	})

	s.scheduleTimeout(created.ID, time.Duration(cfg.OfferTimeoutSec)*time.Second)
}

// scheduleTimeout arms the expiry timer for an offer. On fire, a stale
// PENDING offer is settled EXPIRED and the chain advances; a
// concurrently accept/reject already settled the offer is a no-op here.
func (s *Service) scheduleTimeout(offerID uuid.UUID, after time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers[offerID] = time.AfterFunc(after, func() {
		ctx := context.Background()
		s.mu.Lock()
		delete(s.timers, offerID)
		s.mu.Unlock()

		offer, err := s.repo.GetOffer(ctx, offerID)
		if err != nil || offer == nil {
			return
		}
		ok, err := s.repo.SettleOffer(ctx, offerID, models.OfferExpired)
		if err != nil {
			logger.ErrorContext(ctx, "failed to expire offer", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		s.publish(ctx, eventbus.SubjectOfferExpired, offer.TripID, offer.DriverID)
		if err := s.repo.RecordOfferOutcome(ctx, offer.DriverID, false); err != nil {
			logger.WarnContext(ctx, "failed to record offer timeout", zap.Error(err))
		}
		s.dispatch(ctx, offer.TripID)
	})
}

func (s *Service) cancelTimer(offerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[offerID]; ok {
		t.Stop()
		delete(s.timers, offerID)
	}
}

// rankedCandidates loads nearby eligible drivers and scores them.
func (s *Service) rankedCandidates(ctx context.Context, trip *models.Trip, cfg models.DispatchConfig) ([]candidate, error) {
	driverIDs, err := s.locator.FindNearbyDrivers(ctx, trip.PickupLat, trip.PickupLng, cfg.MaxOffers*candidateFetchMultiplier+10)
	if err != nil {
		return nil, err
	}

	eligible, err := s.repo.EligibleDrivers(ctx, driverIDs, trip.ID)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(eligible))
	for _, e := range eligible {
		etaMin := s.etaMinutes(ctx, e.lat, e.lng, trip.PickupLat, trip.PickupLng)
		if etaMin > cfg.MaxETAMinutes {
			continue
		}
		candidates = append(candidates, candidate{
			driverID:       e.driver.ID,
			etaMinutes:     etaMin,
			rating:         e.driver.Rating,
			acceptanceRate: e.stats.AcceptanceRate(),
			serviceMatch:   trip.ServiceType == "" || strings.EqualFold(trip.ServiceType, e.driver.VehicleType),
			lastAcceptedAt: e.driver.LastAcceptedAt,
		})
	}

	return rankCandidates(candidates, cfg), nil
}

// etaMinutes calls the routing client for a driving ETA, falling
// back to a straight-line Haversine estimate when no routing client is
// wired or the lookup fails for any reason (an open circuit or any other
// error; only the latter is logged), since a stalled dispatch loop is
// worse than an imprecise score.
func (s *Service) etaMinutes(ctx context.Context, driverLat, driverLng, pickupLat, pickupLng float64) float64 {
	if s.eta != nil {
		route, err := s.eta.Directions(ctx, routing.Point{Lat: driverLat, Lng: driverLng}, routing.Point{Lat: pickupLat, Lng: pickupLng})
		if err == nil {
			return float64(route.DurationSec) / 60
		}
		if appErr, ok := apperr.As(err); !ok || appErr.ErrorCode != apperr.CodeRoutingUnavailable {
			logger.WarnContext(ctx, "routing lookup failed for non-circuit reason, using straight-line estimate", zap.Error(err))
		}
	}
	return geo.EstimateETAMinutes(geo.Haversine(driverLat, driverLng, pickupLat, pickupLng))
}

func (s *Service) notifyDriver(ctx context.Context, trip *models.Trip, driverID uuid.UUID, template string, params map[string]string) {
	if s.notifier == nil {
		return
	}
	driverUser, err := s.driverPhone(ctx, driverID)
	if err != nil || driverUser == "" {
		return
	}
	if _, err := s.notifier.SendTemplate(ctx, trip.ID, &driverID, models.ChannelPush, driverUser, template, params); err != nil {
		logger.WarnContext(ctx, "failed to notify driver", zap.Error(err))
	}
}

func (s *Service) notifyRider(ctx context.Context, trip *models.Trip, template string, params map[string]string) {
	if s.notifier == nil {
		return
	}
	phone, err := s.repo.UserPhone(ctx, trip.RiderID)
	if err != nil || phone == "" {
		return
	}
	if _, err := s.notifier.SendTemplate(ctx, trip.ID, nil, models.ChannelPush, phone, template, params); err != nil {
		logger.WarnContext(ctx, "failed to notify rider", zap.Error(err))
	}
}

// driverPhone resolves a driver's phone through the shared users table.
// Dispatch only holds the driver_id (drivers.id), so this joins to the
// owning user row rather than requiring a second collaborator.
func (s *Service) driverPhone(ctx context.Context, driverID uuid.UUID) (string, error) {
	return s.repo.DriverPhone(ctx, driverID)
}

func (s *Service) publish(ctx context.Context, subject string, tripID, driverID uuid.UUID) {
	if s.bus == nil {
		return
	}
	event, err := eventbus.NewEvent(subject, "dispatch", map[string]interface{}{
		"trip_id":   tripID,
		"driver_id": driverID,
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to build dispatch event", zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, subject, event); err != nil {
		logger.WarnContext(ctx, "failed to publish dispatch event", zap.String("subject", subject), zap.Error(err))
	}
}
