package spatial

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/internal/geohash"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"go.uber.org/zap"
)

// handlerTimeout bounds the work done for one inbound frame; a slow
// database or routing call must not wedge a client's read loop forever.
const handlerTimeout = 10 * time.Second

// LocationResult mirrors the location service's update result without
// importing it, the same mirrored-shape idiom the domain packages use
// toward each other.
type LocationResult struct {
	SnappedLat   float64
	SnappedLng   float64
	Flagged      bool
	AnomalyCount int
}

// LocationUpdater ingests a driver position fix. Implemented by
// internal/geo.Service through an adapter at the composition root.
type LocationUpdater interface {
	UpdateDriverLocation(ctx context.Context, driverID uuid.UUID, lat, lng, bearing float64) (*LocationResult, error)
}

// OfferResponder resolves a driver's answer to a pending offer by trip
// id. Implemented by internal/dispatch.Service.
type OfferResponder interface {
	AcceptOfferForTrip(ctx context.Context, tripID, driverID uuid.UUID) error
	RejectOfferForTrip(ctx context.Context, tripID, driverID uuid.UUID) error
}

// TripFlow advances a driver's trip through arrived/started/completed.
// Implemented by internal/trip.Service through an adapter that builds
// the acting identity from the connection's claims.
type TripFlow interface {
	Arrive(ctx context.Context, userID, tripID uuid.UUID) error
	Start(ctx context.Context, userID, tripID uuid.UUID) error
	Complete(ctx context.Context, userID, tripID uuid.UUID) error
}

// NearbyFinder answers rider queries for drivers around a point.
// Implemented by internal/geo.Service.
type NearbyFinder interface {
	FindNearbyDrivers(ctx context.Context, lat, lng float64, maxDrivers int) ([]uuid.UUID, error)
}

// Bindings carries the domain collaborators the client protocol needs.
// Any nil collaborator leaves its events unbound, which keeps tests and
// partial deployments honest: an unbound event is ignored, never
// half-handled.
type Bindings struct {
	Locations LocationUpdater
	Offers    OfferResponder
	Trips     TripFlow
	Nearby    NearbyFinder
}

// BindHandlers registers the inbound client protocol on the hub:
//
//	connect:location           {lat, lng}
//	driver:location            {lat, lng, bearing?}
//	offer:accept               {tripId}
//	offer:reject               {tripId}
//	trip:arrived               {tripId}
//	trip:start                 {tripId}
//	trip:complete              {tripId}
//	rider:get_nearby_drivers   {lat, lng}
//
// Replies and errors go to the sender's own entity room, so a reply can
// never leak to another client.
func BindHandlers(hub *Hub, b Bindings) {
	hub.RegisterHandler("connect:location", func(ctx context.Context, c *Client, data map[string]interface{}) {
		lat, lng, ok := latLng(data)
		if !ok {
			return
		}
		hash := geohash.Encode(lat, lng, geohash.DefaultPrecision)
		if old := c.geoHash(); old != "" && old != hash {
			hub.Leave(c, GeoRoom(old))
		}
		hub.Join(c, GeoRoom(hash))
		c.setGeoHash(hash)
	})

	if b.Locations != nil {
		hub.RegisterHandler("driver:location", func(ctx context.Context, c *Client, data map[string]interface{}) {
			driverID, ok := driverIdentity(c)
			if !ok {
				return
			}
			lat, lng, ok := latLng(data)
			if !ok {
				return
			}
			bearing, _ := floatField(data, "bearing")

			ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
			defer cancel()
			result, err := b.Locations.UpdateDriverLocation(ctx, driverID, lat, lng, bearing)
			if err != nil {
				logger.WarnContext(ctx, "spatial: location update failed", zap.String("driver_id", driverID.String()), zap.Error(err))
				return
			}
			if result.Flagged {
				emitToSender(ctx, hub, c, "driver:flagged", map[string]interface{}{
					"reason":        "anomalous position fix",
					"anomaly_count": result.AnomalyCount,
				})
			}
		})
	}

	if b.Offers != nil {
		hub.RegisterHandler("offer:accept", func(ctx context.Context, c *Client, data map[string]interface{}) {
			driverID, tripID, ok := driverAndTrip(ctx, hub, c, data)
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
			defer cancel()
			if err := b.Offers.AcceptOfferForTrip(ctx, tripID, driverID); err != nil {
				emitOfferError(ctx, hub, c, err)
			}
		})

		hub.RegisterHandler("offer:reject", func(ctx context.Context, c *Client, data map[string]interface{}) {
			driverID, tripID, ok := driverAndTrip(ctx, hub, c, data)
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
			defer cancel()
			if err := b.Offers.RejectOfferForTrip(ctx, tripID, driverID); err != nil {
				emitOfferError(ctx, hub, c, err)
			}
		})
	}

	if b.Trips != nil {
		tripEvent := func(event string, advance func(ctx context.Context, userID, tripID uuid.UUID) error) {
			hub.RegisterHandler(event, func(ctx context.Context, c *Client, data map[string]interface{}) {
				tripID, ok := uuidField(data, "tripId")
				if !ok {
					return
				}
				ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
				defer cancel()
				if err := advance(ctx, c.EntityID, tripID); err != nil {
					emitToSender(ctx, hub, c, "offer:error", map[string]interface{}{"message": err.Error()})
				}
			})
		}
		tripEvent("trip:arrived", b.Trips.Arrive)
		tripEvent("trip:start", b.Trips.Start)
		tripEvent("trip:complete", b.Trips.Complete)
	}

	if b.Nearby != nil {
		hub.RegisterHandler("rider:get_nearby_drivers", func(ctx context.Context, c *Client, data map[string]interface{}) {
			lat, lng, ok := latLng(data)
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
			defer cancel()
			ids, err := b.Nearby.FindNearbyDrivers(ctx, lat, lng, 20)
			if err != nil {
				logger.WarnContext(ctx, "spatial: nearby driver search failed", zap.Error(err))
				return
			}
			drivers := make([]string, len(ids))
			for i, id := range ids {
				drivers[i] = id.String()
			}
			emitToSender(ctx, hub, c, "nearby_drivers", map[string]interface{}{"driver_ids": drivers})
		})
	}
}

// emitToSender replies on the sender's own entity room.
func emitToSender(ctx context.Context, hub *Hub, c *Client, event string, data map[string]interface{}) {
	room := UserRoom(c.EntityID)
	if c.Role == "driver" && c.DriverID != nil {
		room = DriverRoom(*c.DriverID)
	}
	if err := hub.EmitToRoom(ctx, room, event, data); err != nil {
		logger.DebugContext(ctx, "spatial: reply emit failed", zap.String("event", event), zap.Error(err))
	}
}

func emitOfferError(ctx context.Context, hub *Hub, c *Client, err error) {
	emitToSender(ctx, hub, c, "offer:error", map[string]interface{}{"message": err.Error()})
}

// driverIdentity resolves the connection's driver id, rejecting frames
// from rider/admin sockets on driver-only events.
func driverIdentity(c *Client) (uuid.UUID, bool) {
	if c.Role != "driver" || c.DriverID == nil {
		return uuid.Nil, false
	}
	return *c.DriverID, true
}

func driverAndTrip(ctx context.Context, hub *Hub, c *Client, data map[string]interface{}) (driverID, tripID uuid.UUID, ok bool) {
	driverID, isDriver := driverIdentity(c)
	if !isDriver {
		return uuid.Nil, uuid.Nil, false
	}
	tripID, hasTrip := uuidField(data, "tripId")
	if !hasTrip {
		emitToSender(ctx, hub, c, "offer:error", map[string]interface{}{"message": "tripId is required"})
		return uuid.Nil, uuid.Nil, false
	}
	return driverID, tripID, true
}

func latLng(data map[string]interface{}) (lat, lng float64, ok bool) {
	lat, latOK := floatField(data, "lat")
	lng, lngOK := floatField(data, "lng")
	if !latOK || !lngOK || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}

func floatField(data map[string]interface{}, key string) (float64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func uuidField(data map[string]interface{}, key string) (uuid.UUID, bool) {
	v, ok := data[key].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
