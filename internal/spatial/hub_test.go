package spatial

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(entityID uuid.UUID, role string, hub *Hub) *Client {
	return newClient(uuid.NewString(), entityID, role, nil, hub)
}

func TestJoinLeave_RoomMembership(t *testing.T) {
	hub := NewHub(nil)
	rider := newTestClient(uuid.New(), "rider", hub)

	hub.Join(rider, GeoRoom("u4pruy"))
	assert.Equal(t, 1, hub.RoomSize(GeoRoom("u4pruy")))

	hub.Leave(rider, GeoRoom("u4pruy"))
	assert.Equal(t, 0, hub.RoomSize(GeoRoom("u4pruy")))
}

func TestEmitToRoom_DeliversOnlyToRoomMembers(t *testing.T) {
	hub := NewHub(nil)
	inRoom := newTestClient(uuid.New(), "rider", hub)
	outOfRoom := newTestClient(uuid.New(), "rider", hub)

	hub.Join(inRoom, UserRoom(inRoom.EntityID))
	hub.Join(outOfRoom, UserRoom(outOfRoom.EntityID))

	err := hub.EmitToRoom(context.Background(), UserRoom(inRoom.EntityID), "trip:eta:update", map[string]string{"x": "y"})
	require.NoError(t, err)

	select {
	case msg := <-inRoom.Send:
		assert.Equal(t, "trip:eta:update", msg.Event)
	default:
		t.Fatal("expected message delivered to room member")
	}

	select {
	case <-outOfRoom.Send:
		t.Fatal("message leaked to a client outside the target room")
	default:
	}
}

func TestEmitToRoom_EmptyRoomIsAProgrammingError(t *testing.T) {
	hub := NewHub(nil)
	assert.Panics(t, func() {
		hub.EmitToRoom(context.Background(), "", "whatever", nil)
	})
}

func TestOnDriverMoved_SwitchesGeoRoomAndFansOutToNeighbors(t *testing.T) {
	hub := NewHub(nil)
	driverID := uuid.New()
	driver := newTestClient(driverID, "driver", hub)
	hub.Join(driver, DriverRoom(driverID))

	oldHash := "u4pruy"
	newHash := "u4pruz"
	hub.Join(driver, GeoRoom(oldHash))
	driver.setGeoHash(oldHash)

	rider := newTestClient(uuid.New(), "rider", hub)
	hub.Join(rider, GeoRoom(newHash))

	err := hub.OnDriverMoved(context.Background(), driverID, newHash, 40.7128, -74.0060, 90)
	require.NoError(t, err)

	assert.Equal(t, newHash, driver.geoHash())
	assert.Equal(t, 0, hub.RoomSize(GeoRoom(oldHash)))
	assert.Equal(t, 2, hub.RoomSize(GeoRoom(newHash)))

	select {
	case msg := <-rider.Send:
		assert.Equal(t, "driver:location:update", msg.Event)
		data := msg.Data.(map[string]interface{})
		assert.Equal(t, 40.7128, data["lat"])
		assert.Equal(t, -74.0060, data["lng"])
	default:
		t.Fatal("expected neighbor fanout to reach rider in the new tile")
	}
}

func TestEmitToRoom_DisconnectedClientIsSkippedNotPanicked(t *testing.T) {
	hub := NewHub(nil)
	rider := newTestClient(uuid.New(), "rider", hub)
	hub.registerClient(rider)
	room := UserRoom(rider.EntityID)
	hub.Join(rider, room)

	// Simulate the client disconnecting while it is still a member of
	// the room a concurrent emit targets.
	require.True(t, rider.markClosed())
	close(rider.Send)

	assert.NotPanics(t, func() {
		_ = hub.EmitToRoom(context.Background(), room, "trip:eta:update", nil)
	})
}

func TestUnregisterClient_LeavesEveryRoom(t *testing.T) {
	hub := NewHub(nil)
	client := newTestClient(uuid.New(), "rider", hub)
	hub.registerClient(client)
	hub.Join(client, UserRoom(client.EntityID))
	hub.Join(client, GeoRoom("u4pruy"))

	hub.unregisterClient(client)

	assert.Equal(t, 0, hub.RoomSize(UserRoom(client.EntityID)))
	assert.Equal(t, 0, hub.RoomSize(GeoRoom("u4pruy")))
	assert.Equal(t, 0, hub.ClientCount())
}
