package routing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	failNext  int // number of remaining calls that should fail
	route     *Route
	directErr error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Directions(ctx context.Context, start, end Point) (*Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("provider unavailable")
	}
	if f.directErr != nil {
		return nil, f.directErr
	}
	return f.route, nil
}

func (f *fakeProvider) Matrix(ctx context.Context, points []Point) (*Matrix, error) {
	return &Matrix{}, nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *fakeAlerter) RecordAlert(ctx context.Context, alertType, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alertType)
	return nil
}

func TestClient_Directions_CachesResult(t *testing.T) {
	provider := &fakeProvider{route: &Route{DistanceMeters: 1000, DurationSec: 60}}
	client := NewClient(provider, nil)

	start := Point{Lat: 40.0, Lng: -74.0}
	end := Point{Lat: 40.1, Lng: -74.1}

	r1, err := client.Directions(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, 1000, r1.DistanceMeters)

	_, err = client.Directions(context.Background(), start, end)
	require.NoError(t, err)

	provider.mu.Lock()
	calls := provider.calls
	provider.mu.Unlock()
	assert.Equal(t, 1, calls, "second call should be served from cache")
}

func TestClient_Directions_OpensCircuitAfterConsecutiveFailures(t *testing.T) {
	provider := &fakeProvider{failNext: breakerFailures}
	alerter := &fakeAlerter{}
	client := NewClient(provider, alerter)

	start := Point{Lat: 1.0, Lng: 1.0}
	end := Point{Lat: 2.0, Lng: 2.0}

	for i := 0; i < breakerFailures; i++ {
		_, err := client.Directions(context.Background(), start, end)
		assert.Error(t, err)
	}

	_, err := client.Directions(context.Background(), start, end)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeRoutingUnavailable, appErr.ErrorCode)

	alerter.mu.Lock()
	defer alerter.mu.Unlock()
	assert.Contains(t, alerter.alerts, "ROUTING_CIRCUIT_OPEN")
}

func TestClient_Directions_NoSilentHaversineFallback(t *testing.T) {
	provider := &fakeProvider{directErr: errors.New("boom")}
	client := NewClient(provider, nil)

	_, err := client.Directions(context.Background(), Point{Lat: 5, Lng: 5}, Point{Lat: 6, Lng: 6})
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.NotEqual(t, apperr.CodeRoutingUnavailable, appErr.ErrorCode)
}
