package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/richxcame/dispatch-core/pkg/httpclient"
)

const (
	googleMapsBaseURL           = "https://maps.googleapis.com/maps/api"
	googleDirectionsEndpoint    = "/directions/json"
	googleDistanceMatrixEndpoint = "/distancematrix/json"
)

// GoogleProvider implements Provider against the Google Maps Directions
// and Distance Matrix APIs.
type GoogleProvider struct {
	apiKey string
	client *httpclient.Client
}

// NewGoogleProvider creates a provider with the given API key and
// request timeout.
func NewGoogleProvider(apiKey string, timeout time.Duration) *GoogleProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GoogleProvider{
		apiKey: apiKey,
		client: httpclient.NewClient(googleMapsBaseURL, timeout),
	}
}

func (g *GoogleProvider) Name() string { return "google" }

func (g *GoogleProvider) Directions(ctx context.Context, start, end Point) (*Route, error) {
	params := url.Values{}
	params.Set("origin", formatPoint(start))
	params.Set("destination", formatPoint(end))
	params.Set("key", g.apiKey)
	params.Set("mode", "driving")
	params.Set("departure_time", "now")
	params.Set("units", "metric")

	resp, err := g.client.Get(ctx, googleDirectionsEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("directions request: %w", err)
	}

	var parsed googleDirectionsResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return nil, fmt.Errorf("parse directions response: %w", err)
	}
	if parsed.Status != "OK" {
		return nil, fmt.Errorf("google directions error: %s - %s", parsed.Status, parsed.ErrorMessage)
	}
	if len(parsed.Routes) == 0 {
		return nil, fmt.Errorf("google directions: no routes")
	}

	route := parsed.Routes[0]
	result := &Route{Polyline: route.OverviewPolyline.Points}
	for _, leg := range route.Legs {
		result.DistanceMeters += leg.Distance.Value
		result.DurationSec += leg.Duration.Value
	}
	return result, nil
}

func (g *GoogleProvider) Matrix(ctx context.Context, points []Point) (*Matrix, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("matrix requires at least 2 points")
	}

	locations := make([]string, len(points))
	for i, p := range points {
		locations[i] = formatPoint(p)
	}
	joined := strings.Join(locations, "|")

	params := url.Values{}
	params.Set("origins", joined)
	params.Set("destinations", joined)
	params.Set("key", g.apiKey)
	params.Set("mode", "driving")
	params.Set("units", "metric")

	resp, err := g.client.Get(ctx, googleDistanceMatrixEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("matrix request: %w", err)
	}

	var parsed googleDistanceMatrixResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return nil, fmt.Errorf("parse matrix response: %w", err)
	}
	if parsed.Status != "OK" {
		return nil, fmt.Errorf("google matrix error: %s - %s", parsed.Status, parsed.ErrorMessage)
	}

	distances := make([][]int, len(parsed.Rows))
	durations := make([][]int, len(parsed.Rows))
	for i, row := range parsed.Rows {
		distances[i] = make([]int, len(row.Elements))
		durations[i] = make([]int, len(row.Elements))
		for j, el := range row.Elements {
			if el.Status != "OK" {
				continue
			}
			distances[i][j] = el.Distance.Value
			durations[i][j] = el.Duration.Value
		}
	}
	return &Matrix{Distances: distances, Durations: durations}, nil
}

func formatPoint(p Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}

type googleValue struct {
	Value int `json:"value"`
}

type googleDirectionsResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Routes       []googleRoute `json:"routes"`
}

type googleRoute struct {
	Legs             []googleLeg    `json:"legs"`
	OverviewPolyline googlePolyline `json:"overview_polyline"`
}

type googleLeg struct {
	Distance googleValue `json:"distance"`
	Duration googleValue `json:"duration"`
}

type googlePolyline struct {
	Points string `json:"points"`
}

type googleDistanceMatrixResponse struct {
	Status       string                    `json:"status"`
	ErrorMessage string                    `json:"error_message,omitempty"`
	Rows         []googleDistanceMatrixRow `json:"rows"`
}

type googleDistanceMatrixRow struct {
	Elements []googleDistanceMatrixElement `json:"elements"`
}

type googleDistanceMatrixElement struct {
	Status   string      `json:"status"`
	Distance googleValue `json:"distance"`
	Duration googleValue `json:"duration"`
}
