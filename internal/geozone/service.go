package geozone

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/richxcame/dispatch-core/pkg/logger"
	redisClient "github.com/richxcame/dispatch-core/pkg/redis"
	"go.uber.org/zap"
)

const (
	surgePrefix  = "h3:surge:"
	demandPrefix = "h3:demand:"
)

// SurgeInfo is the supply/demand snapshot for one surge zone.
type SurgeInfo struct {
	H3Cell          string    `json:"h3_cell"`
	SurgeMultiplier float64   `json:"surge_multiplier"`
	DemandCount     int       `json:"demand_count"`
	SupplyCount     int       `json:"supply_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DemandInfo is a request counter for one demand heatmap cell.
type DemandInfo struct {
	H3Cell       string  `json:"h3_cell"`
	RequestCount int     `json:"request_count"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
}

// Service maintains the surge-pricing and demand-heatmap zones that sit
// alongside the location and dispatch services as supplementary analytics — not read by the dispatch
// candidate-selection path, only by pricing and the admin heatmap view.
type Service struct {
	redis redisClient.ClientInterface
}

// NewService creates a new zone-indexing service.
func NewService(redis redisClient.ClientInterface) *Service {
	return &Service{redis: redis}
}

// GetSurgeInfo returns current surge data for the zone containing lat/lng.
func (s *Service) GetSurgeInfo(ctx context.Context, lat, lng float64) (*SurgeInfo, error) {
	zone := GetSurgeZone(lat, lng)
	key := surgePrefix + zone

	data, err := s.redis.GetString(ctx, key)
	if err != nil {
		return &SurgeInfo{H3Cell: zone, SurgeMultiplier: 1.0, UpdatedAt: time.Now()}, nil
	}

	var info SurgeInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return nil, fmt.Errorf("unmarshal surge info: %w", err)
	}
	return &info, nil
}

// UpdateSurgeInfo recomputes and stores the surge multiplier for a zone
// from current demand/supply counts.
func (s *Service) UpdateSurgeInfo(ctx context.Context, lat, lng float64, demandCount, supplyCount int) error {
	zone := GetSurgeZone(lat, lng)
	info := &SurgeInfo{
		H3Cell:          zone,
		SurgeMultiplier: surgeMultiplier(demandCount, supplyCount),
		DemandCount:     demandCount,
		SupplyCount:     supplyCount,
		UpdatedAt:       time.Now(),
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal surge info: %w", err)
	}
	return s.redis.SetWithExpiration(ctx, surgePrefix+zone, data, 5*time.Minute)
}

// IncrementDemand records one ride request against the demand heatmap.
// Best-effort: failures are logged, not returned, since demand tracking
// must never block trip creation.
func (s *Service) IncrementDemand(ctx context.Context, lat, lng float64) {
	zone := GetDemandZone(lat, lng)
	key := demandPrefix + zone

	count := 0
	if data, err := s.redis.GetString(ctx, key); err == nil {
		var info DemandInfo
		if json.Unmarshal([]byte(data), &info) == nil {
			count = info.RequestCount
		}
	}

	centerLat, centerLng := CellToLatLng(LatLngToCell(lat, lng, ResolutionDemand))
	info := &DemandInfo{H3Cell: zone, RequestCount: count + 1, Latitude: centerLat, Longitude: centerLng}

	data, err := json.Marshal(info)
	if err != nil {
		logger.WarnContext(ctx, "failed to marshal demand info", zap.Error(err))
		return
	}

	if err := s.redis.SetWithExpiration(ctx, key, data, 15*time.Minute); err != nil {
		logger.WarnContext(ctx, "failed to persist demand info", zap.Error(err))
	}
}

// GetDemandHeatmap returns non-empty demand cells within a 3-ring
// neighborhood of lat/lng.
func (s *Service) GetDemandHeatmap(ctx context.Context, lat, lng float64) ([]*DemandInfo, error) {
	cells := GetKRingCellStrings(lat, lng, ResolutionDemand, 3)
	heatmap := make([]*DemandInfo, 0, len(cells))

	for _, cellStr := range cells {
		data, err := s.redis.GetString(ctx, demandPrefix+cellStr)
		if err != nil {
			continue
		}
		var info DemandInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			continue
		}
		if info.RequestCount > 0 {
			heatmap = append(heatmap, &info)
		}
	}

	return heatmap, nil
}

// surgeMultiplier maps a demand/supply ratio to a capped multiplier.
func surgeMultiplier(demand, supply int) float64 {
	if supply == 0 {
		if demand == 0 {
			return 1.0
		}
		return 3.0
	}

	ratio := float64(demand) / float64(supply)
	switch {
	case ratio <= 1.0:
		return 1.0
	case ratio <= 1.5:
		return 1.0 + (ratio-1.0)*0.5
	case ratio <= 2.0:
		return 1.25 + (ratio-1.5)*0.75
	case ratio <= 3.0:
		return 1.625 + (ratio-2.0)*0.625
	default:
		surge := 2.25 + (ratio-3.0)*0.25
		if surge > 3.0 {
			surge = 3.0
		}
		return math.Round(surge*100) / 100
	}
}
