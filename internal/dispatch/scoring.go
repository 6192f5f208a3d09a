package dispatch

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/geo"
	"github.com/richxcame/dispatch-core/pkg/models"
)

// candidate is a driver under scoring consideration for one trip.
type candidate struct {
	driverID       uuid.UUID
	etaMinutes     float64
	rating         float64
	acceptanceRate float64
	serviceMatch   bool
	lastAcceptedAt *time.Time
	score          float64
}

// score computes the weighted multi-factor score for c under cfg, per
// the configured weights:
//
//	etaNorm        = 1 - clamp(etaMin / MaxETAMinutes, 0, 1)  (0 when MaxETAMinutes <= 0)
//	ratingNorm     = rating / 5
//	acceptanceNorm = driver's rolling acceptance rate
//	serviceBonus   = 1 if serviceType matches else 0
//	score = wETA*etaNorm + wRating*ratingNorm + wAccept*acceptanceNorm + wService*serviceBonus
func score(c candidate, cfg models.DispatchConfig) float64 {
	etaNorm := 0.0
	if cfg.MaxETAMinutes > 0 {
		etaNorm = 1 - geo.Clamp(c.etaMinutes/cfg.MaxETAMinutes, 0, 1)
	}
	ratingNorm := geo.Clamp(c.rating/5, 0, 1)
	acceptanceNorm := geo.Clamp(c.acceptanceRate, 0, 1)
	serviceBonus := 0.0
	if c.serviceMatch {
		serviceBonus = 1
	}

	return cfg.WeightETA*etaNorm +
		cfg.WeightRating*ratingNorm +
		cfg.WeightAcceptance*acceptanceNorm +
		cfg.ServiceMatchBonus*serviceBonus
}

// rankCandidates scores every candidate and orders them best-first, with
// ties broken by smaller etaMinutes, then earlier lastAcceptedAt (nil
// sorts last, treated as "never accepted" — maximally stale).
func rankCandidates(candidates []candidate, cfg models.DispatchConfig) []candidate {
	for i := range candidates {
		candidates[i].score = score(candidates[i], cfg)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.etaMinutes != b.etaMinutes {
			return a.etaMinutes < b.etaMinutes
		}
		switch {
		case a.lastAcceptedAt == nil && b.lastAcceptedAt == nil:
			return false
		case a.lastAcceptedAt == nil:
			return false
		case b.lastAcceptedAt == nil:
			return true
		default:
			return a.lastAcceptedAt.Before(*b.lastAcceptedAt)
		}
	})
	return candidates
}
