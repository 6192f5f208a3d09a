package dispatch

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestScore_WeightsCombineToExpectedValue(t *testing.T) {
	cfg := models.DispatchConfig{
		WeightETA:         0.40,
		WeightRating:      0.25,
		WeightAcceptance:  0.20,
		ServiceMatchBonus: 0.15,
		MaxETAMinutes:     20,
	}
	c := candidate{etaMinutes: 10, rating: 5, acceptanceRate: 1, serviceMatch: true}

	// etaNorm = 1 - 10/20 = 0.5; ratingNorm = 1; acceptanceNorm = 1; serviceBonus = 1
	want := 0.40*0.5 + 0.25*1 + 0.20*1 + 0.15*1
	assert.InDelta(t, want, score(c, cfg), 1e-9)
}

func TestScore_NoServiceMatchDropsBonus(t *testing.T) {
	cfg := models.DispatchConfig{WeightETA: 0.4, WeightRating: 0.25, WeightAcceptance: 0.2, ServiceMatchBonus: 0.15, MaxETAMinutes: 20}
	c := candidate{etaMinutes: 20, rating: 1, acceptanceRate: 0, serviceMatch: false}

	assert.InDelta(t, 0.0, score(c, cfg), 1e-9)
}

func TestScore_ETABeyondMaxClampsToZeroNorm(t *testing.T) {
	cfg := models.DispatchConfig{WeightETA: 1, MaxETAMinutes: 10}
	c := candidate{etaMinutes: 100, rating: 0, acceptanceRate: 0, serviceMatch: false}

	assert.InDelta(t, 0.0, score(c, cfg), 1e-9)
}

func TestRankCandidates_OrdersByScoreDescending(t *testing.T) {
	cfg := models.DispatchConfig{WeightETA: 1, MaxETAMinutes: 20}
	a := candidate{driverID: uuid.New(), etaMinutes: 0}  // etaNorm 1
	b := candidate{driverID: uuid.New(), etaMinutes: 10} // etaNorm 0.5
	c := candidate{driverID: uuid.New(), etaMinutes: 20} // etaNorm 0

	ranked := rankCandidates([]candidate{b, c, a}, cfg)

	assert.Equal(t, a.driverID, ranked[0].driverID)
	assert.Equal(t, b.driverID, ranked[1].driverID)
	assert.Equal(t, c.driverID, ranked[2].driverID)
}

func TestRankCandidates_TieBreaksBySmallerETAThenEarlierLastAccepted(t *testing.T) {
	cfg := models.DispatchConfig{WeightRating: 1} // eta doesn't affect score at all here
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	a := candidate{driverID: uuid.New(), rating: 5, etaMinutes: 5, lastAcceptedAt: &newer}
	b := candidate{driverID: uuid.New(), rating: 5, etaMinutes: 3, lastAcceptedAt: &older}
	c := candidate{driverID: uuid.New(), rating: 5, etaMinutes: 3, lastAcceptedAt: &newer}

	ranked := rankCandidates([]candidate{a, b, c}, cfg)

	// b and c tie on score and etaMinutes(3) beats a's etaMinutes(5); between b/c,
	// b's earlier lastAcceptedAt wins.
	assert.Equal(t, b.driverID, ranked[0].driverID)
	assert.Equal(t, c.driverID, ranked[1].driverID)
	assert.Equal(t, a.driverID, ranked[2].driverID)
}

func TestRankCandidates_NilLastAcceptedSortsLast(t *testing.T) {
	cfg := models.DispatchConfig{}
	withHistory := time.Now()
	a := candidate{driverID: uuid.New(), lastAcceptedAt: &withHistory}
	b := candidate{driverID: uuid.New(), lastAcceptedAt: nil}

	ranked := rankCandidates([]candidate{b, a}, cfg)
	assert.Equal(t, a.driverID, ranked[0].driverID)
	assert.Equal(t, b.driverID, ranked[1].driverID)
}
