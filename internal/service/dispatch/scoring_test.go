package dispatch

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
)

func strongCandidate(distanceKm float64) models.CourierCandidate {
	now := time.Now()
	return models.CourierCandidate{
		ID:                 uuid.New(),
		Name:               "Awa Diop",
		Status:             types.StatusCourierAvailable,
		Level:              types.LevelPlatinum,
		Rating:             5,
		TotalDeliveries:    5000,
		AcceptanceRate:     1,
		AvgResponseSec:     0,
		WalletBalance:      0,
		DebtCeiling:        1000,
		LastPingAt:         now,
		OnlineSince:        now.Add(-3 * time.Hour),
		DistanceToPickupKm: distanceKm,
	}
}

func TestDefaultConfigurationWeightsSumToOne(t *testing.T) {
	cfg := models.DefaultDispatchConfiguration()
	assert.True(t, cfg.WeightsValid())
	assert.InDelta(t, 1.0, cfg.WeightSum(), 1e-9)
}

func TestWeightsValid_Property(t *testing.T) {
	// Any eight non-negative weights normalized by their own sum must pass
	// the validity check; the same weights unnormalized (sum != 1) must not.
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		w := make([]float64, 8)
		sum := 0.0
		for j := range w {
			w[j] = rng.Float64() + 0.01
			sum += w[j]
		}

		cfg := models.DispatchConfiguration{
			WeightDistance:     w[0] / sum,
			WeightRating:       w[1] / sum,
			WeightHistory:      w[2] / sum,
			WeightAvailability: w[3] / sum,
			WeightFinancial:    w[4] / sum,
			WeightResponse:     w[5] / sum,
			WeightLevel:        w[6] / sum,
			WeightAcceptance:   w[7] / sum,
		}
		assert.True(t, cfg.WeightsValid(), "normalized weights must be valid")

		cfg.WeightDistance += 0.5
		assert.False(t, cfg.WeightsValid(), "shifted weights must be invalid")
	}
}

func TestDistanceScoreIsNonIncreasing(t *testing.T) {
	const radiusKm = 10.0
	prev := 101.0
	for d := 0.0; d <= 12; d += 0.25 {
		score := distanceScore(d, radiusKm)
		assert.LessOrEqual(t, score, prev, "distance %f", d)
		prev = score
	}
	assert.Zero(t, distanceScore(radiusKm, radiusKm))
	assert.Zero(t, distanceScore(radiusKm+5, radiusKm))
}

func TestScore_TotalComposesWeightedComponents(t *testing.T) {
	engine := NewScoringEngine()
	cfg := models.DefaultDispatchConfiguration()

	scored := engine.Score(cfg, []models.CourierCandidate{strongCandidate(0)}, 5, time.Now())
	require.Len(t, scored, 1)

	// A flawless candidate at the pickup point maxes every component.
	assert.InDelta(t, 100, scored[0].TotalScore, 2)
	for name, component := range scored[0].Components {
		assert.GreaterOrEqual(t, component, 95.0, "component %s", name)
	}
}

func TestScore_DropsCandidatesBelowThreshold(t *testing.T) {
	engine := NewScoringEngine()
	cfg := models.DefaultDispatchConfiguration()
	cfg.MinScoreThreshold = 60

	weak := strongCandidate(4.9)
	weak.Rating = 1
	weak.TotalDeliveries = 0
	weak.AcceptanceRate = 0.1
	weak.AvgResponseSec = 55
	weak.Level = types.LevelBronze
	weak.WalletBalance = -900

	scored := engine.Score(cfg, []models.CourierCandidate{strongCandidate(0), weak}, 5, time.Now())
	require.Len(t, scored, 1)
	assert.Equal(t, "Awa Diop", scored[0].Name)
}

func TestScore_SortsByTotalThenDistance(t *testing.T) {
	engine := NewScoringEngine()
	cfg := models.DefaultDispatchConfiguration()

	near := strongCandidate(1)
	far := strongCandidate(3)
	// Identical profiles except distance: near must rank first.
	scored := engine.Score(cfg, []models.CourierCandidate{far, near}, 5, time.Now())
	require.Len(t, scored, 2)
	assert.Equal(t, near.ID, scored[0].ID)
	assert.Equal(t, far.ID, scored[1].ID)
	assert.GreaterOrEqual(t, scored[0].TotalScore, scored[1].TotalScore)
}

func TestFinancialScore(t *testing.T) {
	assert.InDelta(t, 100, financialScore(0, 1000), 0.01)
	assert.InDelta(t, 50, financialScore(-500, 1000), 0.01)
	assert.InDelta(t, 0, financialScore(-1000, 1000), 0.01)
	assert.InDelta(t, 100, financialScore(2500, 1000), 0.01)
	assert.InDelta(t, 100, financialScore(10, 0), 0.01)
	assert.InDelta(t, 0, financialScore(-10, 0), 0.01)
}

func TestLevelScoreIsMonotonic(t *testing.T) {
	cfg := models.DefaultDispatchConfiguration()
	levels := []types.CourierLevel{types.LevelBronze, types.LevelSilver, types.LevelGold, types.LevelPlatinum}
	prev := -1.0
	for _, level := range levels {
		score := cfg.LevelScore(level)
		assert.Greater(t, score, prev, "level %s", level)
		prev = score
	}
}
