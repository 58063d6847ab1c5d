package dispatch

import (
	"math"
	"sort"
	"time"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
)

// Normalization anchors for the component scores. Each component maps its
// raw signal onto 0..100 so the configured weights compare like with like.
const (
	maxRating = 5.0
	// historyHalfway is the delivery count at which the history component
	// reaches 50: diminishing returns, a veteran is not 100x a novice.
	historyHalfway = 50.0
	// availabilityRampUp is the online duration after which the session
	// part of the availability component saturates.
	availabilityRampUp = 2 * time.Hour
	// pingFreshnessWindow is the ping age at which the freshness part of
	// the availability component reaches zero.
	pingFreshnessWindow = 5 * time.Minute
	// worstResponseSec is the average offer response latency that scores
	// zero; instant acceptance scores 100.
	worstResponseSec = 60.0
)

// ScoringEngine ranks dispatch candidates with the configured weights.
// It is stateless; all tuning lives in DispatchConfiguration.
type ScoringEngine struct{}

func NewScoringEngine() *ScoringEngine {
	return &ScoringEngine{}
}

// Score computes the weighted total for every candidate, drops those below
// the minimum threshold and returns the rest sorted by total descending,
// ties broken by distance ascending.
func (e *ScoringEngine) Score(cfg models.DispatchConfiguration, candidates []models.CourierCandidate, radiusKm float64, now time.Time) []models.ScoredCandidate {
	scored := make([]models.ScoredCandidate, 0, len(candidates))

	for _, c := range candidates {
		components := map[string]float64{
			models.ScoreDistance:     distanceScore(c.DistanceToPickupKm, radiusKm),
			models.ScoreRating:       ratingScore(c.Rating),
			models.ScoreHistory:      historyScore(c.TotalDeliveries),
			models.ScoreAvailability: availabilityScore(c.OnlineSince, c.LastPingAt, now),
			models.ScoreFinancial:    financialScore(c.WalletBalance, c.DebtCeiling),
			models.ScoreResponse:     responseScore(c.AvgResponseSec),
			models.ScoreLevel:        cfg.LevelScore(c.Level),
			models.ScoreAcceptance:   acceptanceScore(c.AcceptanceRate),
		}

		total := cfg.WeightDistance*components[models.ScoreDistance] +
			cfg.WeightRating*components[models.ScoreRating] +
			cfg.WeightHistory*components[models.ScoreHistory] +
			cfg.WeightAvailability*components[models.ScoreAvailability] +
			cfg.WeightFinancial*components[models.ScoreFinancial] +
			cfg.WeightResponse*components[models.ScoreResponse] +
			cfg.WeightLevel*components[models.ScoreLevel] +
			cfg.WeightAcceptance*components[models.ScoreAcceptance]

		if total < cfg.MinScoreThreshold {
			continue
		}

		scored = append(scored, models.ScoredCandidate{
			CourierCandidate: c,
			Components:       components,
			TotalScore:       total,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].TotalScore != scored[j].TotalScore {
			return scored[i].TotalScore > scored[j].TotalScore
		}
		return scored[i].DistanceToPickupKm < scored[j].DistanceToPickupKm
	})

	return scored
}

// distanceScore decays linearly from 100 at the pickup to 0 at the search
// radius. Monotonically non-increasing in distance.
func distanceScore(distanceKm, radiusKm float64) float64 {
	if radiusKm <= 0 {
		return 0
	}
	return clamp100(100 * (1 - distanceKm/radiusKm))
}

func ratingScore(rating float64) float64 {
	return clamp100(rating / maxRating * 100)
}

// historyScore saturates towards 100 as completed deliveries grow.
func historyScore(totalDeliveries int) float64 {
	d := float64(totalDeliveries)
	if d < 0 {
		d = 0
	}
	return 100 * d / (d + historyHalfway)
}

// availabilityScore blends ping freshness (dominant) with the length of the
// current online session.
func availabilityScore(onlineSince, lastPingAt time.Time, now time.Time) float64 {
	freshness := 1 - now.Sub(lastPingAt).Seconds()/pingFreshnessWindow.Seconds()
	if freshness < 0 {
		freshness = 0
	} else if freshness > 1 {
		freshness = 1
	}

	session := now.Sub(onlineSince).Seconds() / availabilityRampUp.Seconds()
	if session < 0 {
		session = 0
	} else if session > 1 {
		session = 1
	}

	return clamp100(100 * (0.6*freshness + 0.4*session))
}

// financialScore measures headroom to the debt ceiling: a courier at the
// ceiling scores 0, one at or above a zero balance scores 100.
func financialScore(walletBalance, debtCeiling float64) float64 {
	if debtCeiling <= 0 {
		if walletBalance >= 0 {
			return 100
		}
		return 0
	}
	return clamp100((walletBalance + debtCeiling) / debtCeiling * 100)
}

func responseScore(avgResponseSec float64) float64 {
	if avgResponseSec <= 0 {
		return 100
	}
	return clamp100(100 * (1 - avgResponseSec/worstResponseSec))
}

func acceptanceScore(rate float64) float64 {
	return clamp100(rate * 100)
}

func clamp100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
