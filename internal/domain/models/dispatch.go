package models

import (
	"math"
	"time"

	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
)

// Scoring component keys, shared between the scoring engine and configuration.
const (
	ScoreDistance     = "distance"
	ScoreRating       = "rating"
	ScoreHistory      = "history"
	ScoreAvailability = "availability"
	ScoreFinancial    = "financial"
	ScoreResponse     = "response"
	ScoreLevel        = "level"
	ScoreAcceptance   = "acceptance"
)

// DispatchConfiguration is the singleton weight/threshold set used by the
// scoring engine and the orchestrator. Cached, invalidated explicitly on update.
type DispatchConfiguration struct {
	WeightDistance     float64 `json:"weight_distance"`
	WeightRating       float64 `json:"weight_rating"`
	WeightHistory      float64 `json:"weight_history"`
	WeightAvailability float64 `json:"weight_availability"`
	WeightFinancial    float64 `json:"weight_financial"`
	WeightResponse     float64 `json:"weight_response"`
	WeightLevel        float64 `json:"weight_level"`
	WeightAcceptance   float64 `json:"weight_acceptance"`

	InitialRadiusKm   float64 `json:"initial_radius_km"`
	RadiusIncrementKm float64 `json:"radius_increment_km"`
	MaxRadiusKm       float64 `json:"max_radius_km"`

	MinScoreThreshold   float64 `json:"min_score_threshold"`
	AutoAssignThreshold float64 `json:"auto_assign_threshold"`

	LevelScoreBronze   float64 `json:"level_score_bronze"`
	LevelScoreSilver   float64 `json:"level_score_silver"`
	LevelScoreGold     float64 `json:"level_score_gold"`
	LevelScorePlatinum float64 `json:"level_score_platinum"`

	UpdatedAt time.Time `json:"updated_at"`
}

// weightSumTolerance absorbs float accumulation noise in the validity check.
const weightSumTolerance = 1e-6

// WeightSum returns the sum of the eight scoring weights.
func (c DispatchConfiguration) WeightSum() float64 {
	return c.WeightDistance + c.WeightRating + c.WeightHistory + c.WeightAvailability +
		c.WeightFinancial + c.WeightResponse + c.WeightLevel + c.WeightAcceptance
}

// WeightsValid reports whether the weights sum to 1.0. The engine still runs
// with invalid weights (fails open); callers surface this to operators.
func (c DispatchConfiguration) WeightsValid() bool {
	return math.Abs(c.WeightSum()-1.0) <= weightSumTolerance
}

// LevelScore maps a courier level to its configured component score.
func (c DispatchConfiguration) LevelScore(level types.CourierLevel) float64 {
	switch level {
	case types.LevelPlatinum:
		return c.LevelScorePlatinum
	case types.LevelGold:
		return c.LevelScoreGold
	case types.LevelSilver:
		return c.LevelScoreSilver
	default:
		return c.LevelScoreBronze
	}
}

// DefaultDispatchConfiguration returns the configuration used until an
// operator stores an explicit one.
func DefaultDispatchConfiguration() DispatchConfiguration {
	return DispatchConfiguration{
		WeightDistance:     0.25,
		WeightRating:       0.15,
		WeightHistory:      0.10,
		WeightAvailability: 0.10,
		WeightFinancial:    0.10,
		WeightResponse:     0.10,
		WeightLevel:        0.10,
		WeightAcceptance:   0.10,

		InitialRadiusKm:   3,
		RadiusIncrementKm: 2,
		MaxRadiusKm:       15,

		MinScoreThreshold:   30,
		AutoAssignThreshold: 80,

		LevelScoreBronze:   25,
		LevelScoreSilver:   50,
		LevelScoreGold:     75,
		LevelScorePlatinum: 100,
	}
}
