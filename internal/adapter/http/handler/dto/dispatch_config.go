package dto

import (
	"time"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/pkg/validator"
)

type UpdateDispatchConfigReq struct {
	WeightDistance     *float64 `json:"weight_distance"`
	WeightRating       *float64 `json:"weight_rating"`
	WeightHistory      *float64 `json:"weight_history"`
	WeightAvailability *float64 `json:"weight_availability"`
	WeightFinancial    *float64 `json:"weight_financial"`
	WeightResponse     *float64 `json:"weight_response"`
	WeightLevel        *float64 `json:"weight_level"`
	WeightAcceptance   *float64 `json:"weight_acceptance"`

	InitialRadiusKm   *float64 `json:"initial_radius_km"`
	RadiusIncrementKm *float64 `json:"radius_increment_km"`
	MaxRadiusKm       *float64 `json:"max_radius_km"`

	MinScoreThreshold   *float64 `json:"min_score_threshold"`
	AutoAssignThreshold *float64 `json:"auto_assign_threshold"`

	LevelScoreBronze   *float64 `json:"level_score_bronze"`
	LevelScoreSilver   *float64 `json:"level_score_silver"`
	LevelScoreGold     *float64 `json:"level_score_gold"`
	LevelScorePlatinum *float64 `json:"level_score_platinum"`
}

func (r *UpdateDispatchConfigReq) Validate(v *validator.Validator) {
	weights := map[string]*float64{
		"weight_distance":     r.WeightDistance,
		"weight_rating":       r.WeightRating,
		"weight_history":      r.WeightHistory,
		"weight_availability": r.WeightAvailability,
		"weight_financial":    r.WeightFinancial,
		"weight_response":     r.WeightResponse,
		"weight_level":        r.WeightLevel,
		"weight_acceptance":   r.WeightAcceptance,
	}
	for key, w := range weights {
		v.Check(w != nil, key, "must be provided")
		if w != nil {
			v.Check(*w >= 0 && *w <= 1, key, "must be between 0 and 1")
		}
	}

	radii := map[string]*float64{
		"initial_radius_km":   r.InitialRadiusKm,
		"radius_increment_km": r.RadiusIncrementKm,
		"max_radius_km":       r.MaxRadiusKm,
	}
	for key, rad := range radii {
		v.Check(rad != nil, key, "must be provided")
		if rad != nil {
			v.Check(*rad > 0, key, "must be positive")
		}
	}
	if r.InitialRadiusKm != nil && r.MaxRadiusKm != nil {
		v.Check(*r.InitialRadiusKm <= *r.MaxRadiusKm, "max_radius_km", "must not be below initial_radius_km")
	}

	thresholds := map[string]*float64{
		"min_score_threshold":   r.MinScoreThreshold,
		"auto_assign_threshold": r.AutoAssignThreshold,
	}
	for key, t := range thresholds {
		v.Check(t != nil, key, "must be provided")
		if t != nil {
			v.Check(*t >= 0 && *t <= 100, key, "must be between 0 and 100")
		}
	}

	levels := map[string]*float64{
		"level_score_bronze":   r.LevelScoreBronze,
		"level_score_silver":   r.LevelScoreSilver,
		"level_score_gold":     r.LevelScoreGold,
		"level_score_platinum": r.LevelScorePlatinum,
	}
	for key, l := range levels {
		v.Check(l != nil, key, "must be provided")
		if l != nil {
			v.Check(*l >= 0 && *l <= 100, key, "must be between 0 and 100")
		}
	}
}

func (r *UpdateDispatchConfigReq) ToModel() models.DispatchConfiguration {
	return models.DispatchConfiguration{
		WeightDistance:     *r.WeightDistance,
		WeightRating:       *r.WeightRating,
		WeightHistory:      *r.WeightHistory,
		WeightAvailability: *r.WeightAvailability,
		WeightFinancial:    *r.WeightFinancial,
		WeightResponse:     *r.WeightResponse,
		WeightLevel:        *r.WeightLevel,
		WeightAcceptance:   *r.WeightAcceptance,

		InitialRadiusKm:   *r.InitialRadiusKm,
		RadiusIncrementKm: *r.RadiusIncrementKm,
		MaxRadiusKm:       *r.MaxRadiusKm,

		MinScoreThreshold:   *r.MinScoreThreshold,
		AutoAssignThreshold: *r.AutoAssignThreshold,

		LevelScoreBronze:   *r.LevelScoreBronze,
		LevelScoreSilver:   *r.LevelScoreSilver,
		LevelScoreGold:     *r.LevelScoreGold,
		LevelScorePlatinum: *r.LevelScorePlatinum,

		UpdatedAt: time.Now(),
	}
}
