package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

// DispatchConfigRepo stores the singleton configuration in a one-row table.
type DispatchConfigRepo struct {
	db *pgxpool.Pool
}

func NewDispatchConfigRepo(db *pgxpool.Pool) *DispatchConfigRepo {
	return &DispatchConfigRepo{
		db: db,
	}
}

func (r *DispatchConfigRepo) Get(ctx context.Context) (*models.DispatchConfiguration, error) {
	const op = "DispatchConfigRepo.Get"
	query := `
		SELECT weight_distance, weight_rating, weight_history, weight_availability,
		       weight_financial, weight_response, weight_level, weight_acceptance,
		       initial_radius_km, radius_increment_km, max_radius_km,
		       min_score_threshold, auto_assign_threshold,
		       level_score_bronze, level_score_silver, level_score_gold, level_score_platinum,
		       updated_at
		FROM dispatch_configuration
		WHERE singleton = true`

	var c models.DispatchConfiguration
	err := TxorDB(ctx, r.db).QueryRow(ctx, query).Scan(
		&c.WeightDistance, &c.WeightRating, &c.WeightHistory, &c.WeightAvailability,
		&c.WeightFinancial, &c.WeightResponse, &c.WeightLevel, &c.WeightAcceptance,
		&c.InitialRadiusKm, &c.RadiusIncrementKm, &c.MaxRadiusKm,
		&c.MinScoreThreshold, &c.AutoAssignThreshold,
		&c.LevelScoreBronze, &c.LevelScoreSilver, &c.LevelScoreGold, &c.LevelScorePlatinum,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrConfigNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return &c, nil
}

func (r *DispatchConfigRepo) Save(ctx context.Context, cfg models.DispatchConfiguration) error {
	const op = "DispatchConfigRepo.Save"
	query := `
		INSERT INTO dispatch_configuration(
			singleton,
			weight_distance, weight_rating, weight_history, weight_availability,
			weight_financial, weight_response, weight_level, weight_acceptance,
			initial_radius_km, radius_increment_km, max_radius_km,
			min_score_threshold, auto_assign_threshold,
			level_score_bronze, level_score_silver, level_score_gold, level_score_platinum,
			updated_at)
		VALUES(true, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (singleton) DO UPDATE
		SET weight_distance = EXCLUDED.weight_distance,
		    weight_rating = EXCLUDED.weight_rating,
		    weight_history = EXCLUDED.weight_history,
		    weight_availability = EXCLUDED.weight_availability,
		    weight_financial = EXCLUDED.weight_financial,
		    weight_response = EXCLUDED.weight_response,
		    weight_level = EXCLUDED.weight_level,
		    weight_acceptance = EXCLUDED.weight_acceptance,
		    initial_radius_km = EXCLUDED.initial_radius_km,
		    radius_increment_km = EXCLUDED.radius_increment_km,
		    max_radius_km = EXCLUDED.max_radius_km,
		    min_score_threshold = EXCLUDED.min_score_threshold,
		    auto_assign_threshold = EXCLUDED.auto_assign_threshold,
		    level_score_bronze = EXCLUDED.level_score_bronze,
		    level_score_silver = EXCLUDED.level_score_silver,
		    level_score_gold = EXCLUDED.level_score_gold,
		    level_score_platinum = EXCLUDED.level_score_platinum,
		    updated_at = EXCLUDED.updated_at`

	if _, err := TxorDB(ctx, r.db).Exec(ctx, query,
		cfg.WeightDistance, cfg.WeightRating, cfg.WeightHistory, cfg.WeightAvailability,
		cfg.WeightFinancial, cfg.WeightResponse, cfg.WeightLevel, cfg.WeightAcceptance,
		cfg.InitialRadiusKm, cfg.RadiusIncrementKm, cfg.MaxRadiusKm,
		cfg.MinScoreThreshold, cfg.AutoAssignThreshold,
		cfg.LevelScoreBronze, cfg.LevelScoreSilver, cfg.LevelScoreGold, cfg.LevelScorePlatinum,
		cfg.UpdatedAt,
	); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return nil
}
