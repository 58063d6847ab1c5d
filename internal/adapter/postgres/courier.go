package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
	"github.com/velodrop/courier-dispatch-system/pkg/metrics"
)

type CourierRepo struct {
	db *pgxpool.Pool
}

func NewCourierRepo(db *pgxpool.Pool) *CourierRepo {
	return &CourierRepo{
		db: db,
	}
}

func (r *CourierRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Courier, error) {
	const op = "CourierRepo.GetByID"
	query := `
		SELECT id, name, created_at, updated_at, status, level, rating,
		       total_deliveries, acceptance_rate, avg_response_sec,
		       wallet_balance, debt_ceiling, is_verified, is_blocked,
		       last_ping_at, online_since
		FROM couriers
		WHERE id = $1`

	var c models.Courier
	err := TxorDB(ctx, r.db).QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt, &c.Status, &c.Level,
		&c.Rating, &c.TotalDeliveries, &c.AcceptanceRate, &c.AvgResponseSec,
		&c.WalletBalance, &c.DebtCeiling, &c.IsVerified, &c.IsBlocked,
		&c.LastPingAt, &c.OnlineSince,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrCourierNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return &c, nil
}

// FindNearby runs the radius query with the haversine formula directly in
// SQL, so the roster never crosses the wire unfiltered. Results come back
// ordered by distance ascending.
func (r *CourierRepo) FindNearby(ctx context.Context, pickup models.Location, radiusKm float64, excludeBusy bool) ([]models.CourierCandidate, error) {
	const op = "CourierRepo.FindNearby"
	query := `
		SELECT id, name, status, level, rating, total_deliveries,
		       acceptance_rate, avg_response_sec, wallet_balance, debt_ceiling,
		       last_ping_at, online_since, latitude, longitude, distance_km
		FROM (
			SELECT c.*,
			       6371 * acos(least(1.0,
			           cos(radians($1)) * cos(radians(c.latitude)) *
			           cos(radians(c.longitude) - radians($2)) +
			           sin(radians($1)) * sin(radians(c.latitude))
			       )) AS distance_km
			FROM couriers c
			WHERE c.is_verified
			  AND NOT c.is_blocked
			  AND c.status != 'OFFLINE'
			  AND ($4 = false OR c.status = 'AVAILABLE')
		) nearby
		WHERE distance_km <= $3
		ORDER BY distance_km ASC`

	start := time.Now()
	rows, err := TxorDB(ctx, r.db).Query(ctx, query, pickup.Latitude, pickup.Longitude, radiusKm, excludeBusy)
	metrics.RecordDatabaseQuery("dispatch-service", "courier_find_nearby", err, time.Since(start))
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var candidates []models.CourierCandidate
	for rows.Next() {
		var c models.CourierCandidate
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Status, &c.Level, &c.Rating, &c.TotalDeliveries,
			&c.AcceptanceRate, &c.AvgResponseSec, &c.WalletBalance, &c.DebtCeiling,
			&c.LastPingAt, &c.OnlineSince,
			&c.Location.Latitude, &c.Location.Longitude, &c.DistanceToPickupKm,
		); err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return candidates, nil
}

// ChangeStatus updates the courier status and returns the previous one, so
// callers can publish the transition without a second read.
func (r *CourierRepo) ChangeStatus(ctx context.Context, id uuid.UUID, status types.CourierStatus) (types.CourierStatus, error) {
	const op = "CourierRepo.ChangeStatus"
	query := `
		WITH prior AS (
			SELECT status FROM couriers WHERE id = $1
		)
		UPDATE couriers c
		SET status = $2, updated_at = now()
		FROM prior
		WHERE c.id = $1
		RETURNING prior.status`

	var previous types.CourierStatus
	if err := TxorDB(ctx, r.db).QueryRow(ctx, query, id, status).Scan(&previous); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.ErrCourierNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return "", wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return previous, nil
}

// SetOnline opens a work session at the given position.
func (r *CourierRepo) SetOnline(ctx context.Context, id uuid.UUID, location models.Location) error {
	const op = "CourierRepo.SetOnline"
	query := `
		UPDATE couriers
		SET status = 'AVAILABLE', latitude = $2, longitude = $3,
		    online_since = now(), last_ping_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'OFFLINE'`

	tag, err := TxorDB(ctx, r.db).Exec(ctx, query, id, location.Latitude, location.Longitude)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return types.ErrCourierAlreadyOnline
	}

	return nil
}

func (r *CourierRepo) SetOffline(ctx context.Context, id uuid.UUID) error {
	const op = "CourierRepo.SetOffline"
	query := `
		UPDATE couriers
		SET status = 'OFFLINE', updated_at = now()
		WHERE id = $1 AND status != 'OFFLINE'`

	tag, err := TxorDB(ctx, r.db).Exec(ctx, query, id)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return types.ErrCourierOffline
	}

	return nil
}

// UpdateLocation refreshes the courier's position and ping timestamp.
// Offline couriers are not tracked.
func (r *CourierRepo) UpdateLocation(ctx context.Context, id uuid.UUID, location models.Location) error {
	const op = "CourierRepo.UpdateLocation"
	query := `
		UPDATE couriers
		SET latitude = $2, longitude = $3, last_ping_at = now()
		WHERE id = $1 AND status != 'OFFLINE'`

	tag, err := TxorDB(ctx, r.db).Exec(ctx, query, id, location.Latitude, location.Longitude)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return types.ErrCourierOffline
	}

	return nil
}

// CountByStatus groups the roster by status for the admin overview.
func (r *CourierRepo) CountByStatus(ctx context.Context) (map[types.CourierStatus]int, error) {
	const op = "CourierRepo.CountByStatus"
	query := `
		SELECT status, count(*)
		FROM couriers
		GROUP BY status`

	start := time.Now()
	rows, err := TxorDB(ctx, r.db).Query(ctx, query)
	metrics.RecordDatabaseQuery("dispatch-service", "courier_count_by_status", err, time.Since(start))
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	counts := make(map[types.CourierStatus]int)
	for rows.Next() {
		var status types.CourierStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return counts, nil
}
