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

// OrderRepo is the dispatch engine's window into the order store. Orders are
// created upstream; the engine mirrors the fields it needs and performs the
// atomic assignment.
type OrderRepo struct {
	db *pgxpool.Pool
}

func NewOrderRepo(db *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{
		db: db,
	}
}

// Upsert mirrors an order announced on the bus into the local store.
func (r *OrderRepo) Upsert(ctx context.Context, order *models.Order) error {
	const op = "OrderRepo.Upsert"
	query := `
		INSERT INTO orders(id, order_number, status, sender_id,
		                   pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		                   courier_earning, platform_fee, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET order_number = EXCLUDED.order_number,
		    pickup_lat = EXCLUDED.pickup_lat,
		    pickup_lng = EXCLUDED.pickup_lng,
		    dropoff_lat = EXCLUDED.dropoff_lat,
		    dropoff_lng = EXCLUDED.dropoff_lng,
		    courier_earning = EXCLUDED.courier_earning,
		    platform_fee = EXCLUDED.platform_fee`

	if _, err := TxorDB(ctx, r.db).Exec(ctx, query,
		order.ID,
		order.OrderNumber,
		order.Status,
		order.SenderID,
		order.Pickup.Latitude,
		order.Pickup.Longitude,
		order.Dropoff.Latitude,
		order.Dropoff.Longitude,
		order.CourierEarning,
		order.PlatformFee,
		order.CreatedAt,
	); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	const op = "OrderRepo.GetByID"
	query := `
		SELECT id, order_number, status, sender_id, courier_id,
		       pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		       courier_earning, platform_fee, cancellation_reason,
		       created_at, assigned_at, delivered_at, cancelled_at
		FROM orders
		WHERE id = $1`

	var o models.Order
	err := TxorDB(ctx, r.db).QueryRow(ctx, query, id).Scan(
		&o.ID, &o.OrderNumber, &o.Status, &o.SenderID, &o.CourierID,
		&o.Pickup.Latitude, &o.Pickup.Longitude,
		&o.Dropoff.Latitude, &o.Dropoff.Longitude,
		&o.CourierEarning, &o.PlatformFee, &o.CancellationReason,
		&o.CreatedAt, &o.AssignedAt, &o.DeliveredAt, &o.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrOrderNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return &o, nil
}

// AssignIfPending is the single-winner acceptance: the conditional update
// succeeds for exactly one courier, everyone else sees zero rows affected.
func (r *OrderRepo) AssignIfPending(ctx context.Context, orderID, courierID uuid.UUID) (bool, error) {
	const op = "OrderRepo.AssignIfPending"
	query := `
		UPDATE orders
		SET status = 'ASSIGNED', courier_id = $2, assigned_at = now()
		WHERE id = $1 AND status = 'PENDING'`

	start := time.Now()
	tag, err := TxorDB(ctx, r.db).Exec(ctx, query, orderID, courierID)
	metrics.RecordDatabaseQuery("dispatch-service", "order_assign_if_pending", err, time.Since(start))
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return false, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return tag.RowsAffected() == 1, nil
}

// Cancel marks a still-pending order cancelled. Orders already assigned are
// out of the dispatch engine's hands.
func (r *OrderRepo) Cancel(ctx context.Context, orderID uuid.UUID, reason string) error {
	const op = "OrderRepo.Cancel"
	query := `
		UPDATE orders
		SET status = 'CANCELLED', cancellation_reason = $2, cancelled_at = now()
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := TxorDB(ctx, r.db).Exec(ctx, query, orderID, reason)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		order, err := r.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%s: %w: order is %s", op, types.ErrOrderNotPending, order.Status)
	}

	return nil
}
