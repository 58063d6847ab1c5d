package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
)

// CourierRepo reads the courier roster and their last known positions.
type CourierRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Courier, error)
	// FindNearby returns online, verified, non-blocked couriers within
	// radiusKm of the pickup point, ordered by distance ascending.
	// When excludeBusy is set, couriers on an active delivery are skipped.
	FindNearby(ctx context.Context, pickup models.Location, radiusKm float64, excludeBusy bool) ([]models.CourierCandidate, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, status types.CourierStatus) (types.CourierStatus, error)
	SetOnline(ctx context.Context, id uuid.UUID, location models.Location) error
	SetOffline(ctx context.Context, id uuid.UUID) error
	UpdateLocation(ctx context.Context, id uuid.UUID, location models.Location) error
}

// OrderRepo gives the dispatch engine its window into the order store.
type OrderRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// AssignIfPending atomically sets the courier and flips the status to
	// ASSIGNED only while the order is still PENDING. Returns false when
	// another courier won the race or the order left PENDING.
	AssignIfPending(ctx context.Context, orderID, courierID uuid.UUID) (bool, error)
}

// ConfigRepo persists the singleton dispatch configuration.
type ConfigRepo interface {
	Get(ctx context.Context) (*models.DispatchConfiguration, error)
	Save(ctx context.Context, cfg models.DispatchConfiguration) error
}

// OfferSender delivers offers and offer outcomes to a connected courier.
// The WebSocket hub implements it; delivery is best-effort.
type OfferSender interface {
	SendOffer(courierID uuid.UUID, offer models.OrderOffer) error
	SendOfferResult(courierID uuid.UUID, result models.OrderOfferResult) error
}

// Publisher emits dispatch lifecycle events to the notification bus.
type Publisher interface {
	OrderAssigned(ctx context.Context, msg models.OrderStatusUpdateMessage) error
	OrderCancelled(ctx context.Context, msg models.OrderStatusUpdateMessage) error
	DispatchExhausted(ctx context.Context, msg models.DispatchExhaustedMessage) error
	CourierStatusChanged(ctx context.Context, msg models.CourierStatusUpdateMessage) error
}
