package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
)

// Order is owned by the external order store; the dispatch engine reads the
// pickup point and financial fields and performs the atomic assignment.
type Order struct {
	ID          uuid.UUID
	OrderNumber string
	Status      types.OrderStatus
	SenderID    uuid.UUID
	CourierID   *uuid.UUID

	Pickup  Location
	Dropoff Location

	// Financial fields read by the scoring engine
	CourierEarning float64
	PlatformFee    float64

	// Cancellation reason, present only on cancelled orders
	CancellationReason *string

	CreatedAt   time.Time
	AssignedAt  *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
}

/* ======================= rabbitmq ======================= */

type OrderCreatedMessage struct {
	OrderID        uuid.UUID `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	SenderID       uuid.UUID `json:"sender_id"`
	Pickup         Location  `json:"pickup"`
	Dropoff        Location  `json:"dropoff"`
	CourierEarning float64   `json:"courier_earning"`
	PlatformFee    float64   `json:"platform_fee"`
	CreatedAt      time.Time `json:"created_at"`
	CorrelationID  string    `json:"correlation_id"`
}

// ToOrder mirrors the announcement into a local pending order.
func (m OrderCreatedMessage) ToOrder() *Order {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Order{
		ID:             m.OrderID,
		OrderNumber:    m.OrderNumber,
		Status:         types.StatusOrderPending,
		SenderID:       m.SenderID,
		Pickup:         m.Pickup,
		Dropoff:        m.Dropoff,
		CourierEarning: m.CourierEarning,
		PlatformFee:    m.PlatformFee,
		CreatedAt:      createdAt,
	}
}

type OrderStatusUpdateMessage struct {
	OrderID       uuid.UUID  `json:"order_id"`
	Status        string     `json:"status"`
	Timestamp     time.Time  `json:"timestamp"`
	CourierID     *uuid.UUID `json:"courier_id,omitempty"`
	CorrelationID string     `json:"correlation_id"`
}

type DispatchExhaustedMessage struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	FinalRadiusKm float64   `json:"final_radius_km"`
	Attempts      int       `json:"attempts"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
}

/* ======================= Websocket ======================= */

// OrderOffer is pushed to a courier over WebSocket when an order is offered.
type OrderOffer struct {
	ID                 uuid.UUID `json:"offer_id"`
	MsgType            string    `json:"type"` // By default must be: "order_offer"
	OrderID            uuid.UUID `json:"order_id"`
	OrderNumber        string    `json:"order_number"`
	Pickup             Location  `json:"pickup"`
	Dropoff            Location  `json:"dropoff"`
	CourierEarning     float64   `json:"courier_earning"`
	DistanceToPickupKm float64   `json:"distance_to_pickup_km"`
	ExpiresAt          time.Time `json:"expires_at"`
}

type OrderOfferResponse struct {
	ID       uuid.UUID `json:"offer_id"`
	OrderID  uuid.UUID `json:"order_id"`
	Accepted bool      `json:"accepted"`
}

// Offer outcome values pushed back to couriers.
const (
	OfferOutcomeAssigned     = "assigned"
	OfferOutcomeAlreadyTaken = "already_taken"
	OfferOutcomeExpired      = "expired"
)

// OrderOfferResult tells a courier how their offer ended: they won the
// order, lost the acceptance race, or the offer expired or was cancelled.
type OrderOfferResult struct {
	MsgType string    `json:"type"` // always "offer_result"
	OrderID uuid.UUID `json:"order_id"`
	Outcome string    `json:"outcome"`
}

// DispatchResult is the terminal outcome of one dispatch search.
type DispatchResult struct {
	OrderID      uuid.UUID           `json:"order_id"`
	State        types.DispatchState `json:"state"`
	CourierID    *uuid.UUID          `json:"courier_id,omitempty"`
	RadiusKm     float64             `json:"radius_km"`
	Attempts     int                 `json:"attempts"`
	AutoAssigned bool                `json:"auto_assigned"`
}
