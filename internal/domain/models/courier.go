package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
)

type Courier struct {
	ID              uuid.UUID           // unique identifier
	Name            string              // full name of the courier
	CreatedAt       time.Time           // timestamp of creation
	UpdatedAt       time.Time           // timestamp of last update
	Status          types.CourierStatus // e.g., "AVAILABLE", "BUSY", "OFFLINE"
	Level           types.CourierLevel  // loyalty level, scored by the dispatch engine
	Rating          float64             // average rating from senders
	TotalDeliveries int                 // number of completed deliveries
	AcceptanceRate  float64             // accepted offers / total offers, 0..1
	AvgResponseSec  float64             // historical average offer response latency
	WalletBalance   float64             // in smallest currency unit
	DebtCeiling     float64             // injected read-only signal from the finance subsystem
	IsVerified      bool                // documents have been verified
	IsBlocked       bool                // blocked couriers never receive offers
	LastPingAt      time.Time           // freshness of the last location update
	OnlineSince     time.Time           // start of the current online session
}

// CourierCandidate is a courier in dispatch range, with the distance
// to the pickup point already computed. Derived, never persisted.
type CourierCandidate struct {
	ID                 uuid.UUID           `json:"id"`
	Name               string              `json:"name"`
	Status             types.CourierStatus `json:"status"`
	Level              types.CourierLevel  `json:"level"`
	Rating             float64             `json:"rating"`
	TotalDeliveries    int                 `json:"total_deliveries"`
	AcceptanceRate     float64             `json:"acceptance_rate"`
	AvgResponseSec     float64             `json:"avg_response_sec"`
	WalletBalance      float64             `json:"wallet_balance"`
	DebtCeiling        float64             `json:"debt_ceiling"`
	LastPingAt         time.Time           `json:"last_ping_at"`
	OnlineSince        time.Time           `json:"online_since"`
	Location           Location            `json:"location"`
	DistanceToPickupKm float64             `json:"distance_to_pickup_km"`
}

// ScoredCandidate carries the per-component breakdown next to the total.
type ScoredCandidate struct {
	CourierCandidate

	Components map[string]float64 `json:"component_scores"`
	TotalScore float64            `json:"total_score"`
}

// CourierStatusUpdateMessage notifies subscribers about a status change
type CourierStatusUpdateMessage struct {
	CourierID uuid.UUID           `json:"courier_id"`
	Status    types.CourierStatus `json:"status"`
	OrderID   uuid.UUID           `json:"order_id,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// DispatchOverview is the operator snapshot served on the admin surface.
type DispatchOverview struct {
	ActiveDispatches  int       `json:"active_dispatches"`
	CouriersAvailable int       `json:"couriers_available"`
	CouriersBusy      int       `json:"couriers_busy"`
	CouriersOnline    int       `json:"couriers_online"`
	GeneratedAt       time.Time `json:"generated_at"`
}
