package types

type ServiceMode string

// Traffic Service - GPS ingestion, crowd-sourced traffic picture, event reports and smart routing
// Dispatch Service - Matches new delivery orders to couriers and manages the offer lifecycle
const (
	TrafficService  ServiceMode = "traffic-service"
	DispatchService ServiceMode = "dispatch-service"
)

// Courier availability status
type CourierStatus string

const (
	StatusCourierOffline   CourierStatus = "OFFLINE"
	StatusCourierAvailable CourierStatus = "AVAILABLE"
	StatusCourierBusy      CourierStatus = "BUSY"
)

// Courier loyalty level, scored via dispatch configuration
type CourierLevel string

const (
	LevelBronze   CourierLevel = "BRONZE"
	LevelSilver   CourierLevel = "SILVER"
	LevelGold     CourierLevel = "GOLD"
	LevelPlatinum CourierLevel = "PLATINUM"
)

// Congestion level of a traffic cell, classified from average speed
type TrafficLevel string

const (
	LevelFluide TrafficLevel = "FLUIDE"
	LevelModere TrafficLevel = "MODERE"
	LevelDense  TrafficLevel = "DENSE"
	LevelBloque TrafficLevel = "BLOQUE"
)

// Color returns a render-ready hex color for heatmap clients.
func (l TrafficLevel) Color() string {
	switch l {
	case LevelFluide:
		return "#2ecc71"
	case LevelModere:
		return "#f1c40f"
	case LevelDense:
		return "#e67e22"
	case LevelBloque:
		return "#e74c3c"
	default:
		return "#95a5a6"
	}
}

// PenaltyWeight orders levels for route scoring: the more congested, the heavier.
func (l TrafficLevel) PenaltyWeight() float64 {
	switch l {
	case LevelFluide:
		return 0
	case LevelModere:
		return 1
	case LevelDense:
		return 3
	case LevelBloque:
		return 6
	default:
		return 0
	}
}

// Crowd-reported traffic event type
type TrafficEventType string

const (
	EventAccident  TrafficEventType = "ACCIDENT"
	EventRoadblock TrafficEventType = "ROADBLOCK"
	EventFlooding  TrafficEventType = "FLOODING"
	EventPothole   TrafficEventType = "POTHOLE"
)

// Severity of a reported event
type EventSeverity string

const (
	SeverityLow      EventSeverity = "LOW"
	SeverityMedium   EventSeverity = "MEDIUM"
	SeverityHigh     EventSeverity = "HIGH"
	SeverityCritical EventSeverity = "CRITICAL"
)

// Weight maps severity to a route-penalty multiplier.
func (s EventSeverity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 8
	default:
		return 1
	}
}

// Delivery order status state machine
type OrderStatus string

const (
	StatusOrderPending   OrderStatus = "PENDING"
	StatusOrderAssigned  OrderStatus = "ASSIGNED"
	StatusOrderPickedUp  OrderStatus = "PICKED_UP"
	StatusOrderDelivered OrderStatus = "DELIVERED"
	StatusOrderCancelled OrderStatus = "CANCELLED"
)

// Dispatch search state per order
type DispatchState string

const (
	DispatchSearching DispatchState = "SEARCHING"
	DispatchOffered   DispatchState = "OFFERED"
	DispatchAssigned  DispatchState = "ASSIGNED"
	DispatchExhausted DispatchState = "EXHAUSTED"
	DispatchCancelled DispatchState = "CANCELLED"
)

// User role, resolved from the external identity service token
type UserRole string

func (r UserRole) String() string {
	return string(r)
}

const (
	RoleSender  UserRole = "SENDER"
	RoleCourier UserRole = "COURIER"
	RoleAdmin   UserRole = "ADMIN"
)

// Entity types that stream coordinates
type EntityType string

const (
	Courier EntityType = "courier"
	Sender  EntityType = "sender"
)
