package models

// RouteAlternative is one candidate path returned by the routing oracle.
type RouteAlternative struct {
	DistanceKm  float64    `json:"distance_km"`
	DurationMin float64    `json:"duration_min"`
	Waypoints   []Location `json:"waypoints"`
}

// AlternativePenalty is the scored breakdown of one alternative, kept for
// auditability of the selection.
type AlternativePenalty struct {
	DistanceKm     float64 `json:"distance_km"`
	TrafficPenalty float64 `json:"traffic_penalty"`
	EventPenalty   float64 `json:"event_penalty"`
	TotalPenalty   float64 `json:"total_penalty"`
}

// PlannedRoute is the router's answer: the chosen alternative plus steering
// waypoints meant to bias a third-party navigation app toward it. The
// waypoints are a hint, not a guarantee.
type PlannedRoute struct {
	Origin      Location `json:"origin"`
	Destination Location `json:"destination"`

	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`

	Waypoints         []Location     `json:"waypoints"`
	SteeringWaypoints []Location     `json:"steering_waypoints"`
	Segments          []RouteSegment `json:"segments"`

	Penalty                AlternativePenalty `json:"penalty"`
	AlternativesConsidered int                `json:"alternatives_considered"`

	// Degraded marks a haversine-heuristic fallback when the routing
	// oracle is unavailable: distances are inflated estimates.
	Degraded bool `json:"degraded"`
}
