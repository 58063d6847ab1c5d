package router

import (
	"context"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/internal/service/geo"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

// RouteOracle is the external routing engine. It may fail or time out;
// the router must keep answering regardless.
type RouteOracle interface {
	Alternatives(ctx context.Context, origin, destination models.Location) ([]models.RouteAlternative, error)
}

// TrafficReader exposes the live per-cell traffic snapshot along waypoints.
type TrafficReader interface {
	RouteTraffic(ctx context.Context, waypoints []models.Location) ([]models.RouteSegment, error)
}

// EventReader lists active crowd-reported incidents.
type EventReader interface {
	ListActive(ctx context.Context, near *models.Location, radiusKm float64, eventType types.TrafficEventType) ([]models.TrafficEvent, error)
}

// Config tunes route penalty computation and the degraded fallback.
type Config struct {
	// EventBufferKm: incidents within this distance of any waypoint
	// penalize the alternative.
	EventBufferKm float64
	// EventPenaltyKm converts one severity-weight unit into penalty,
	// expressed in equivalent congested kilometers.
	EventPenaltyKm float64
	// FallbackInflation inflates the haversine distance when the oracle
	// is unavailable.
	FallbackInflation float64
	// FallbackSpeedKmh estimates duration in the degraded fallback.
	FallbackSpeedKmh float64
	// MaxSteeringWaypoints caps the emitted navigation hint list.
	MaxSteeringWaypoints int
}

func DefaultConfig() Config {
	return Config{
		EventBufferKm:        0.5,
		EventPenaltyKm:       2,
		FallbackInflation:    1.3,
		FallbackSpeedKmh:     30,
		MaxSteeringWaypoints: 5,
	}
}

/*
SmartRouter picks the least-congested alternative for a trip: base routes
come from the external oracle, penalties from the live traffic picture and
active incident reports. When the oracle is down the router degrades to a
haversine estimate instead of failing.
*/
type SmartRouter struct {
	oracle  RouteOracle
	traffic TrafficReader
	events  EventReader
	cfg     Config
	l       logger.Logger
}

func NewSmartRouter(oracle RouteOracle, traffic TrafficReader, events EventReader, cfg Config, l logger.Logger) *SmartRouter {
	def := DefaultConfig()
	if cfg.EventBufferKm <= 0 {
		cfg.EventBufferKm = def.EventBufferKm
	}
	if cfg.EventPenaltyKm <= 0 {
		cfg.EventPenaltyKm = def.EventPenaltyKm
	}
	if cfg.FallbackInflation <= 1 {
		cfg.FallbackInflation = def.FallbackInflation
	}
	if cfg.FallbackSpeedKmh <= 0 {
		cfg.FallbackSpeedKmh = def.FallbackSpeedKmh
	}
	if cfg.MaxSteeringWaypoints <= 0 {
		cfg.MaxSteeringWaypoints = def.MaxSteeringWaypoints
	}
	return &SmartRouter{
		oracle:  oracle,
		traffic: traffic,
		events:  events,
		cfg:     cfg,
		l:       l,
	}
}

// Plan selects the alternative with the lowest combined traffic and incident
// penalty. Oracle failure never surfaces to the caller: the result is marked
// degraded instead.
func (r *SmartRouter) Plan(ctx context.Context, origin, destination models.Location) (models.PlannedRoute, error) {
	ctx = wrap.WithAction(ctx, "plan_route")

	alternatives, err := r.oracle.Alternatives(ctx, origin, destination)
	if err != nil || len(alternatives) == 0 {
		if err != nil {
			degradedCtx := wrap.WithAction(ctx, types.ActionRoutingOracleDegraded)
			r.l.Warn(degradedCtx, "routing oracle unavailable, falling back to haversine estimate", "error", err.Error())
		}
		return r.fallbackRoute(ctx, origin, destination)
	}

	events, err := r.events.ListActive(ctx, nil, 0, "")
	if err != nil {
		// Incident data is an enrichment; plan without it rather than fail.
		r.l.Warn(ctx, "event list unavailable, planning without incident penalties", "error", err.Error())
		events = nil
	}

	best := -1
	var bestPenalty models.AlternativePenalty
	var bestSegments []models.RouteSegment

	for i, alt := range alternatives {
		segments, err := r.traffic.RouteTraffic(ctx, alt.Waypoints)
		if err != nil {
			return models.PlannedRoute{}, wrap.Error(ctx, err)
		}

		penalty := r.penalize(alt, segments, events)
		if best == -1 || penalty.TotalPenalty < bestPenalty.TotalPenalty ||
			(penalty.TotalPenalty == bestPenalty.TotalPenalty && alt.DistanceKm < bestPenalty.DistanceKm) {
			best = i
			bestPenalty = penalty
			bestSegments = segments
		}
	}

	chosen := alternatives[best]
	route := models.PlannedRoute{
		Origin:                 origin,
		Destination:            destination,
		DistanceKm:             chosen.DistanceKm,
		DurationMin:            chosen.DurationMin,
		Waypoints:              chosen.Waypoints,
		SteeringWaypoints:      steeringWaypoints(chosen.Waypoints, r.cfg.MaxSteeringWaypoints),
		Segments:               bestSegments,
		Penalty:                bestPenalty,
		AlternativesConsidered: len(alternatives),
	}

	r.l.Debug(ctx, "route planned",
		"alternatives", len(alternatives),
		"chosen_penalty", bestPenalty.TotalPenalty,
		"distance_km", chosen.DistanceKm)

	return route, nil
}

// penalize scores one alternative: congestion level weight times segment
// length, plus severity-weighted incidents near any waypoint.
func (r *SmartRouter) penalize(alt models.RouteAlternative, segments []models.RouteSegment, events []models.TrafficEvent) models.AlternativePenalty {
	penalty := models.AlternativePenalty{DistanceKm: alt.DistanceKm}

	for i := 0; i < len(segments); i++ {
		if !segments[i].Known {
			continue
		}
		lengthKm := segmentLengthKm(alt.Waypoints, i)
		penalty.TrafficPenalty += segments[i].Level.PenaltyWeight() * lengthKm
	}

	for _, event := range events {
		if eventNearRoute(event, alt.Waypoints, r.cfg.EventBufferKm) {
			penalty.EventPenalty += event.Severity.Weight() * r.cfg.EventPenaltyKm
		}
	}

	penalty.TotalPenalty = penalty.TrafficPenalty + penalty.EventPenalty
	return penalty
}

// segmentLengthKm attributes to waypoint i the leg towards its successor;
// the final waypoint carries no length.
func segmentLengthKm(waypoints []models.Location, i int) float64 {
	if i+1 >= len(waypoints) {
		return 0
	}
	return geo.HaversineDistance(
		waypoints[i].Latitude, waypoints[i].Longitude,
		waypoints[i+1].Latitude, waypoints[i+1].Longitude,
	)
}

func eventNearRoute(event models.TrafficEvent, waypoints []models.Location, bufferKm float64) bool {
	for _, wp := range waypoints {
		d := geo.HaversineDistance(wp.Latitude, wp.Longitude, event.Location.Latitude, event.Location.Longitude)
		if d <= bufferKm {
			return true
		}
	}
	return false
}

// steeringWaypoints downsamples the chosen path to at most max interior
// points, evenly spaced, endpoints excluded (the navigation app already
// knows origin and destination).
func steeringWaypoints(waypoints []models.Location, max int) []models.Location {
	if len(waypoints) <= 2 {
		return nil
	}
	interior := waypoints[1 : len(waypoints)-1]
	if len(interior) <= max {
		result := make([]models.Location, len(interior))
		copy(result, interior)
		return result
	}

	result := make([]models.Location, 0, max)
	step := float64(len(interior)) / float64(max)
	for i := 0; i < max; i++ {
		result = append(result, interior[int(float64(i)*step)])
	}
	return result
}

// fallbackRoute answers with an inflated haversine estimate when the oracle
// cannot. A straight three-point line stands in for the path.
func (r *SmartRouter) fallbackRoute(ctx context.Context, origin, destination models.Location) (models.PlannedRoute, error) {
	distanceKm := geo.HaversineDistance(origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude) * r.cfg.FallbackInflation
	durationMin := distanceKm / r.cfg.FallbackSpeedKmh * 60

	midpoint := models.Location{
		Latitude:  (origin.Latitude + destination.Latitude) / 2,
		Longitude: (origin.Longitude + destination.Longitude) / 2,
	}
	waypoints := []models.Location{origin, midpoint, destination}

	segments, err := r.traffic.RouteTraffic(ctx, waypoints)
	if err != nil {
		segments = nil
	}

	return models.PlannedRoute{
		Origin:                 origin,
		Destination:            destination,
		DistanceKm:             distanceKm,
		DurationMin:            durationMin,
		Waypoints:              waypoints,
		SteeringWaypoints:      []models.Location{midpoint},
		Segments:               segments,
		AlternativesConsidered: 0,
		Degraded:               true,
	}, nil
}
