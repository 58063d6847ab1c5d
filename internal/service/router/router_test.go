package router

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/internal/service/geo"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
)

type fakeOracle struct {
	alternatives []models.RouteAlternative
	err          error
}

func (f *fakeOracle) Alternatives(ctx context.Context, origin, destination models.Location) ([]models.RouteAlternative, error) {
	return f.alternatives, f.err
}

// fakeTraffic assigns a fixed level to every waypoint whose longitude
// matches a registered corridor.
type fakeTraffic struct {
	levelByLng map[float64]types.TrafficLevel
}

func (f *fakeTraffic) RouteTraffic(ctx context.Context, waypoints []models.Location) ([]models.RouteSegment, error) {
	segments := make([]models.RouteSegment, 0, len(waypoints))
	for _, wp := range waypoints {
		segment := models.RouteSegment{Waypoint: wp}
		if level, ok := f.levelByLng[wp.Longitude]; ok {
			segment.Level = level
			segment.Known = true
			segment.AvgSpeedKmh = 20
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

type fakeEvents struct {
	events []models.TrafficEvent
	err    error
}

func (f *fakeEvents) ListActive(ctx context.Context, near *models.Location, radiusKm float64, eventType types.TrafficEventType) ([]models.TrafficEvent, error) {
	return f.events, f.err
}

var (
	origin      = models.Location{Latitude: 14.70, Longitude: -17.46}
	destination = models.Location{Latitude: 14.76, Longitude: -17.46}
)

// corridor builds an equal-length straight alternative shifted onto the
// given longitude for its interior waypoints.
func corridor(lng float64) models.RouteAlternative {
	waypoints := []models.Location{origin}
	for i := 1; i <= 4; i++ {
		waypoints = append(waypoints, models.Location{
			Latitude:  origin.Latitude + float64(i)*0.012,
			Longitude: lng,
		})
	}
	waypoints = append(waypoints, destination)

	distance := 0.0
	for i := 0; i+1 < len(waypoints); i++ {
		distance += geo.HaversineDistance(
			waypoints[i].Latitude, waypoints[i].Longitude,
			waypoints[i+1].Latitude, waypoints[i+1].Longitude,
		)
	}

	return models.RouteAlternative{
		DistanceKm:  distance,
		DurationMin: distance / 30 * 60,
		Waypoints:   waypoints,
	}
}

func newTestRouter(oracle RouteOracle, traffic TrafficReader, events EventReader) *SmartRouter {
	l := logger.InitLogger("router-test", logger.LevelError)
	return NewSmartRouter(oracle, traffic, events, DefaultConfig(), l)
}

func TestSmartRouter_PrefersFluideOverBloque(t *testing.T) {
	blocked := corridor(-17.48)
	clear := corridor(-17.44)

	traffic := &fakeTraffic{levelByLng: map[float64]types.TrafficLevel{
		-17.48: types.LevelBloque,
		-17.44: types.LevelFluide,
	}}

	router := newTestRouter(
		&fakeOracle{alternatives: []models.RouteAlternative{blocked, clear}},
		traffic,
		&fakeEvents{},
	)

	route, err := router.Plan(context.Background(), origin, destination)
	require.NoError(t, err)

	assert.False(t, route.Degraded)
	assert.Equal(t, 2, route.AlternativesConsidered)
	assert.Equal(t, clear.Waypoints, route.Waypoints, "the fluid corridor must win")
	assert.Zero(t, route.Penalty.TrafficPenalty, "FLUIDE carries no congestion penalty")
}

func TestSmartRouter_IncidentPenaltyBreaksTie(t *testing.T) {
	first := corridor(-17.48)
	second := corridor(-17.44)

	// Equal traffic everywhere; a critical accident sits on the first corridor.
	traffic := &fakeTraffic{levelByLng: map[float64]types.TrafficLevel{
		-17.48: types.LevelModere,
		-17.44: types.LevelModere,
	}}
	accident := models.TrafficEvent{
		ID:       uuid.New(),
		Type:     types.EventAccident,
		Severity: types.SeverityCritical,
		Location: models.Location{Latitude: first.Waypoints[2].Latitude, Longitude: -17.48},
		IsActive: true,
	}

	router := newTestRouter(
		&fakeOracle{alternatives: []models.RouteAlternative{first, second}},
		traffic,
		&fakeEvents{events: []models.TrafficEvent{accident}},
	)

	route, err := router.Plan(context.Background(), origin, destination)
	require.NoError(t, err)

	assert.Equal(t, second.Waypoints, route.Waypoints)
	assert.Zero(t, route.Penalty.EventPenalty, "the chosen corridor avoids the incident")
}

func TestSmartRouter_FallsBackWhenOracleFails(t *testing.T) {
	router := newTestRouter(
		&fakeOracle{err: errors.New("connection refused")},
		&fakeTraffic{},
		&fakeEvents{},
	)

	route, err := router.Plan(context.Background(), origin, destination)
	require.NoError(t, err, "oracle failure must never surface")

	assert.True(t, route.Degraded)
	direct := geo.HaversineDistance(origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude)
	assert.InDelta(t, direct*1.3, route.DistanceKm, 0.01, "haversine plus the inflation margin")
	assert.NotZero(t, route.DurationMin)
	require.Len(t, route.SteeringWaypoints, 1)
}

func TestSmartRouter_FallsBackOnEmptyAlternatives(t *testing.T) {
	router := newTestRouter(&fakeOracle{}, &fakeTraffic{}, &fakeEvents{})

	route, err := router.Plan(context.Background(), origin, destination)
	require.NoError(t, err)
	assert.True(t, route.Degraded)
}

func TestSmartRouter_PlansWithoutEventsWhenListFails(t *testing.T) {
	alt := corridor(-17.46)
	router := newTestRouter(
		&fakeOracle{alternatives: []models.RouteAlternative{alt}},
		&fakeTraffic{},
		&fakeEvents{err: errors.New("store down")},
	)

	route, err := router.Plan(context.Background(), origin, destination)
	require.NoError(t, err)
	assert.False(t, route.Degraded)
	assert.Zero(t, route.Penalty.EventPenalty)
}

func TestSteeringWaypointsDownsampling(t *testing.T) {
	var waypoints []models.Location
	for i := 0; i < 42; i++ {
		waypoints = append(waypoints, models.Location{Latitude: float64(i), Longitude: 0})
	}

	steering := steeringWaypoints(waypoints, 5)
	require.Len(t, steering, 5)
	assert.NotEqual(t, waypoints[0], steering[0], "endpoints are excluded")
	assert.NotEqual(t, waypoints[len(waypoints)-1], steering[len(steering)-1])

	assert.Nil(t, steeringWaypoints(waypoints[:2], 5))

	few := steeringWaypoints(waypoints[:4], 5)
	assert.Len(t, few, 2)
}

func TestCorridorsAreEquallyLong(t *testing.T) {
	a := corridor(-17.48)
	b := corridor(-17.44)
	// Sanity for the selection tests above: only traffic distinguishes them.
	assert.InDelta(t, a.DistanceKm, b.DistanceKm, 0.5)
}
