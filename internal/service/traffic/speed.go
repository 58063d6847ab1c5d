package traffic

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/internal/service/geo"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

// DefaultMaxSpeedKmh is the plausibility ceiling: anything faster is treated
// as sensor noise (GPS jump, teleportation) and dropped.
const DefaultMaxSpeedKmh = 120.0

// SpeedEstimator derives an instantaneous speed from two consecutive fixes
// of the same agent.
type SpeedEstimator struct {
	fixes       FixStore
	maxSpeedKmh float64
}

func NewSpeedEstimator(fixes FixStore, maxSpeedKmh float64) *SpeedEstimator {
	if maxSpeedKmh <= 0 {
		maxSpeedKmh = DefaultMaxSpeedKmh
	}
	return &SpeedEstimator{
		fixes:       fixes,
		maxSpeedKmh: maxSpeedKmh,
	}
}

// Estimate returns (speedKmh, true) when a valid speed sample could be
// derived from the previous fix. The first fix of an agent, a non-positive
// time delta, and an implausible speed all yield (0, false) without error:
// noise is dropped silently and never poisons the aggregation.
// The new fix replaces the previous one on every accepted coordinate.
func (e *SpeedEstimator) Estimate(ctx context.Context, agentID uuid.UUID, lat, lng float64, at time.Time) (float64, bool, error) {
	if !validCoordinates(lat, lng) {
		return 0, false, wrap.Error(ctx, types.ErrInvalidCoordinates)
	}

	prev, found, err := e.fixes.GetFix(ctx, agentID)
	if err != nil {
		return 0, false, wrap.Error(ctx, err)
	}

	fix := models.GpsFix{
		AgentID:   agentID,
		Latitude:  lat,
		Longitude: lng,
		Timestamp: at,
	}

	if !found {
		// First fix: nothing to compare against yet.
		if err := e.fixes.PutFix(ctx, fix); err != nil {
			return 0, false, wrap.Error(ctx, err)
		}
		return 0, false, nil
	}

	elapsed := at.Sub(prev.Timestamp)
	if elapsed <= 0 {
		// Out-of-order or duplicate timestamp: ignore, keep the stored fix.
		return 0, false, nil
	}

	distanceKm := geo.HaversineDistance(prev.Latitude, prev.Longitude, lat, lng)
	speedKmh := distanceKm / elapsed.Hours()

	if speedKmh > e.maxSpeedKmh {
		// GPS jump. Keep the previous fix so one glitch doesn't shift the baseline.
		return 0, false, nil
	}

	if err := e.fixes.PutFix(ctx, fix); err != nil {
		return 0, false, wrap.Error(ctx, err)
	}

	return speedKmh, true, nil
}

func validCoordinates(lat, lng float64) bool {
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
