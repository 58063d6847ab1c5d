package traffic

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
)

// kmPerDegreeLat on a 6371 km sphere: moving purely north keeps haversine exact.
const kmPerDegreeLat = 111.19492664455873

// latAfter returns the latitude reached by travelling north at speedKmh for dt.
func latAfter(startLat, speedKmh float64, dt time.Duration) float64 {
	return startLat + speedKmh*dt.Hours()/kmPerDegreeLat
}

func newTestEstimator(t *testing.T) *SpeedEstimator {
	t.Helper()
	store := NewMemoryStore(time.Hour, time.Hour)
	return NewSpeedEstimator(store, DefaultMaxSpeedKmh)
}

func TestSpeedEstimator_FirstFixYieldsNoSample(t *testing.T) {
	est := newTestEstimator(t)
	agent := uuid.New()

	speed, ok, err := est.Estimate(context.Background(), agent, 14.7167, -17.4677, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, speed)
}

func TestSpeedEstimator_DerivesSpeedFromConsecutiveFixes(t *testing.T) {
	est := newTestEstimator(t)
	agent := uuid.New()
	now := time.Now()

	_, _, err := est.Estimate(context.Background(), agent, 14.7000, -17.4677, now)
	require.NoError(t, err)

	lat := latAfter(14.7000, 36, time.Minute)
	speed, ok, err := est.Estimate(context.Background(), agent, lat, -17.4677, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 36, speed, 0.1)
}

func TestSpeedEstimator_RejectsInvalidCoordinates(t *testing.T) {
	est := newTestEstimator(t)
	agent := uuid.New()

	cases := []struct {
		name     string
		lat, lng float64
	}{
		{"zero island", 0, 0},
		{"latitude out of range", 91, -17},
		{"longitude out of range", 14, 181},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok, err := est.Estimate(context.Background(), agent, tc.lat, tc.lng, time.Now())
			require.ErrorIs(t, err, types.ErrInvalidCoordinates)
			assert.False(t, ok)
		})
	}
}

func TestSpeedEstimator_IgnoresNonPositiveTimeDelta(t *testing.T) {
	est := newTestEstimator(t)
	agent := uuid.New()
	now := time.Now()

	_, _, err := est.Estimate(context.Background(), agent, 14.7000, -17.4677, now)
	require.NoError(t, err)

	// Same timestamp, then an older one: both dropped.
	_, ok, err := est.Estimate(context.Background(), agent, 14.7010, -17.4677, now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = est.Estimate(context.Background(), agent, 14.7020, -17.4677, now.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSpeedEstimator_ImplausibleJumpKeepsBaseline(t *testing.T) {
	est := newTestEstimator(t)
	agent := uuid.New()
	now := time.Now()

	_, _, err := est.Estimate(context.Background(), agent, 14.7000, -17.4677, now)
	require.NoError(t, err)

	// A 200 km/h jump is dropped and must not become the new baseline.
	jumpLat := latAfter(14.7000, 200, time.Minute)
	_, ok, err := est.Estimate(context.Background(), agent, jumpLat, -17.4677, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// Two minutes after the original fix the same position is plausible
	// (100 km/h relative to the kept baseline), so a sample is produced.
	speed, ok, err := est.Estimate(context.Background(), agent, jumpLat, -17.4677, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 100, speed, 0.5)
}
