package traffic

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/internal/service/geo"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
)

func newTestAggregator(t *testing.T) (*Aggregator, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(time.Hour, time.Hour)
	grid := geo.NewGrid(10_000, 14.7)
	est := NewSpeedEstimator(store, DefaultMaxSpeedKmh)
	l := logger.InitLogger("traffic-test", logger.LevelError)
	return NewAggregator(grid, store, est, DefaultAggregatorConfig(), l), store
}

// driveAgent feeds one fix per minute moving north at the given speeds and
// returns the latitude where the agent ended up.
func driveAgent(t *testing.T, agg *Aggregator, agent uuid.UUID, startLat, lng float64, speedsKmh []float64) float64 {
	t.Helper()
	now := time.Now()
	lat := startLat

	_, err := agg.Ingest(context.Background(), agent, lat, lng, now)
	require.NoError(t, err)

	for i, speed := range speedsKmh {
		lat = latAfter(lat, speed, time.Minute)
		sample, err := agg.Ingest(context.Background(), agent, lat, lng, now.Add(time.Duration(i+1)*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, sample, "sample %d should be aggregated", i)
		assert.InDelta(t, speed, *sample, 0.1)
	}
	return lat
}

func TestAggregator_ClassifiesFluide(t *testing.T) {
	agg, _ := newTestAggregator(t)

	driveAgent(t, agg, uuid.New(), 14.70, -17.46, []float64{30, 25, 28})

	cells, err := agg.Heatmap(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, types.LevelFluide, cells[0].Level)
	assert.InDelta(t, 27.67, cells[0].AvgSpeedKmh, 0.1)
	assert.Equal(t, 3, cells[0].SampleCount)
	assert.Equal(t, types.LevelFluide.Color(), cells[0].Color)
}

func TestAggregator_ClassifiesBloque(t *testing.T) {
	agg, _ := newTestAggregator(t)

	driveAgent(t, agg, uuid.New(), 14.70, -17.46, []float64{3, 2, 4})

	cells, err := agg.Heatmap(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, types.LevelBloque, cells[0].Level)
	assert.InDelta(t, 3, cells[0].AvgSpeedKmh, 0.1)
}

func TestAggregator_SingleObservationIsNotReportable(t *testing.T) {
	agg, _ := newTestAggregator(t)

	driveAgent(t, agg, uuid.New(), 14.70, -17.46, []float64{30})

	cells, err := agg.Heatmap(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, cells, "a cell with one sample must not appear in the heatmap")
}

func TestAggregator_WindowCapsObservations(t *testing.T) {
	agg, _ := newTestAggregator(t)
	grid := geo.NewGrid(10_000, 14.7)

	speeds := make([]float64, 30)
	for i := range speeds {
		speeds[i] = 20
	}
	endLat := driveAgent(t, agg, uuid.New(), 14.70, -17.46, speeds)

	cell, err := agg.CellDetail(context.Background(), grid.CellID(endLat, -17.46))
	require.NoError(t, err)
	assert.LessOrEqual(t, cell.SampleCount, DefaultAggregatorConfig().WindowSize)
}

func TestAggregator_StaleCellsExcludedFromReads(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Hour)
	grid := geo.NewGrid(10_000, 14.7)
	est := NewSpeedEstimator(store, DefaultMaxSpeedKmh)
	l := logger.InitLogger("traffic-test", logger.LevelError)
	agg := NewAggregator(grid, store, est, DefaultAggregatorConfig(), l)

	// Feed samples timestamped 30 minutes in the past.
	start := time.Now().Add(-30 * time.Minute)
	agent := uuid.New()
	lat := 14.70
	_, err := agg.Ingest(context.Background(), agent, lat, -17.46, start)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		lat = latAfter(lat, 20, time.Minute)
		_, err = agg.Ingest(context.Background(), agent, lat, -17.46, start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	cells, err := agg.Heatmap(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, cells)

	stats, err := agg.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.ActiveCells)
}

func TestAggregator_HeatmapBoundingBoxFilter(t *testing.T) {
	agg, _ := newTestAggregator(t)

	driveAgent(t, agg, uuid.New(), 14.70, -17.46, []float64{30, 30})
	driveAgent(t, agg, uuid.New(), 15.70, -16.46, []float64{30, 30})

	bbox := &models.BoundingBox{MinLat: 14.6, MaxLat: 14.8, MinLng: -17.5, MaxLng: -17.4}
	cells, err := agg.Heatmap(context.Background(), bbox)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.True(t, bbox.Contains(cells[0].Centroid.Latitude, cells[0].Centroid.Longitude))
}

func TestAggregator_Stats(t *testing.T) {
	agg, _ := newTestAggregator(t)

	driveAgent(t, agg, uuid.New(), 14.70, -17.46, []float64{40, 40})
	driveAgent(t, agg, uuid.New(), 15.70, -16.46, []float64{10, 10})

	stats, err := agg.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ActiveCells)
	assert.InDelta(t, 25, stats.AvgCitySpeed, 0.1)
	assert.Equal(t, types.LevelFluide, stats.OverallLevel)
	assert.Equal(t, 1, stats.CellsByLevel[types.LevelFluide])
	assert.Equal(t, 1, stats.CellsByLevel[types.LevelDense])
}

func TestAggregator_RouteTrafficMarksUnknownCells(t *testing.T) {
	agg, _ := newTestAggregator(t)

	endLat := driveAgent(t, agg, uuid.New(), 14.70, -17.46, []float64{10, 10})

	segments, err := agg.RouteTraffic(context.Background(), []models.Location{
		{Latitude: endLat, Longitude: -17.46},
		{Latitude: 15.90, Longitude: -16.00},
	})
	require.NoError(t, err)
	require.Len(t, segments, 2)

	assert.True(t, segments[0].Known)
	assert.Equal(t, types.LevelDense, segments[0].Level)
	assert.False(t, segments[1].Known)
}

func TestAggregator_CellDetailMissing(t *testing.T) {
	agg, _ := newTestAggregator(t)

	_, err := agg.CellDetail(context.Background(), "cell_999_999")
	assert.ErrorIs(t, err, types.ErrCellNotFound)
}

func TestAggregator_InvalidSampleIsSwallowed(t *testing.T) {
	agg, _ := newTestAggregator(t)

	sample, err := agg.Ingest(context.Background(), uuid.New(), 0, 0, time.Now())
	require.NoError(t, err)
	assert.Nil(t, sample)
}
