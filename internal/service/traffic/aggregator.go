package traffic

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/internal/service/geo"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

// SpeedBands are the congestion classification thresholds in km/h.
// Defaults per product contract; configurable, not hardcoded in callers.
type SpeedBands struct {
	FluideMin float64 // avg >= FluideMin -> FLUIDE
	ModereMin float64 // avg >= ModereMin -> MODERE
	DenseMin  float64 // avg >= DenseMin  -> DENSE, below -> BLOQUE
}

func DefaultSpeedBands() SpeedBands {
	return SpeedBands{FluideMin: 25, ModereMin: 15, DenseMin: 5}
}

// Classify maps an average speed to a congestion level.
func (b SpeedBands) Classify(avgSpeedKmh float64) types.TrafficLevel {
	switch {
	case avgSpeedKmh >= b.FluideMin:
		return types.LevelFluide
	case avgSpeedKmh >= b.ModereMin:
		return types.LevelModere
	case avgSpeedKmh >= b.DenseMin:
		return types.LevelDense
	default:
		return types.LevelBloque
	}
}

// AggregatorConfig tunes the rolling-window behaviour.
type AggregatorConfig struct {
	WindowSize      int           // samples kept per cell
	MinObservations int           // below this, the cell is not reportable
	StaleAfter      time.Duration // cells silent this long are excluded from reads
	Bands           SpeedBands
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		WindowSize:      20,
		MinObservations: 2,
		StaleAfter:      10 * time.Minute,
		Bands:           DefaultSpeedBands(),
	}
}

// Aggregator turns the courier GPS stream into a live, best-effort traffic
// picture. Aggregation is eventually consistent by design: reads never see a
// strongly consistent snapshot.
type Aggregator struct {
	grid  *geo.Grid
	cells CellStore
	speed *SpeedEstimator
	cfg   AggregatorConfig

	l logger.Logger
}

func NewAggregator(grid *geo.Grid, cells CellStore, speed *SpeedEstimator, cfg AggregatorConfig, l logger.Logger) *Aggregator {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultAggregatorConfig().WindowSize
	}
	if cfg.MinObservations < 2 {
		cfg.MinObservations = 2
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultAggregatorConfig().StaleAfter
	}
	return &Aggregator{
		grid:  grid,
		cells: cells,
		speed: speed,
		cfg:   cfg,
		l:     l,
	}
}

// Ingest consumes one GPS fix. When a valid speed can be derived it is folded
// into the cell's rolling window and the returned pointer carries the speed;
// otherwise nil is returned and nothing is aggregated. Invalid coordinates
// are rejected without surfacing an error to the transport.
func (a *Aggregator) Ingest(ctx context.Context, agentID uuid.UUID, lat, lng float64, at time.Time) (*float64, error) {
	speedKmh, ok, err := a.speed.Estimate(ctx, agentID, lat, lng, at)
	if err != nil {
		a.l.Debug(ctx, "sample rejected", "reason", err.Error(), "agent_id", agentID)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	cellID := a.grid.CellID(lat, lng)
	centroid := a.grid.Centroid(lat, lng)

	_, err = a.cells.UpdateCell(ctx, cellID, func(cell models.TrafficCell, found bool) models.TrafficCell {
		if !found {
			cell = models.TrafficCell{
				CellID:   cellID,
				Centroid: centroid,
			}
		}

		cell.Observations = append(cell.Observations, models.SpeedObservation{
			SpeedKmh:   speedKmh,
			ObservedAt: at,
		})
		if len(cell.Observations) > a.cfg.WindowSize {
			cell.Observations = cell.Observations[len(cell.Observations)-a.cfg.WindowSize:]
		}

		speeds := make([]float64, len(cell.Observations))
		for i, obs := range cell.Observations {
			speeds[i] = obs.SpeedKmh
		}

		cell.SampleCount = len(cell.Observations)
		cell.AvgSpeedKmh = stat.Mean(speeds, nil)
		cell.Level = a.cfg.Bands.Classify(cell.AvgSpeedKmh)
		cell.LastUpdated = at

		return cell
	})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	return &speedKmh, nil
}

// reportable filters out cells that are too thin or too old to trust.
func (a *Aggregator) reportable(cell models.TrafficCell, now time.Time) bool {
	if cell.SampleCount < a.cfg.MinObservations {
		return false
	}
	return now.Sub(cell.LastUpdated) <= a.cfg.StaleAfter
}

// Heatmap returns all reportable cells, optionally restricted to a bounding
// box, with color metadata for direct rendering.
func (a *Aggregator) Heatmap(ctx context.Context, bbox *models.BoundingBox) ([]models.HeatmapCell, error) {
	cells, err := a.cells.ListCells(ctx)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	now := time.Now()
	result := make([]models.HeatmapCell, 0, len(cells))
	for _, cell := range cells {
		if !a.reportable(cell, now) {
			continue
		}
		if bbox != nil && !bbox.Contains(cell.Centroid.Latitude, cell.Centroid.Longitude) {
			continue
		}
		result = append(result, models.HeatmapCell{
			CellID:      cell.CellID,
			Centroid:    cell.Centroid,
			AvgSpeedKmh: cell.AvgSpeedKmh,
			SampleCount: cell.SampleCount,
			Level:       cell.Level,
			Color:       cell.Level.Color(),
			LastUpdated: cell.LastUpdated,
		})
	}

	// Stable order for clients and tests.
	sort.Slice(result, func(i, j int) bool { return result[i].CellID < result[j].CellID })

	return result, nil
}

// Stats returns the city-wide rollup over all reportable cells.
func (a *Aggregator) Stats(ctx context.Context) (models.CityStats, error) {
	cells, err := a.cells.ListCells(ctx)
	if err != nil {
		return models.CityStats{}, wrap.Error(ctx, err)
	}

	now := time.Now()
	stats := models.CityStats{
		CellsByLevel: make(map[types.TrafficLevel]int),
		GeneratedAt:  now,
		OverallLevel: types.LevelFluide,
	}

	var speeds []float64
	for _, cell := range cells {
		if !a.reportable(cell, now) {
			continue
		}
		stats.ActiveCells++
		stats.CellsByLevel[cell.Level]++
		speeds = append(speeds, cell.AvgSpeedKmh)
	}

	if len(speeds) > 0 {
		stats.AvgCitySpeed = stat.Mean(speeds, nil)
		stats.OverallLevel = a.cfg.Bands.Classify(stats.AvgCitySpeed)
	}

	return stats, nil
}

// RouteTraffic maps each waypoint to its cell's current snapshot so a caller
// can color a route or score it.
func (a *Aggregator) RouteTraffic(ctx context.Context, waypoints []models.Location) ([]models.RouteSegment, error) {
	now := time.Now()
	segments := make([]models.RouteSegment, 0, len(waypoints))

	for _, wp := range waypoints {
		cellID := a.grid.CellID(wp.Latitude, wp.Longitude)
		segment := models.RouteSegment{
			Waypoint: wp,
			CellID:   cellID,
		}

		cell, found, err := a.cells.GetCell(ctx, cellID)
		if err != nil {
			return nil, wrap.Error(ctx, err)
		}
		if found && a.reportable(cell, now) {
			segment.Level = cell.Level
			segment.AvgSpeedKmh = cell.AvgSpeedKmh
			segment.Known = true
		}

		segments = append(segments, segment)
	}

	return segments, nil
}

// CellDetail returns a single cell including its raw window.
func (a *Aggregator) CellDetail(ctx context.Context, cellID string) (models.TrafficCell, error) {
	cell, found, err := a.cells.GetCell(ctx, cellID)
	if err != nil {
		return models.TrafficCell{}, wrap.Error(ctx, err)
	}
	if !found || !a.reportable(cell, time.Now()) {
		return models.TrafficCell{}, types.ErrCellNotFound
	}
	return cell, nil
}
