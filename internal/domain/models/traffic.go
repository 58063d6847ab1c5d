package models

import (
	"time"

	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
)

// SpeedObservation is a single (speed, timestamp) sample inside a cell's
// rolling window.
type SpeedObservation struct {
	SpeedKmh   float64   `json:"speed_kmh"`
	ObservedAt time.Time `json:"observed_at"`
}

// TrafficCell is the aggregated traffic picture of one grid cell.
// Lives in the cell store under a TTL; recomputed on every ingested sample.
type TrafficCell struct {
	CellID       string             `json:"cell_id"`
	Centroid     Location           `json:"centroid"`
	Observations []SpeedObservation `json:"observations"`
	SampleCount  int                `json:"sample_count"`
	AvgSpeedKmh  float64            `json:"avg_speed_kmh"`
	Level        types.TrafficLevel `json:"level"`
	LastUpdated  time.Time          `json:"last_updated"`
}

// HeatmapCell is a TrafficCell ready for direct rendering.
type HeatmapCell struct {
	CellID      string             `json:"cell_id"`
	Centroid    Location           `json:"centroid"`
	AvgSpeedKmh float64            `json:"avg_speed_kmh"`
	SampleCount int                `json:"sample_count"`
	Level       types.TrafficLevel `json:"level"`
	Color       string             `json:"color"`
	LastUpdated time.Time          `json:"last_updated"`
}

// CityStats is the city-wide rollup over all reportable cells.
type CityStats struct {
	ActiveCells  int                        `json:"active_cells"`
	AvgCitySpeed float64                    `json:"avg_city_speed_kmh"`
	OverallLevel types.TrafficLevel         `json:"overall_level"`
	CellsByLevel map[types.TrafficLevel]int `json:"cells_by_level"`
	GeneratedAt  time.Time                  `json:"generated_at"`
}

// RouteSegment is the traffic snapshot of a single route waypoint.
type RouteSegment struct {
	Waypoint    Location           `json:"waypoint"`
	CellID      string             `json:"cell_id"`
	Level       types.TrafficLevel `json:"level"`
	AvgSpeedKmh float64            `json:"avg_speed_kmh"`
	Known       bool               `json:"known"` // false when the cell has no reportable data
}
