package geo

import (
	"fmt"
	"math"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
)

// Meters covered by one degree of latitude (and one degree of longitude at
// the equator), equirectangular approximation.
const metersPerDegree = 111_300.0

// Grid maps geographic points onto fixed-size square cells. The longitude
// step is derived from the operating latitude, so a single Grid instance is
// meant for one city. Pure and deterministic: the same point always lands in
// the same cell regardless of call order.
type Grid struct {
	cellSizeM float64
	stepLat   float64
	stepLng   float64
}

// NewGrid builds a grid of cellSizeM x cellSizeM meter cells calibrated at
// the given operating latitude.
func NewGrid(cellSizeM, operatingLat float64) *Grid {
	return &Grid{
		cellSizeM: cellSizeM,
		stepLat:   cellSizeM / metersPerDegree,
		stepLng:   cellSizeM / (metersPerDegree * math.Cos(degreesToRadians(operatingLat))),
	}
}

// CellID returns the id of the cell containing the point,
// formatted as "cell_{latIdx}_{lngIdx}".
func (g *Grid) CellID(lat, lng float64) string {
	latIdx := int64(math.Floor(lat / g.stepLat))
	lngIdx := int64(math.Floor(lng / g.stepLng))
	return fmt.Sprintf("cell_%d_%d", latIdx, lngIdx)
}

// Centroid returns the center point of the cell containing the given point.
func (g *Grid) Centroid(lat, lng float64) models.Location {
	latIdx := math.Floor(lat / g.stepLat)
	lngIdx := math.Floor(lng / g.stepLng)
	return models.Location{
		Latitude:  (latIdx + 0.5) * g.stepLat,
		Longitude: (lngIdx + 0.5) * g.stepLng,
	}
}

// CellSizeM returns the configured cell edge length in meters.
func (g *Grid) CellSizeM() float64 {
	return g.cellSizeM
}
