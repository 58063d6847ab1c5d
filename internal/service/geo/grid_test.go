package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_CellID_Deterministic(t *testing.T) {
	g := NewGrid(200, 36.75)

	a := g.CellID(36.752345, 3.042001)
	b := g.CellID(36.752345, 3.042001)
	assert.Equal(t, a, b)

	// Two points a few meters apart fall into the same ~200m cell.
	c := g.CellID(36.752360, 3.042020)
	assert.Equal(t, a, c)
}

func TestGrid_CellID_SeparatesDistantPoints(t *testing.T) {
	g := NewGrid(200, 36.75)

	a := g.CellID(36.7520, 3.0420)
	// ~500m north
	b := g.CellID(36.7565, 3.0420)
	assert.NotEqual(t, a, b)
}

func TestGrid_Centroid_InsideCell(t *testing.T) {
	g := NewGrid(200, 36.75)

	lat, lng := 36.752345, 3.042001
	centroid := g.Centroid(lat, lng)

	require.Equal(t, g.CellID(lat, lng), g.CellID(centroid.Latitude, centroid.Longitude))
}

func TestGrid_CellID_NegativeCoordinates(t *testing.T) {
	g := NewGrid(200, -23.55) // São Paulo latitude

	a := g.CellID(-23.550520, -46.633308)
	b := g.CellID(-23.550530, -46.633310)
	assert.Equal(t, a, b)
}

func TestHaversineDistance(t *testing.T) {
	// Algiers city center to a point ~1.1km east.
	d := HaversineDistance(36.7525, 3.0420, 36.7525, 3.0545)
	assert.InDelta(t, 1.11, d, 0.05)

	// Zero distance for identical points.
	assert.Zero(t, HaversineDistance(36.7525, 3.0420, 36.7525, 3.0420))
}
