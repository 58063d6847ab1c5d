package dto

import (
	"time"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/pkg/validator"
)

type LocationIngestReq struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Timestamp *time.Time `json:"timestamp"`
}

func (r *LocationIngestReq) Validate(v *validator.Validator) {
	coords := CoordinateUpdateReq{Latitude: r.Latitude, Longitude: r.Longitude}
	coords.Validate(v)
}

// At returns the fix time, defaulting to now for clients that don't send one.
func (r *LocationIngestReq) At() time.Time {
	if r.Timestamp == nil || r.Timestamp.IsZero() {
		return time.Now()
	}
	return *r.Timestamp
}

type RouteTrafficReq struct {
	Waypoints []CoordinateUpdateReq `json:"waypoints"`
}

func (r *RouteTrafficReq) Validate(v *validator.Validator) {
	v.Check(len(r.Waypoints) >= 2, "waypoints", "must contain at least two points")
	for _, wp := range r.Waypoints {
		wp.Validate(v)
	}
}

func (r *RouteTrafficReq) ToLocations() []models.Location {
	locations := make([]models.Location, 0, len(r.Waypoints))
	for _, wp := range r.Waypoints {
		locations = append(locations, wp.ToLocation())
	}
	return locations
}
