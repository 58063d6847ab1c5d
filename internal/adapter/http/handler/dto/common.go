package dto

import (
	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/pkg/validator"
)

// CoordinateUpdateReq is the shared lat/lng payload. Pointers distinguish
// "missing" from a legitimate zero value.
type CoordinateUpdateReq struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (r *CoordinateUpdateReq) Validate(v *validator.Validator) {
	if r.Latitude != nil && r.Longitude != nil {
		v.Check(validator.ValidLatitude(*r.Latitude), "latitude", "must be between -90 and 90")
		v.Check(validator.ValidLongitude(*r.Longitude), "longitude", "must be between -180 and 180")
		v.Check(!(*r.Latitude == 0 && *r.Longitude == 0), "location", "zero island coordinates are rejected")
	} else {
		v.Check(r.Latitude != nil, "latitude", "must be provided")
		v.Check(r.Longitude != nil, "longitude", "must be provided")
	}
}

func (r *CoordinateUpdateReq) ToLocation() models.Location {
	return models.Location{
		Latitude:  *r.Latitude,
		Longitude: *r.Longitude,
	}
}
