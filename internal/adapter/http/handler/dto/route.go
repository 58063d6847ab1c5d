package dto

import (
	"github.com/velodrop/courier-dispatch-system/pkg/validator"
)

type PlanRouteReq struct {
	Origin      CoordinateUpdateReq `json:"origin"`
	Destination CoordinateUpdateReq `json:"destination"`
}

func (r *PlanRouteReq) Validate(v *validator.Validator) {
	r.Origin.Validate(v)
	r.Destination.Validate(v)
}
