package dto

import (
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/validator"
)

type ReportEventReq struct {
	EventType   string   `json:"event_type"`
	Severity    string   `json:"severity"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Description string   `json:"description"`
	PhotoRef    *string  `json:"photo_ref"`
}

func (r *ReportEventReq) Validate(v *validator.Validator) {
	v.Check(r.EventType != "", "event_type", "must be provided")
	v.Check(validator.PermittedValue(types.TrafficEventType(r.EventType),
		types.EventAccident, types.EventRoadblock, types.EventFlooding, types.EventPothole),
		"event_type", "must be one of: ACCIDENT, ROADBLOCK, FLOODING, POTHOLE")

	if r.Severity != "" {
		v.Check(validator.PermittedValue(types.EventSeverity(r.Severity),
			types.SeverityLow, types.SeverityMedium, types.SeverityHigh, types.SeverityCritical),
			"severity", "must be one of: LOW, MEDIUM, HIGH, CRITICAL")
	}

	coords := CoordinateUpdateReq{Latitude: r.Latitude, Longitude: r.Longitude}
	coords.Validate(v)

	v.Check(len(r.Description) <= 500, "description", "must be at most 500 characters")
}

type VoteEventReq struct {
	IsUpvote *bool `json:"is_upvote"`
}

func (r *VoteEventReq) Validate(v *validator.Validator) {
	v.Check(r.IsUpvote != nil, "is_upvote", "must be provided")
}
