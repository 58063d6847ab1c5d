package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/pkg/validator"
)

const (
	MsgTypeLocationUpdate = "location_update"
	MsgTypeOfferResponse  = "offer_response"
)

// InboundEnvelope carries only the type discriminator; the payload is
// re-decoded once the type is known.
type InboundEnvelope struct {
	MsgType string `json:"type"`
}

type LocationUpdateMsg struct {
	MsgType   string    `json:"type"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *LocationUpdateMsg) Validate(v *validator.Validator) {
	v.Check(validator.ValidLatitude(m.Latitude), "latitude", "must be between -90 and 90")
	v.Check(validator.ValidLongitude(m.Longitude), "longitude", "must be between -180 and 180")
	v.Check(!(m.Latitude == 0 && m.Longitude == 0), "location", "zero island coordinates are rejected")
}

type OfferResponseMsg struct {
	MsgType  string    `json:"type"`
	OfferID  uuid.UUID `json:"offer_id"`
	OrderID  uuid.UUID `json:"order_id"`
	Accepted bool      `json:"accepted"`
}

func (m *OfferResponseMsg) Validate(v *validator.Validator) {
	v.Check(m.OfferID != uuid.Nil, "offer_id", "must be provided")
	v.Check(m.OrderID != uuid.Nil, "order_id", "must be provided")
}
