package types

type DispatchEvent string

func (s DispatchEvent) String() string {
	return string(s)
}

const (
	EventOrderCreated      DispatchEvent = "ORDER_CREATED"
	EventOrderOffered      DispatchEvent = "ORDER_OFFERED"
	EventOrderAssigned     DispatchEvent = "ORDER_ASSIGNED"
	EventOrderCancelled    DispatchEvent = "ORDER_CANCELLED"
	EventDispatchExhausted DispatchEvent = "DISPATCH_EXHAUSTED"
	EventStatusChanged     DispatchEvent = "STATUS_CHANGED"
	EventLocationUpdated   DispatchEvent = "LOCATION_UPDATED"
)
