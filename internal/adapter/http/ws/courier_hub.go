package wshandler

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	ws "github.com/velodrop/courier-dispatch-system/pkg/wsHub"
)

// CourierHub pushes dispatch messages to connected couriers. It satisfies
// the orchestrator's OfferSender; delivery failures are the caller's signal
// that the courier is unreachable.
type CourierHub struct {
	connections *ws.ConnectionHub
}

func NewCourierHub(connHub *ws.ConnectionHub) *CourierHub {
	return &CourierHub{
		connections: connHub,
	}
}

func (h *CourierHub) SendOffer(courierID uuid.UUID, offer models.OrderOffer) error {
	const op = "CourierHub.SendOffer"

	msg, err := toMap(offer)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := h.connections.SendTo(courierID, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (h *CourierHub) SendOfferResult(courierID uuid.UUID, result models.OrderOfferResult) error {
	const op = "CourierHub.SendOfferResult"

	msg, err := toMap(result)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := h.connections.SendTo(courierID, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// toMap round-trips a struct through JSON because Conn.Send takes a map.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}
