package wshandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/velodrop/courier-dispatch-system/internal/adapter/http/ws/dto"
	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
	"github.com/velodrop/courier-dispatch-system/pkg/metrics"
	"github.com/velodrop/courier-dispatch-system/pkg/validator"
	ws "github.com/velodrop/courier-dispatch-system/pkg/wsHub"
)

type (
	// LocationIngestor feeds GPS fixes into the crowdsourced traffic engine.
	LocationIngestor interface {
		Ingest(ctx context.Context, agentID uuid.UUID, lat, lng float64, at time.Time) (*float64, error)
	}

	// CourierTracker keeps the roster's last known positions current.
	CourierTracker interface {
		UpdateLocation(ctx context.Context, id uuid.UUID, location models.Location) error
	}

	// OfferResponder routes offer answers back into the dispatch engine.
	OfferResponder interface {
		Accept(ctx context.Context, orderID, courierID uuid.UUID) error
		Decline(ctx context.Context, orderID, courierID uuid.UUID)
	}
)

// CourierSocket is the courier-facing WebSocket endpoint: offers flow out
// through the hub, location pings and offer answers flow in here.
type CourierSocket struct {
	connections *ws.ConnectionHub
	traffic     LocationIngestor
	couriers    CourierTracker
	dispatch    OfferResponder
	service     string

	upgrader websocket.Upgrader
	l        logger.Logger
}

func NewCourierSocket(
	connHub *ws.ConnectionHub,
	traffic LocationIngestor,
	couriers CourierTracker,
	dispatch OfferResponder,
	service string,
	log logger.Logger,
) *CourierSocket {
	return &CourierSocket{
		connections: connHub,
		traffic:     traffic,
		couriers:    couriers,
		dispatch:    dispatch,
		service:     service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		l: log,
	}
}

func (h *CourierSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "courier_ws_connect")

	principal := models.PrincipalFromContext(ctx)
	if principal.IsAnonymous() || principal.Role != types.RoleCourier {
		http.Error(w, "courier authorization required", http.StatusUnauthorized)
		return
	}
	courierID := principal.ID
	ctx = wrap.WithCourierID(ctx, courierID.String())

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Error(ctx, "websocket upgrade failed", err)
		return
	}

	conn := ws.NewConn(ctx, courierID, wsConn)
	if err := h.connections.Add(conn); err != nil {
		h.l.Error(ctx, "failed to register connection", err)
		_ = wsConn.Close()
		return
	}

	metrics.WebSocketConnectionsGauge.WithLabelValues(h.service).Inc()
	h.l.Info(ctx, "courier connected")

	defer func() {
		_ = h.connections.Delete(courierID)
		metrics.WebSocketConnectionsGauge.WithLabelValues(h.service).Dec()
		h.l.Info(ctx, "courier disconnected")
	}()

	// Blocks until the courier hangs up or a read fails.
	err = conn.Listen(func(msg map[string]any) error {
		if err := h.handleMessage(ctx, conn, courierID, msg); err != nil {
			h.l.Warn(ctx, "inbound message rejected", "error", err.Error())
			_ = errorResponse(conn, err.Error())
		}
		// Bad messages don't kill the connection.
		return nil
	})
	if err != nil {
		h.l.Debug(ctx, "listen loop ended", "reason", err.Error())
	}
}

func (h *CourierSocket) handleMessage(ctx context.Context, conn *ws.Conn, courierID uuid.UUID, msg map[string]any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	var env dto.InboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	switch env.MsgType {
	case dto.MsgTypeLocationUpdate:
		return h.handleLocation(ctx, conn, courierID, data)
	case dto.MsgTypeOfferResponse:
		return h.handleOfferResponse(ctx, courierID, data)
	default:
		return errors.New("unknown message type: " + env.MsgType)
	}
}

// handleLocation feeds the fix to the traffic engine and refreshes the
// courier's roster position. A stale roster entry only widens the next
// dispatch search, so that failure is logged and swallowed.
func (h *CourierSocket) handleLocation(ctx context.Context, conn *ws.Conn, courierID uuid.UUID, data []byte) error {
	ctx = wrap.WithAction(ctx, "courier_ws_location")

	var req dto.LocationUpdateMsg
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		return failedValidationResponse(conn, v.Errors)
	}

	at := req.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	speed, err := h.traffic.Ingest(ctx, courierID, req.Latitude, req.Longitude, at)
	if err != nil {
		metrics.RecordSampleIngested(h.service, false)
		return err
	}
	metrics.RecordSampleIngested(h.service, speed != nil)

	location := models.Location{Latitude: req.Latitude, Longitude: req.Longitude}
	if err := h.couriers.UpdateLocation(ctx, courierID, location); err != nil {
		if !errors.Is(err, types.ErrCourierOffline) {
			h.l.Warn(ctx, "failed to update courier location", "error", err.Error())
		}
	}

	if speed != nil {
		h.l.Debug(ctx, "speed sample derived", "speed_kmh", *speed)
	}
	return nil
}

func (h *CourierSocket) handleOfferResponse(ctx context.Context, courierID uuid.UUID, data []byte) error {
	ctx = wrap.WithAction(ctx, "courier_ws_offer_response")

	var req dto.OfferResponseMsg
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		return errors.New("offer response failed validation")
	}

	ctx = wrap.WithOrderID(ctx, req.OrderID.String())

	if !req.Accepted {
		h.dispatch.Decline(ctx, req.OrderID, courierID)
		return nil
	}

	if err := h.dispatch.Accept(ctx, req.OrderID, courierID); err != nil {
		// Losing the acceptance race or answering a dead offer is normal;
		// neither should tear down the socket.
		if errors.Is(err, types.ErrOrderAlreadyTaken) || errors.Is(err, types.ErrOfferNotFound) {
			return nil
		}
		return err
	}
	return nil
}
