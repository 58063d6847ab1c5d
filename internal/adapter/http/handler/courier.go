package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/adapter/http/handler/dto"
	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
	"github.com/velodrop/courier-dispatch-system/pkg/validator"
)

type CourierService interface {
	GoOnline(ctx context.Context, courierID uuid.UUID, location models.Location) error
	GoOffline(ctx context.Context, courierID uuid.UUID) error
	UpdateLocation(ctx context.Context, courierID uuid.UUID, location models.Location) error
	GetByID(ctx context.Context, courierID uuid.UUID) (*models.Courier, error)
}

type Courier struct {
	service CourierService
	l       logger.Logger
}

func NewCourier(service CourierService, l logger.Logger) *Courier {
	return &Courier{
		service: service,
		l:       l,
	}
}

// courierFromContext resolves the acting courier from the access token.
func courierFromContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	principal := models.PrincipalFromContext(r.Context())
	if principal.IsAnonymous() || principal.Role != types.RoleCourier {
		errorResponse(w, http.StatusUnauthorized, "courier authorization required")
		return uuid.Nil, false
	}
	return principal.ID, true
}

// GoOnline godoc
// @Summary      Go online
// @Description  Marks the courier available for dispatch at the given position
// @Tags         Couriers
// @Accept       json
// @Produce      json
// @Param        request body dto.CoordinateUpdateReq true "Current position"
// @Success      201  {object}  map[string]any
// @Router       /v1/couriers/online [post]
func (h *Courier) GoOnline(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "set_courier_online")

	courierID, ok := courierFromContext(w, r)
	if !ok {
		return
	}

	var req dto.CoordinateUpdateReq
	if err := readJSON(w, r, &req); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to read request JSON data", err)
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid request data")
		failedValidationResponse(w, v.Errors)
		return
	}

	if err := h.service.GoOnline(ctx, courierID, req.ToLocation()); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to set courier status to online", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"status":  types.StatusCourierAvailable,
		"message": "You are now online and ready to receive offers",
	}

	if err := writeJSON(w, http.StatusCreated, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "courier set to online successfully", "courier_id", courierID)
}

// GoOffline godoc
// @Summary      Go offline
// @Description  Removes the courier from dispatch consideration
// @Tags         Couriers
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /v1/couriers/offline [post]
func (h *Courier) GoOffline(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "set_courier_offline")

	courierID, ok := courierFromContext(w, r)
	if !ok {
		return
	}

	if err := h.service.GoOffline(ctx, courierID); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to set courier status to offline", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"status":  types.StatusCourierOffline,
		"message": "You are now offline",
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "courier set to offline successfully", "courier_id", courierID)
}

// UpdateLocation godoc
// @Summary      Update position
// @Description  REST fallback for couriers without an open WebSocket
// @Tags         Couriers
// @Accept       json
// @Produce      json
// @Param        request body dto.CoordinateUpdateReq true "Current position"
// @Success      200  {object}  map[string]any
// @Router       /v1/couriers/location [put]
func (h *Courier) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "update_courier_location")

	courierID, ok := courierFromContext(w, r)
	if !ok {
		return
	}

	var req dto.CoordinateUpdateReq
	if err := readJSON(w, r, &req); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to read request JSON data", err)
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid request data")
		failedValidationResponse(w, v.Errors)
		return
	}

	if err := h.service.UpdateLocation(ctx, courierID, req.ToLocation()); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to update location", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"status": "ok"}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// Me godoc
// @Summary      Current courier profile
// @Tags         Couriers
// @Produce      json
// @Success      200  {object}  models.Courier
// @Router       /v1/couriers/me [get]
func (h *Courier) Me(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_courier_profile")

	courierID, ok := courierFromContext(w, r)
	if !ok {
		return
	}

	courier, err := h.service.GetByID(ctx, courierID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to get courier", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"courier": courier}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}
