package handler

import (
	"context"
	"net/http"

	"github.com/velodrop/courier-dispatch-system/internal/adapter/http/handler/dto"
	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
	"github.com/velodrop/courier-dispatch-system/pkg/validator"
)

type RoutePlanner interface {
	Plan(ctx context.Context, origin, destination models.Location) (models.PlannedRoute, error)
}

type Route struct {
	planner RoutePlanner
	l       logger.Logger
}

func NewRoute(planner RoutePlanner, l logger.Logger) *Route {
	return &Route{
		planner: planner,
		l:       l,
	}
}

// Plan godoc
// @Summary      Plan a traffic-aware route
// @Description  Picks the least-congested alternative between origin and destination, steering around live incidents
// @Tags         Routing
// @Accept       json
// @Produce      json
// @Param        request body dto.PlanRouteReq true "Origin and destination"
// @Success      200  {object}  models.PlannedRoute
// @Router       /v1/routes/plan [post]
func (h *Route) Plan(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "plan_route")

	var req dto.PlanRouteReq
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

	route, err := h.planner.Plan(ctx, req.Origin.ToLocation(), req.Destination.ToLocation())
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to plan route", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"route": route}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}
