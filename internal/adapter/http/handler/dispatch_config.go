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

type DispatchConfigService interface {
	Get(ctx context.Context) (models.DispatchConfiguration, error)
	Update(ctx context.Context, cfg models.DispatchConfiguration) (models.DispatchConfiguration, error)
}

type DispatchConfig struct {
	service DispatchConfigService
	l       logger.Logger
}

func NewDispatchConfig(service DispatchConfigService, l logger.Logger) *DispatchConfig {
	return &DispatchConfig{
		service: service,
		l:       l,
	}
}

// Get godoc
// @Summary      Dispatch configuration
// @Description  Returns the active scoring weights, radii and thresholds
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  models.DispatchConfiguration
// @Router       /v1/admin/dispatch/config [get]
func (h *DispatchConfig) Get(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_dispatch_config")

	cfg, err := h.service.Get(ctx)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to get dispatch config", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"config":        cfg,
		"weights_valid": cfg.WeightsValid(),
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// Update godoc
// @Summary      Update dispatch configuration
// @Description  Replaces the scoring weights, radii and thresholds; weights should sum to 1.0
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body dto.UpdateDispatchConfigReq true "New configuration"
// @Success      200  {object}  models.DispatchConfiguration
// @Router       /v1/admin/dispatch/config [put]
func (h *DispatchConfig) Update(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "update_dispatch_config")

	var req dto.UpdateDispatchConfigReq
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

	cfg, err := h.service.Update(ctx, req.ToModel())
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to update dispatch config", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"config":        cfg,
		"weights_valid": cfg.WeightsValid(),
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "dispatch configuration updated")
}
