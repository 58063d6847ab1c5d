package handler

import (
	"context"
	"net/http"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

type AdminService interface {
	Overview(ctx context.Context) (*models.DispatchOverview, error)
}

type Admin struct {
	service AdminService
	l       logger.Logger
}

func NewAdmin(service AdminService, l logger.Logger) *Admin {
	return &Admin{
		service: service,
		l:       l,
	}
}

// Overview godoc
// @Summary      Operations overview
// @Description  In-flight dispatch searches and courier roster counts
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  models.DispatchOverview
// @Security     BearerAuth
// @Router       /v1/admin/overview [get]
func (h *Admin) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_get_overview")

	overview, err := h.service.Overview(ctx)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to get overview", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"overview": overview}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}
