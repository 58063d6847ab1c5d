package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/adapter/http/handler/dto"
	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
	"github.com/velodrop/courier-dispatch-system/pkg/metrics"
	"github.com/velodrop/courier-dispatch-system/pkg/validator"
)

type TrafficService interface {
	Ingest(ctx context.Context, agentID uuid.UUID, lat, lng float64, at time.Time) (*float64, error)
	Heatmap(ctx context.Context, bbox *models.BoundingBox) ([]models.HeatmapCell, error)
	Stats(ctx context.Context) (models.CityStats, error)
	RouteTraffic(ctx context.Context, waypoints []models.Location) ([]models.RouteSegment, error)
	CellDetail(ctx context.Context, cellID string) (models.TrafficCell, error)
}

type Traffic struct {
	service     TrafficService
	serviceName string
	l           logger.Logger
}

func NewTraffic(service TrafficService, serviceName string, l logger.Logger) *Traffic {
	return &Traffic{
		service:     service,
		serviceName: serviceName,
		l:           l,
	}
}

// IngestLocation godoc
// @Summary      Report a GPS fix
// @Description  Feeds one anonymous GPS fix into the crowd-sourced traffic picture
// @Tags         Traffic
// @Accept       json
// @Produce      json
// @Param        request body dto.LocationIngestReq true "GPS fix"
// @Success      202  {object}  map[string]any
// @Router       /v1/traffic/locations [post]
func (h *Traffic) IngestLocation(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "traffic_ingest_location")

	principal := models.PrincipalFromContext(ctx)
	if principal.IsAnonymous() {
		errorResponse(w, http.StatusUnauthorized, "authorization required")
		return
	}

	var req dto.LocationIngestReq
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

	speed, err := h.service.Ingest(ctx, principal.ID, *req.Latitude, *req.Longitude, req.At())
	if err != nil {
		metrics.RecordSampleIngested(h.serviceName, false)
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to ingest location", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}
	metrics.RecordSampleIngested(h.serviceName, speed != nil)

	response := envelope{"status": "accepted"}
	if speed != nil {
		response["speed_kmh"] = *speed
	}

	if err := writeJSON(w, http.StatusAccepted, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// Heatmap godoc
// @Summary      Traffic heatmap
// @Description  Returns the congestion level per grid cell, optionally bounded by a bounding box
// @Tags         Traffic
// @Produce      json
// @Param        min_lat query number false "Bounding box minimum latitude"
// @Param        min_lng query number false "Bounding box minimum longitude"
// @Param        max_lat query number false "Bounding box maximum latitude"
// @Param        max_lng query number false "Bounding box maximum longitude"
// @Success      200  {object}  map[string]any
// @Router       /v1/traffic/heatmap [get]
func (h *Traffic) Heatmap(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "traffic_heatmap")

	v := validator.New()
	qs := r.URL.Query()

	var bbox *models.BoundingBox
	if qs.Has("min_lat") || qs.Has("min_lng") || qs.Has("max_lat") || qs.Has("max_lng") {
		bbox = &models.BoundingBox{
			MinLat: readFloat(qs, "min_lat", -90, v),
			MinLng: readFloat(qs, "min_lng", -180, v),
			MaxLat: readFloat(qs, "max_lat", 90, v),
			MaxLng: readFloat(qs, "max_lng", 180, v),
		}
		v.Check(bbox.MinLat <= bbox.MaxLat, "min_lat", "must not exceed max_lat")
		v.Check(bbox.MinLng <= bbox.MaxLng, "min_lng", "must not exceed max_lng")
	}

	if !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	cells, err := h.service.Heatmap(ctx, bbox)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to build heatmap", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"cells":        cells,
		"generated_at": time.Now(),
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// Stats godoc
// @Summary      City-wide traffic statistics
// @Tags         Traffic
// @Produce      json
// @Success      200  {object}  models.CityStats
// @Router       /v1/traffic/stats [get]
func (h *Traffic) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "traffic_stats")

	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to compute stats", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"stats": stats}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// RouteTraffic godoc
// @Summary      Traffic along a route
// @Description  Classifies each waypoint of the given route against the live traffic picture
// @Tags         Traffic
// @Accept       json
// @Produce      json
// @Param        request body dto.RouteTrafficReq true "Route waypoints"
// @Success      200  {object}  map[string]any
// @Router       /v1/traffic/route [post]
func (h *Traffic) RouteTraffic(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "traffic_route")

	var req dto.RouteTrafficReq
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

	segments, err := h.service.RouteTraffic(ctx, req.ToLocations())
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to classify route traffic", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"segments": segments}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// CellDetail godoc
// @Summary      Traffic cell detail
// @Tags         Traffic
// @Produce      json
// @Param        cell_id path string true "Grid cell ID"
// @Success      200  {object}  models.TrafficCell
// @Router       /v1/traffic/cells/{cell_id} [get]
func (h *Traffic) CellDetail(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "traffic_cell_detail")

	cellID := r.PathValue("cell_id")
	if cellID == "" {
		badRequestResponse(w, "cell_id must be provided")
		return
	}

	cell, err := h.service.CellDetail(ctx, cellID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to get cell detail", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"cell": cell}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}
