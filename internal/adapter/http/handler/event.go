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
	"github.com/velodrop/courier-dispatch-system/pkg/metrics"
	"github.com/velodrop/courier-dispatch-system/pkg/validator"
)

type EventService interface {
	Report(ctx context.Context, reporterID uuid.UUID, eventType types.TrafficEventType, severity types.EventSeverity, location models.Location, description string, photoRef *string) (*models.TrafficEvent, error)
	Vote(ctx context.Context, eventID, voterID uuid.UUID, isUpvote bool) (*models.TrafficEvent, error)
	ListActive(ctx context.Context, near *models.Location, radiusKm float64, eventType types.TrafficEventType) ([]models.TrafficEvent, error)
	Delete(ctx context.Context, eventID, requesterID uuid.UUID, isAdmin bool) error
}

type Event struct {
	service     EventService
	serviceName string
	l           logger.Logger
}

func NewEvent(service EventService, serviceName string, l logger.Logger) *Event {
	return &Event{
		service:     service,
		serviceName: serviceName,
		l:           l,
	}
}

// Report godoc
// @Summary      Report a traffic event
// @Description  Crowd-reports an incident (accident, roadblock, flooding, pothole) at a location
// @Tags         Events
// @Accept       json
// @Produce      json
// @Param        request body dto.ReportEventReq true "Event report"
// @Success      201  {object}  map[string]any
// @Router       /v1/traffic/events [post]
func (h *Event) Report(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "report_traffic_event")

	principal := models.PrincipalFromContext(ctx)
	if principal.IsAnonymous() {
		errorResponse(w, http.StatusUnauthorized, "authorization required")
		return
	}

	var req dto.ReportEventReq
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

	location := models.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	event, err := h.service.Report(ctx, principal.ID,
		types.TrafficEventType(req.EventType), types.EventSeverity(req.Severity),
		location, req.Description, req.PhotoRef)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to report event", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	metrics.TrafficEventsReportedTotal.WithLabelValues(h.serviceName, string(event.Type)).Inc()

	if err := writeJSON(w, http.StatusCreated, envelope{"event": event}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "traffic event reported", "event_id", event.ID, "type", event.Type)
}

// List godoc
// @Summary      List active traffic events
// @Tags         Events
// @Produce      json
// @Param        type query string false "Filter by event type"
// @Param        lat query number false "Center latitude for radius filter"
// @Param        lng query number false "Center longitude for radius filter"
// @Param        radius_km query number false "Radius in kilometers (default 5)"
// @Success      200  {object}  map[string]any
// @Router       /v1/traffic/events [get]
func (h *Event) List(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "list_traffic_events")

	v := validator.New()
	qs := r.URL.Query()

	eventType := types.TrafficEventType(readString(qs, "type", ""))
	if eventType != "" {
		v.Check(validator.PermittedValue(eventType,
			types.EventAccident, types.EventRoadblock, types.EventFlooding, types.EventPothole),
			"type", "must be one of: ACCIDENT, ROADBLOCK, FLOODING, POTHOLE")
	}

	var near *models.Location
	radiusKm := readFloat(qs, "radius_km", 5, v)
	if qs.Has("lat") || qs.Has("lng") {
		lat := readFloat(qs, "lat", 0, v)
		lng := readFloat(qs, "lng", 0, v)
		v.Check(validator.ValidLatitude(lat), "lat", "must be between -90 and 90")
		v.Check(validator.ValidLongitude(lng), "lng", "must be between -180 and 180")
		v.Check(radiusKm > 0, "radius_km", "must be positive")
		near = &models.Location{Latitude: lat, Longitude: lng}
	}

	if !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	events, err := h.service.ListActive(ctx, near, radiusKm, eventType)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to list events", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"events": events}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// Vote godoc
// @Summary      Vote on a traffic event
// @Description  Confirms or denies a reported event; five downvotes with low confidence deactivate it
// @Tags         Events
// @Accept       json
// @Produce      json
// @Param        event_id path string true "Event ID"
// @Param        request body dto.VoteEventReq true "Vote direction"
// @Success      200  {object}  map[string]any
// @Router       /v1/traffic/events/{event_id}/vote [post]
func (h *Event) Vote(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "vote_traffic_event")

	principal := models.PrincipalFromContext(ctx)
	if principal.IsAnonymous() {
		errorResponse(w, http.StatusUnauthorized, "authorization required")
		return
	}

	eventID, err := uuid.Parse(r.PathValue("event_id"))
	if err != nil {
		h.l.Warn(ctx, "invalid event uuid format")
		badRequestResponse(w, "invalid event uuid format")
		return
	}

	var req dto.VoteEventReq
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

	event, err := h.service.Vote(ctx, eventID, principal.ID, *req.IsUpvote)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to register vote", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"event_id":   event.ID,
		"upvotes":    event.Upvotes,
		"downvotes":  event.Downvotes,
		"confidence": event.Confidence,
		"is_active":  event.IsActive,
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// Delete godoc
// @Summary      Delete a traffic event
// @Description  Removes an event report; only the reporter or an admin may delete it
// @Tags         Events
// @Param        event_id path string true "Event ID"
// @Success      204
// @Router       /v1/traffic/events/{event_id} [delete]
func (h *Event) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "delete_traffic_event")

	principal := models.PrincipalFromContext(ctx)
	if principal.IsAnonymous() {
		errorResponse(w, http.StatusUnauthorized, "authorization required")
		return
	}

	eventID, err := uuid.Parse(r.PathValue("event_id"))
	if err != nil {
		h.l.Warn(ctx, "invalid event uuid format")
		badRequestResponse(w, "invalid event uuid format")
		return
	}

	if err := h.service.Delete(ctx, eventID, principal.ID, principal.IsAdmin()); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to delete event", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
	h.l.Info(ctx, "traffic event deleted", "event_id", eventID)
}
