package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
	"github.com/velodrop/courier-dispatch-system/pkg/metrics"
)

// CourierService manages the courier availability lifecycle. Couriers are
// registered upstream; here they only flip between OFFLINE and AVAILABLE
// and keep their position fresh.
type CourierService struct {
	repo    CourierRepo
	bus     Publisher
	service string

	l logger.Logger
}

func NewCourierService(repo CourierRepo, bus Publisher, service string, l logger.Logger) *CourierService {
	return &CourierService{
		repo:    repo,
		bus:     bus,
		service: service,

		l: l,
	}
}

func (s *CourierService) GoOnline(ctx context.Context, courierID uuid.UUID, location models.Location) error {
	ctx = wrap.WithAction(wrap.WithCourierID(ctx, courierID.String()), "courier_go_online")

	if err := s.repo.SetOnline(ctx, courierID, location); err != nil {
		return wrap.Error(ctx, err)
	}

	metrics.CouriersOnlineGauge.WithLabelValues(s.service).Inc()
	s.l.Info(ctx, "courier is online")

	s.announceStatus(ctx, courierID, types.StatusCourierAvailable)
	return nil
}

func (s *CourierService) GoOffline(ctx context.Context, courierID uuid.UUID) error {
	ctx = wrap.WithAction(wrap.WithCourierID(ctx, courierID.String()), "courier_go_offline")

	if err := s.repo.SetOffline(ctx, courierID); err != nil {
		return wrap.Error(ctx, err)
	}

	metrics.CouriersOnlineGauge.WithLabelValues(s.service).Dec()
	s.l.Info(ctx, "courier is offline")

	s.announceStatus(ctx, courierID, types.StatusCourierOffline)
	return nil
}

func (s *CourierService) UpdateLocation(ctx context.Context, courierID uuid.UUID, location models.Location) error {
	if err := s.repo.UpdateLocation(ctx, courierID, location); err != nil {
		return wrap.Error(ctx, err)
	}
	return nil
}

func (s *CourierService) GetByID(ctx context.Context, courierID uuid.UUID) (*models.Courier, error) {
	return s.repo.GetByID(ctx, courierID)
}

// announceStatus is best-effort: a missed notification never blocks the
// status change itself.
func (s *CourierService) announceStatus(ctx context.Context, courierID uuid.UUID, status types.CourierStatus) {
	msg := models.CourierStatusUpdateMessage{
		CourierID: courierID,
		Status:    status,
		Timestamp: time.Now(),
	}
	if err := s.bus.CourierStatusChanged(ctx, msg); err != nil {
		s.l.Warn(ctx, "failed to publish courier status", "status", status, "error", err.Error())
	}
}
