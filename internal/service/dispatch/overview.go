package dispatch

import (
	"context"
	"time"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

// CourierCounter groups the roster by status.
type CourierCounter interface {
	CountByStatus(ctx context.Context) (map[types.CourierStatus]int, error)
}

// OverviewService assembles the operator snapshot: in-flight searches from
// the orchestrator, roster counts from storage.
type OverviewService struct {
	couriers     CourierCounter
	orchestrator *Orchestrator

	l logger.Logger
}

func NewOverviewService(couriers CourierCounter, orchestrator *Orchestrator, l logger.Logger) *OverviewService {
	return &OverviewService{
		couriers:     couriers,
		orchestrator: orchestrator,

		l: l,
	}
}

func (s *OverviewService) Overview(ctx context.Context) (*models.DispatchOverview, error) {
	ctx = wrap.WithAction(ctx, "dispatch_overview")

	counts, err := s.couriers.CountByStatus(ctx)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	available := counts[types.StatusCourierAvailable]
	busy := counts[types.StatusCourierBusy]

	return &models.DispatchOverview{
		ActiveDispatches:  s.orchestrator.ActiveDispatches(),
		CouriersAvailable: available,
		CouriersBusy:      busy,
		CouriersOnline:    available + busy,
		GeneratedAt:       time.Now(),
	}, nil
}
