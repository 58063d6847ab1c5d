package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

// OrderMirror maintains the local copy of upstream orders.
type OrderMirror interface {
	Upsert(ctx context.Context, order *models.Order) error
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) error
}

// IntakeService reacts to order announcements from the bus: it mirrors the
// order locally and hands it to the orchestrator.
type IntakeService struct {
	mirror       OrderMirror
	orchestrator *Orchestrator

	l logger.Logger
}

func NewIntakeService(mirror OrderMirror, orchestrator *Orchestrator, l logger.Logger) *IntakeService {
	return &IntakeService{
		mirror:       mirror,
		orchestrator: orchestrator,

		l: l,
	}
}

// HandleOrderCreated mirrors the announced order and starts the dispatch
// search in the background. The consumer ack covers only the mirroring;
// the search outcome travels back over the bus.
func (s *IntakeService) HandleOrderCreated(ctx context.Context, msg models.OrderCreatedMessage) error {
	ctx = wrap.WithAction(wrap.WithOrderID(ctx, msg.OrderID.String()), "handle_order_created")

	s.l.Debug(ctx, "order announced", "order_number", msg.OrderNumber)

	order := msg.ToOrder()
	if err := s.mirror.Upsert(ctx, order); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%w: failed to mirror order: %w", types.ErrDatabaseFailed, err))
	}

	// The search outlives this delivery.
	searchCtx := context.WithoutCancel(ctx)
	go func() {
		result, err := s.orchestrator.Dispatch(searchCtx, order)
		if err != nil {
			s.l.Error(wrap.ErrorCtx(searchCtx, err), "dispatch search failed", err)
			return
		}
		s.l.Info(searchCtx, "dispatch search finished",
			"state", result.State,
			"attempts", result.Attempts,
			"radius_km", result.RadiusKm,
		)
	}()

	return nil
}

// HandleOrderCancelled stops an in-flight search and marks the mirrored
// order cancelled.
func (s *IntakeService) HandleOrderCancelled(ctx context.Context, msg models.OrderStatusUpdateMessage) error {
	ctx = wrap.WithAction(wrap.WithOrderID(ctx, msg.OrderID.String()), "handle_order_cancelled")

	if err := s.orchestrator.Cancel(ctx, msg.OrderID); err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			return wrap.Error(ctx, err)
		}
		// No in-flight search; still reflect the cancellation locally.
	}

	if err := s.mirror.Cancel(ctx, msg.OrderID, "cancelled upstream"); err != nil {
		if errors.Is(err, types.ErrOrderNotPending) || errors.Is(err, types.ErrOrderNotFound) {
			s.l.Warn(ctx, "cancellation skipped", "reason", err.Error())
			return nil
		}
		return wrap.Error(ctx, fmt.Errorf("%w: failed to cancel mirrored order: %w", types.ErrDatabaseFailed, err))
	}

	s.l.Info(ctx, "order cancelled")
	return nil
}
