package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
	"github.com/velodrop/courier-dispatch-system/pkg/metrics"
)

// OrchestratorConfig tunes the per-order search loop.
type OrchestratorConfig struct {
	// OfferTimeout bounds how long one round of offers waits for an
	// acceptance before the radius expands.
	OfferTimeout time.Duration
	// TopN is how many of the best-scored candidates receive an offer
	// concurrently in one round.
	TopN int
	// ServiceName labels the emitted metrics.
	ServiceName string
}

func DefaultOrchestratorConfig(serviceName string) OrchestratorConfig {
	return OrchestratorConfig{
		OfferTimeout: 30 * time.Second,
		TopN:         3,
		ServiceName:  serviceName,
	}
}

// dispatchTask is the in-flight state of one order's search. One exists per
// order between Dispatch start and terminal state.
type dispatchTask struct {
	orderID uuid.UUID
	cancel  context.CancelFunc

	// won receives the courier that got the atomic assignment. Buffered so
	// Accept never blocks on a loop that already moved on.
	won chan uuid.UUID

	mu        sync.Mutex
	offered   map[uuid.UUID]bool // couriers holding a live offer this round
	declined  int
	roundDone chan struct{} // closed when every offered courier declined
}

func (t *dispatchTask) startRound(courierIDs []uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offered = make(map[uuid.UUID]bool, len(courierIDs))
	for _, id := range courierIDs {
		t.offered[id] = true
	}
	t.declined = 0
	t.roundDone = make(chan struct{})
}

func (t *dispatchTask) wasOffered(courierID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offered[courierID]
}

func (t *dispatchTask) markDeclined(courierID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.offered[courierID] {
		return
	}
	t.offered[courierID] = false
	t.declined++
	if t.declined == len(t.offered) {
		close(t.roundDone)
	}
}

func (t *dispatchTask) offeredExcept(winner uuid.UUID) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []uuid.UUID
	for id, live := range t.offered {
		if live && id != winner {
			ids = append(ids, id)
		}
	}
	return ids
}

/*
Orchestrator runs the expanding-radius dispatch search: find candidates,
score them, auto-assign or offer to the top N, accept the first taker.
Each in-flight order runs in its own goroutine; acceptance races are settled
by the order store's atomic conditional assignment, never by this process's
memory alone.
*/
type Orchestrator struct {
	finder   *Finder
	scoring  *ScoringEngine
	config   *ConfigService
	orders   OrderRepo
	couriers CourierRepo
	offers   OfferSender
	bus      Publisher
	cfg      OrchestratorConfig
	l        logger.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]*dispatchTask
}

func NewOrchestrator(
	finder *Finder,
	scoring *ScoringEngine,
	config *ConfigService,
	orders OrderRepo,
	couriers CourierRepo,
	offers OfferSender,
	bus Publisher,
	cfg OrchestratorConfig,
	l logger.Logger,
) *Orchestrator {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultOrchestratorConfig(cfg.ServiceName).TopN
	}
	if cfg.OfferTimeout <= 0 {
		cfg.OfferTimeout = DefaultOrchestratorConfig(cfg.ServiceName).OfferTimeout
	}
	return &Orchestrator{
		finder:   finder,
		scoring:  scoring,
		config:   config,
		orders:   orders,
		couriers: couriers,
		offers:   offers,
		bus:      bus,
		cfg:      cfg,
		inflight: make(map[uuid.UUID]*dispatchTask),
		l:        l,
	}
}

// Dispatch runs the search loop for one order until a terminal state.
// It blocks; callers run it in a dedicated goroutine per order.
func (o *Orchestrator) Dispatch(ctx context.Context, order *models.Order) (models.DispatchResult, error) {
	ctx = wrap.WithAction(ctx, "dispatch_order")
	ctx = wrap.WithOrderID(ctx, order.ID.String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	task := &dispatchTask{
		orderID: order.ID,
		cancel:  cancel,
		won:     make(chan uuid.UUID, 1),
	}

	o.mu.Lock()
	if _, exists := o.inflight[order.ID]; exists {
		o.mu.Unlock()
		return models.DispatchResult{}, wrap.Error(ctx, fmt.Errorf("dispatch already in flight for order %s", order.ID))
	}
	o.inflight[order.ID] = task
	o.mu.Unlock()

	metrics.ActiveDispatchesGauge.WithLabelValues(o.cfg.ServiceName).Inc()
	defer func() {
		metrics.ActiveDispatchesGauge.WithLabelValues(o.cfg.ServiceName).Dec()
		o.mu.Lock()
		delete(o.inflight, order.ID)
		o.mu.Unlock()
	}()

	cfg, err := o.config.Get(ctx)
	if err != nil {
		return models.DispatchResult{}, err
	}

	result := models.DispatchResult{
		OrderID: order.ID,
		State:   types.DispatchSearching,
	}

	for radius := cfg.InitialRadiusKm; radius <= cfg.MaxRadiusKm; radius += cfg.RadiusIncrementKm {
		if ctx.Err() != nil {
			return o.finishCancelled(ctx, order, task, result)
		}

		result.Attempts++
		result.RadiusKm = radius

		candidates, err := o.finder.Find(ctx, order.Pickup, radius)
		if err != nil {
			return result, err
		}

		scored := o.scoring.Score(cfg, candidates, radius, time.Now())
		if len(scored) == 0 {
			o.l.Debug(ctx, "no qualifying candidates", "radius_km", radius)
			continue
		}

		top := scored[0]
		if top.TotalScore >= cfg.AutoAssignThreshold {
			ok, err := o.tryAssign(ctx, order, top.ID)
			if err != nil {
				return result, err
			}
			if !ok {
				// Order left PENDING underneath us: cancelled or assigned
				// through another path.
				return o.finishCancelled(ctx, order, task, result)
			}
			o.offers.SendOfferResult(top.ID, models.OrderOfferResult{
				MsgType: "offer_result",
				OrderID: order.ID,
				Outcome: models.OfferOutcomeAssigned,
			})
			result.State = types.DispatchAssigned
			result.CourierID = &top.ID
			result.AutoAssigned = true
			metrics.DispatchesTotal.WithLabelValues(o.cfg.ServiceName, "auto_assigned").Inc()
			return result, nil
		}

		winner, outcome := o.offerRound(ctx, task, order, scored)
		switch outcome {
		case roundWon:
			o.notifyLosers(task, winner)
			result.State = types.DispatchAssigned
			result.CourierID = &winner
			metrics.DispatchesTotal.WithLabelValues(o.cfg.ServiceName, "assigned").Inc()
			return result, nil
		case roundCancelled:
			return o.finishCancelled(ctx, order, task, result)
		case roundExpired:
			o.expireOffers(task)
		}
	}

	// Exhausted: surfaced for manual or escalated handling, never dropped.
	result.State = types.DispatchExhausted
	o.l.Warn(ctx, "dispatch exhausted max radius",
		"final_radius_km", result.RadiusKm, "attempts", result.Attempts)

	if err := o.bus.DispatchExhausted(ctx, models.DispatchExhaustedMessage{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		FinalRadiusKm: result.RadiusKm,
		Attempts:      result.Attempts,
		Timestamp:     time.Now(),
	}); err != nil {
		o.l.Error(ctx, "failed to publish exhaustion alert", err)
	}
	metrics.DispatchesTotal.WithLabelValues(o.cfg.ServiceName, "exhausted").Inc()

	return result, nil
}

type roundOutcome int

const (
	roundWon roundOutcome = iota
	roundExpired
	roundCancelled
)

// offerRound sends offers to the top-N candidates and waits for the first
// acceptance, a full round of declines, the round timeout, or cancellation.
func (o *Orchestrator) offerRound(ctx context.Context, task *dispatchTask, order *models.Order, scored []models.ScoredCandidate) (uuid.UUID, roundOutcome) {
	n := o.cfg.TopN
	if n > len(scored) {
		n = len(scored)
	}

	courierIDs := make([]uuid.UUID, 0, n)
	for _, c := range scored[:n] {
		courierIDs = append(courierIDs, c.ID)
	}
	task.startRound(courierIDs)
	roundDone := task.roundDone

	expiresAt := time.Now().Add(o.cfg.OfferTimeout)
	for _, c := range scored[:n] {
		offer := models.OrderOffer{
			ID:                 uuid.New(),
			MsgType:            "order_offer",
			OrderID:            order.ID,
			OrderNumber:        order.OrderNumber,
			Pickup:             order.Pickup,
			Dropoff:            order.Dropoff,
			CourierEarning:     order.CourierEarning,
			DistanceToPickupKm: c.DistanceToPickupKm,
			ExpiresAt:          expiresAt,
		}
		if err := o.offers.SendOffer(c.ID, offer); err != nil {
			o.l.Warn(ctx, "offer delivery failed", "courier_id", c.ID, "error", err.Error())
			task.markDeclined(c.ID)
			continue
		}
		metrics.OffersPublishedTotal.WithLabelValues(o.cfg.ServiceName).Inc()
	}

	timer := time.NewTimer(o.cfg.OfferTimeout)
	defer timer.Stop()

	select {
	case winner := <-task.won:
		return winner, roundWon
	case <-roundDone:
		return uuid.Nil, roundExpired
	case <-timer.C:
		return uuid.Nil, roundExpired
	case <-ctx.Done():
		return uuid.Nil, roundCancelled
	}
}

// Accept settles a courier's acceptance. Only couriers holding a live offer
// from the current round may accept; everyone else gets
// types.ErrOfferNotFound. The order store then performs the atomic
// conditional assignment; exactly one acceptance per order can succeed, and
// every loser gets types.ErrOrderAlreadyTaken instead of silence.
func (o *Orchestrator) Accept(ctx context.Context, orderID, courierID uuid.UUID) error {
	ctx = wrap.WithAction(ctx, "accept_offer")
	ctx = wrap.WithOrderID(ctx, orderID.String())
	ctx = wrap.WithCourierID(ctx, courierID.String())

	o.mu.Lock()
	task := o.inflight[orderID]
	o.mu.Unlock()
	if task == nil || !task.wasOffered(courierID) {
		return wrap.Error(ctx, types.ErrOfferNotFound)
	}

	assigned, err := o.orders.AssignIfPending(ctx, orderID, courierID)
	if err != nil {
		return wrap.Error(ctx, err)
	}
	if !assigned {
		o.offers.SendOfferResult(courierID, models.OrderOfferResult{
			MsgType: "offer_result",
			OrderID: orderID,
			Outcome: models.OfferOutcomeAlreadyTaken,
		})
		return wrap.Error(ctx, types.ErrOrderAlreadyTaken)
	}

	o.afterAssignment(ctx, orderID, courierID)

	o.offers.SendOfferResult(courierID, models.OrderOfferResult{
		MsgType: "offer_result",
		OrderID: orderID,
		Outcome: models.OfferOutcomeAssigned,
	})

	// Wake the search loop if it is still waiting on this round.
	select {
	case task.won <- courierID:
	default:
	}

	return nil
}

// Decline records a courier's refusal so the round can end early once every
// offered courier has declined. Declining is never an error.
func (o *Orchestrator) Decline(ctx context.Context, orderID, courierID uuid.UUID) {
	o.mu.Lock()
	task := o.inflight[orderID]
	o.mu.Unlock()
	if task == nil || !task.wasOffered(courierID) {
		return
	}
	task.markDeclined(courierID)
	o.l.Debug(ctx, "offer declined", "order_id", orderID, "courier_id", courierID)
}

// Cancel aborts an in-flight search (sender cancelled the order). In-flight
// offers are invalidated as expired. Returns ErrNotFound when no search is
// running for the order.
func (o *Orchestrator) Cancel(ctx context.Context, orderID uuid.UUID) error {
	o.mu.Lock()
	task := o.inflight[orderID]
	o.mu.Unlock()
	if task == nil {
		return types.ErrNotFound
	}
	task.cancel()
	return nil
}

// tryAssign performs the atomic assignment and its side effects for the
// auto-assign path.
func (o *Orchestrator) tryAssign(ctx context.Context, order *models.Order, courierID uuid.UUID) (bool, error) {
	assigned, err := o.orders.AssignIfPending(ctx, order.ID, courierID)
	if err != nil {
		return false, wrap.Error(ctx, err)
	}
	if !assigned {
		return false, nil
	}
	o.afterAssignment(ctx, order.ID, courierID)
	return true, nil
}

// afterAssignment runs the post-assignment side effects in the same code
// path that caused the transition: courier goes BUSY, subscribers learn
// about the status change.
func (o *Orchestrator) afterAssignment(ctx context.Context, orderID, courierID uuid.UUID) {
	now := time.Now()

	if _, err := o.couriers.ChangeStatus(ctx, courierID, types.StatusCourierBusy); err != nil {
		o.l.Error(ctx, "failed to mark courier busy", err, "courier_id", courierID)
	}

	if err := o.bus.OrderAssigned(ctx, models.OrderStatusUpdateMessage{
		OrderID:   orderID,
		Status:    string(types.StatusOrderAssigned),
		Timestamp: now,
		CourierID: &courierID,
	}); err != nil {
		o.l.Error(ctx, "failed to publish assignment", err)
	}

	if err := o.bus.CourierStatusChanged(ctx, models.CourierStatusUpdateMessage{
		CourierID: courierID,
		Status:    types.StatusCourierBusy,
		OrderID:   orderID,
		Timestamp: now,
	}); err != nil {
		o.l.Error(ctx, "failed to publish courier status", err)
	}

	o.l.Info(ctx, "order assigned", "order_id", orderID, "courier_id", courierID)
}

// notifyLosers tells every courier still holding a live offer that the
// order went to someone else.
func (o *Orchestrator) notifyLosers(task *dispatchTask, winner uuid.UUID) {
	for _, id := range task.offeredExcept(winner) {
		o.offers.SendOfferResult(id, models.OrderOfferResult{
			MsgType: "offer_result",
			OrderID: task.orderID,
			Outcome: models.OfferOutcomeAlreadyTaken,
		})
	}
}

// expireOffers invalidates the round's remaining offers before expanding.
func (o *Orchestrator) expireOffers(task *dispatchTask) {
	for _, id := range task.offeredExcept(uuid.Nil) {
		o.offers.SendOfferResult(id, models.OrderOfferResult{
			MsgType: "offer_result",
			OrderID: task.orderID,
			Outcome: models.OfferOutcomeExpired,
		})
	}
}

// finishCancelled finalizes a search aborted before a terminal state.
func (o *Orchestrator) finishCancelled(ctx context.Context, order *models.Order, task *dispatchTask, result models.DispatchResult) (models.DispatchResult, error) {
	o.expireOffers(task)

	result.State = types.DispatchCancelled
	metrics.DispatchesTotal.WithLabelValues(o.cfg.ServiceName, "cancelled").Inc()

	// Publish on a fresh context: the task context is already cancelled.
	pubCtx, pubCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer pubCancel()
	if err := o.bus.OrderCancelled(pubCtx, models.OrderStatusUpdateMessage{
		OrderID:   order.ID,
		Status:    string(types.StatusOrderCancelled),
		Timestamp: time.Now(),
	}); err != nil {
		o.l.Error(ctx, "failed to publish cancellation", err)
	}

	o.l.Info(ctx, "dispatch cancelled", "order_id", order.ID, "attempts", result.Attempts)
	return result, nil
}

// ActiveDispatches reports how many searches are currently in flight.
func (o *Orchestrator) ActiveDispatches() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}
