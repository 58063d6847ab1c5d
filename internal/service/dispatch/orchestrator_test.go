package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/internal/service/geo"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
)

/* ======================= fakes ======================= */

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
}

func newFakeOrderRepo(orders ...*models.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{orders: make(map[uuid.UUID]*models.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, types.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (r *fakeOrderRepo) AssignIfPending(ctx context.Context, orderID, courierID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return false, types.ErrOrderNotFound
	}
	if order.Status != types.StatusOrderPending {
		return false, nil
	}
	now := time.Now()
	order.Status = types.StatusOrderAssigned
	order.CourierID = &courierID
	order.AssignedAt = &now
	return true, nil
}

type fakeCourierRepo struct {
	mu            sync.Mutex
	candidates    []models.CourierCandidate
	searchedRadii []float64
	statusChanges []types.CourierStatus
}

func (r *fakeCourierRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Courier, error) {
	return nil, types.ErrCourierNotFound
}

func (r *fakeCourierRepo) FindNearby(ctx context.Context, pickup models.Location, radiusKm float64, excludeBusy bool) ([]models.CourierCandidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchedRadii = append(r.searchedRadii, radiusKm)

	var found []models.CourierCandidate
	for _, c := range r.candidates {
		d := geo.HaversineDistance(pickup.Latitude, pickup.Longitude, c.Location.Latitude, c.Location.Longitude)
		if d > radiusKm {
			continue
		}
		c.DistanceToPickupKm = d
		found = append(found, c)
	}
	return found, nil
}

func (r *fakeCourierRepo) ChangeStatus(ctx context.Context, id uuid.UUID, status types.CourierStatus) (types.CourierStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusChanges = append(r.statusChanges, status)
	return types.StatusCourierAvailable, nil
}

func (r *fakeCourierRepo) SetOnline(ctx context.Context, id uuid.UUID, location models.Location) error {
	return nil
}

func (r *fakeCourierRepo) SetOffline(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (r *fakeCourierRepo) UpdateLocation(ctx context.Context, id uuid.UUID, location models.Location) error {
	return nil
}

type fakeConfigRepo struct {
	mu  sync.Mutex
	cfg *models.DispatchConfiguration
}

func (r *fakeConfigRepo) Get(ctx context.Context) (*models.DispatchConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg == nil {
		return nil, types.ErrConfigNotFound
	}
	copied := *r.cfg
	return &copied, nil
}

func (r *fakeConfigRepo) Save(ctx context.Context, cfg models.DispatchConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = &cfg
	return nil
}

type sentOffer struct {
	courierID uuid.UUID
	offer     models.OrderOffer
}

type fakeOfferSender struct {
	mu      sync.Mutex
	offers  []sentOffer
	results map[uuid.UUID][]models.OrderOfferResult
	onOffer func(courierID uuid.UUID, offer models.OrderOffer)
}

func newFakeOfferSender() *fakeOfferSender {
	return &fakeOfferSender{results: make(map[uuid.UUID][]models.OrderOfferResult)}
}

func (s *fakeOfferSender) SendOffer(courierID uuid.UUID, offer models.OrderOffer) error {
	s.mu.Lock()
	s.offers = append(s.offers, sentOffer{courierID: courierID, offer: offer})
	hook := s.onOffer
	s.mu.Unlock()
	if hook != nil {
		hook(courierID, offer)
	}
	return nil
}

func (s *fakeOfferSender) SendOfferResult(courierID uuid.UUID, result models.OrderOfferResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[courierID] = append(s.results[courierID], result)
	return nil
}

func (s *fakeOfferSender) offerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offers)
}

type fakeBus struct {
	mu        sync.Mutex
	assigned  []models.OrderStatusUpdateMessage
	cancelled []models.OrderStatusUpdateMessage
	exhausted []models.DispatchExhaustedMessage
	statuses  []models.CourierStatusUpdateMessage
}

func (b *fakeBus) OrderAssigned(ctx context.Context, msg models.OrderStatusUpdateMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assigned = append(b.assigned, msg)
	return nil
}

func (b *fakeBus) OrderCancelled(ctx context.Context, msg models.OrderStatusUpdateMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, msg)
	return nil
}

func (b *fakeBus) DispatchExhausted(ctx context.Context, msg models.DispatchExhaustedMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exhausted = append(b.exhausted, msg)
	return nil
}

func (b *fakeBus) CourierStatusChanged(ctx context.Context, msg models.CourierStatusUpdateMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = append(b.statuses, msg)
	return nil
}

/* ======================= helpers ======================= */

var testPickup = models.Location{Latitude: 14.7167, Longitude: -17.4677}

// candidateAtKm places a candidate due north of the test pickup point.
func candidateAtKm(c models.CourierCandidate, km float64) models.CourierCandidate {
	c.Location = models.Location{
		Latitude:  latAfterKm(testPickup.Latitude, km),
		Longitude: testPickup.Longitude,
	}
	return c
}

func latAfterKm(lat, km float64) float64 {
	return lat + km/111.19492664455873
}

// mediocreCandidate scores between the minimum and auto-assign thresholds.
func mediocreCandidate() models.CourierCandidate {
	now := time.Now()
	return models.CourierCandidate{
		ID:              uuid.New(),
		Name:            "Moussa Ndiaye",
		Status:          types.StatusCourierAvailable,
		Level:           types.LevelBronze,
		Rating:          3.5,
		TotalDeliveries: 50,
		AcceptanceRate:  0.8,
		AvgResponseSec:  30,
		WalletBalance:   -500,
		DebtCeiling:     1000,
		LastPingAt:      now,
		OnlineSince:     now.Add(-10 * time.Minute),
	}
}

func testOrder() *models.Order {
	return &models.Order{
		ID:             uuid.New(),
		OrderNumber:    "VD-2024-001",
		Status:         types.StatusOrderPending,
		SenderID:       uuid.New(),
		Pickup:         testPickup,
		Dropoff:        models.Location{Latitude: 14.75, Longitude: -17.44},
		CourierEarning: 1500,
		PlatformFee:    300,
	}
}

type orchFixture struct {
	orch     *Orchestrator
	orders   *fakeOrderRepo
	couriers *fakeCourierRepo
	sender   *fakeOfferSender
	bus      *fakeBus
}

func newOrchFixture(t *testing.T, offerTimeout time.Duration, candidates ...models.CourierCandidate) *orchFixture {
	t.Helper()

	l := logger.InitLogger("dispatch-test", logger.LevelError)
	couriers := &fakeCourierRepo{candidates: candidates}
	orders := newFakeOrderRepo()
	sender := newFakeOfferSender()
	bus := &fakeBus{}
	configs := NewConfigService(&fakeConfigRepo{}, l)

	orch := NewOrchestrator(
		NewFinder(couriers, DefaultFinderPolicy(), l),
		NewScoringEngine(),
		configs,
		orders,
		couriers,
		sender,
		bus,
		OrchestratorConfig{OfferTimeout: offerTimeout, TopN: 3, ServiceName: "dispatch-test"},
		l,
	)
	return &orchFixture{orch: orch, orders: orders, couriers: couriers, sender: sender, bus: bus}
}

/* ======================= tests ======================= */

func TestOrchestrator_AutoAssignsHighScorer(t *testing.T) {
	fx := newOrchFixture(t, time.Second, candidateAtKm(strongCandidate(0), 0.2))
	order := testOrder()
	fx.orders.orders[order.ID] = order

	result, err := fx.orch.Dispatch(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, types.DispatchAssigned, result.State)
	assert.True(t, result.AutoAssigned)
	require.NotNil(t, result.CourierID)
	assert.Equal(t, 1, result.Attempts)
	assert.Zero(t, fx.sender.offerCount(), "auto-assign must not broadcast offers")

	stored, err := fx.orders.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOrderAssigned, stored.Status)
	assert.Equal(t, *result.CourierID, *stored.CourierID)
	assert.Len(t, fx.bus.assigned, 1)
}

func TestOrchestrator_SingleWinnerUnderConcurrentAcceptance(t *testing.T) {
	// Three offered couriers (TopN) race to accept the same order.
	candidates := []models.CourierCandidate{
		candidateAtKm(mediocreCandidate(), 1),
		candidateAtKm(mediocreCandidate(), 1.2),
		candidateAtKm(mediocreCandidate(), 1.4),
	}
	fx := newOrchFixture(t, 30*time.Second, candidates...)
	order := testOrder()
	fx.orders.orders[order.ID] = order

	offered := make(chan uuid.UUID, len(candidates))
	fx.sender.onOffer = func(courierID uuid.UUID, offer models.OrderOffer) {
		offered <- courierID
	}

	winners := make(chan uuid.UUID, len(candidates))
	losers := make(chan error, len(candidates))
	go func() {
		racers := make([]uuid.UUID, 0, len(candidates))
		for i := 0; i < len(candidates); i++ {
			racers = append(racers, <-offered)
		}
		var wg sync.WaitGroup
		for _, courierID := range racers {
			wg.Add(1)
			go func(courierID uuid.UUID) {
				defer wg.Done()
				err := fx.orch.Accept(context.Background(), order.ID, courierID)
				if err == nil {
					winners <- courierID
					return
				}
				losers <- err
			}(courierID)
		}
		wg.Wait()
		close(winners)
		close(losers)
	}()

	result, err := fx.orch.Dispatch(context.Background(), order)
	require.NoError(t, err)

	require.Len(t, winners, 1, "exactly one acceptance must win")
	winner := <-winners

	assert.Len(t, losers, len(candidates)-1)
	for err := range losers {
		// A late loser may find the round already torn down.
		assert.True(t,
			errors.Is(err, types.ErrOrderAlreadyTaken) || errors.Is(err, types.ErrOfferNotFound),
			"unexpected loser error: %v", err)
	}

	assert.Equal(t, types.DispatchAssigned, result.State)
	require.NotNil(t, result.CourierID)
	assert.Equal(t, winner, *result.CourierID)

	stored, err := fx.orders.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOrderAssigned, stored.Status)
	assert.Equal(t, winner, *stored.CourierID)
	assert.Len(t, fx.bus.assigned, 1, "only the winner publishes an assignment")
}

func TestOrchestrator_AcceptRequiresLiveOffer(t *testing.T) {
	courier := candidateAtKm(mediocreCandidate(), 1)
	fx := newOrchFixture(t, 30*time.Second, courier)
	order := testOrder()
	fx.orders.orders[order.ID] = order

	type intrusion struct {
		err    error
		status types.OrderStatus
	}
	intrusions := make(chan intrusion, 1)

	fx.sender.onOffer = func(courierID uuid.UUID, offer models.OrderOffer) {
		go func() {
			// A courier that was never sent an offer tries to grab the order
			// before the offered courier answers.
			err := fx.orch.Accept(context.Background(), offer.OrderID, uuid.New())
			stored, getErr := fx.orders.GetByID(context.Background(), offer.OrderID)
			require.NoError(t, getErr)
			intrusions <- intrusion{err: err, status: stored.Status}

			require.NoError(t, fx.orch.Accept(context.Background(), offer.OrderID, courierID))
		}()
	}

	result, err := fx.orch.Dispatch(context.Background(), order)
	require.NoError(t, err)

	got := <-intrusions
	assert.ErrorIs(t, got.err, types.ErrOfferNotFound)
	assert.Equal(t, types.StatusOrderPending, got.status, "an uninvited acceptance must not assign the order")

	assert.Equal(t, types.DispatchAssigned, result.State)
	require.NotNil(t, result.CourierID)
	assert.Equal(t, courier.ID, *result.CourierID)
}

func TestOrchestrator_OneExpansionReachesNearestCourier(t *testing.T) {
	// Courier at 4 km: outside the 3 km initial radius, inside 3+2 km.
	courier := candidateAtKm(mediocreCandidate(), 4)
	fx := newOrchFixture(t, 2*time.Second, courier)
	order := testOrder()
	fx.orders.orders[order.ID] = order

	fx.sender.onOffer = func(courierID uuid.UUID, offer models.OrderOffer) {
		go fx.orch.Accept(context.Background(), offer.OrderID, courierID)
	}

	result, err := fx.orch.Dispatch(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, types.DispatchAssigned, result.State)
	assert.False(t, result.AutoAssigned)
	assert.Equal(t, 2, result.Attempts, "exactly one radius expansion")
	assert.InDelta(t, 5, result.RadiusKm, 0.001)
	require.NotNil(t, result.CourierID)
	assert.Equal(t, courier.ID, *result.CourierID)
	assert.Equal(t, 1, fx.sender.offerCount())
}

func TestOrchestrator_ExhaustsAtMaxRadius(t *testing.T) {
	fx := newOrchFixture(t, time.Second) // no couriers at all
	order := testOrder()
	fx.orders.orders[order.ID] = order

	result, err := fx.orch.Dispatch(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, types.DispatchExhausted, result.State)
	assert.Nil(t, result.CourierID)

	cfg := models.DefaultDispatchConfiguration()
	assert.InDelta(t, cfg.MaxRadiusKm, result.RadiusKm, 0.001)

	// Radii strictly increase by the configured increment, capped at max.
	fx.couriers.mu.Lock()
	radii := append([]float64(nil), fx.couriers.searchedRadii...)
	fx.couriers.mu.Unlock()
	require.NotEmpty(t, radii)
	assert.InDelta(t, cfg.InitialRadiusKm, radii[0], 0.001)
	for i := 1; i < len(radii); i++ {
		assert.InDelta(t, cfg.RadiusIncrementKm, radii[i]-radii[i-1], 0.001)
		assert.LessOrEqual(t, radii[i], cfg.MaxRadiusKm+0.001)
	}

	require.Len(t, fx.bus.exhausted, 1, "exhaustion must be surfaced, not swallowed")
	assert.Equal(t, order.ID, fx.bus.exhausted[0].OrderID)
	assert.Equal(t, result.Attempts, fx.bus.exhausted[0].Attempts)
}

func TestOrchestrator_CancelInvalidatesInFlightOffers(t *testing.T) {
	courier := candidateAtKm(mediocreCandidate(), 1)
	fx := newOrchFixture(t, 30*time.Second, courier)
	order := testOrder()
	fx.orders.orders[order.ID] = order

	fx.sender.onOffer = func(courierID uuid.UUID, offer models.OrderOffer) {
		go fx.orch.Cancel(context.Background(), offer.OrderID)
	}

	result, err := fx.orch.Dispatch(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, types.DispatchCancelled, result.State)
	assert.Len(t, fx.bus.cancelled, 1)

	fx.sender.mu.Lock()
	results := fx.sender.results[courier.ID]
	fx.sender.mu.Unlock()
	require.NotEmpty(t, results, "in-flight offers must be invalidated, not ignored")
	assert.Equal(t, models.OfferOutcomeExpired, results[0].Outcome)
}

func TestOrchestrator_AllDeclinedEndsRoundEarly(t *testing.T) {
	courier := candidateAtKm(mediocreCandidate(), 1)
	// A 30s offer timeout: without early round termination the search
	// would take minutes to exhaust.
	fx := newOrchFixture(t, 30*time.Second, courier)
	order := testOrder()
	fx.orders.orders[order.ID] = order

	fx.sender.onOffer = func(courierID uuid.UUID, offer models.OrderOffer) {
		go fx.orch.Decline(context.Background(), offer.OrderID, courierID)
	}

	start := time.Now()
	result, err := fx.orch.Dispatch(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, types.DispatchExhausted, result.State)
	assert.Less(t, time.Since(start), 5*time.Second, "declined rounds must not wait out the timer")
}

func TestOrchestrator_CancelUnknownOrder(t *testing.T) {
	fx := newOrchFixture(t, time.Second)
	err := fx.orch.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestConfigService_DefaultsAndInvalidation(t *testing.T) {
	l := logger.InitLogger("dispatch-test", logger.LevelError)
	repo := &fakeConfigRepo{}
	svc := NewConfigService(repo, l)

	// Nothing stored yet: defaults apply.
	cfg, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDispatchConfiguration().InitialRadiusKm, cfg.InitialRadiusKm)

	updated := cfg
	updated.InitialRadiusKm = 4
	_, err = svc.Update(context.Background(), updated)
	require.NoError(t, err)

	// The update invalidated the cache: the next read sees the new value.
	cfg, err = svc.Get(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 4, cfg.InitialRadiusKm, 0.001)
}
