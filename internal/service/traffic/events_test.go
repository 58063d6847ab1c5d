package traffic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
)

// passthroughTx runs the function without a real database transaction.
type passthroughTx struct{}

func (passthroughTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type voteKey struct {
	eventID uuid.UUID
	voterID uuid.UUID
}

// fakeEventRepo is an in-memory EventRepo for service tests.
type fakeEventRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]*models.TrafficEvent
	votes  map[voteKey]models.TrafficEventVote

	// beforeApply runs just before ApplyVoteCounters touches state, letting
	// tests interleave a competing write between the read and the update.
	beforeApply func()
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		events: make(map[uuid.UUID]*models.TrafficEvent),
		votes:  make(map[voteKey]models.TrafficEventVote),
	}
}

func (r *fakeEventRepo) Create(ctx context.Context, event *models.TrafficEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *event
	r.events[event.ID] = &copied
	return nil
}

func (r *fakeEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.TrafficEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return nil, types.ErrEventNotFound
	}
	copied := *event
	return &copied, nil
}

func (r *fakeEventRepo) ListActive(ctx context.Context) ([]models.TrafficEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.TrafficEvent
	for _, event := range r.events {
		if event.IsActive {
			result = append(result, *event)
		}
	}
	return result, nil
}

func (r *fakeEventRepo) Deactivate(ctx context.Context, id uuid.UUID, resolvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return types.ErrEventNotFound
	}
	event.IsActive = false
	event.ResolvedAt = &resolvedAt
	return nil
}

func (r *fakeEventRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, event := range r.events {
		if event.IsActive && now.After(event.ExpiresAt) {
			event.IsActive = false
			resolved := now
			event.ResolvedAt = &resolved
			n++
		}
	}
	return n, nil
}

func (r *fakeEventRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return types.ErrEventNotFound
	}
	delete(r.events, id)
	return nil
}

func (r *fakeEventRepo) GetVote(ctx context.Context, eventID, voterID uuid.UUID) (*models.TrafficEventVote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vote, ok := r.votes[voteKey{eventID, voterID}]
	if !ok {
		return nil, nil
	}
	return &vote, nil
}

func (r *fakeEventRepo) InsertVote(ctx context.Context, vote models.TrafficEventVote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes[voteKey{vote.EventID, vote.VoterID}] = vote
	return nil
}

func (r *fakeEventRepo) FlipVote(ctx context.Context, eventID, voterID uuid.UUID, isUpvote bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	vote := r.votes[voteKey{eventID, voterID}]
	vote.IsUpvote = isUpvote
	r.votes[voteKey{eventID, voterID}] = vote
	return nil
}

func (r *fakeEventRepo) ApplyVoteCounters(ctx context.Context, eventID uuid.UUID, deltaUp, deltaDown int, confidence float64) (*models.TrafficEvent, error) {
	if r.beforeApply != nil {
		r.beforeApply()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok || !event.IsActive {
		return nil, types.ErrEventExpired
	}
	event.Upvotes += deltaUp
	event.Downvotes += deltaDown
	event.Confidence = confidence
	copied := *event
	return &copied, nil
}

func newTestEventService(t *testing.T) (*EventService, *fakeEventRepo) {
	t.Helper()
	repo := newFakeEventRepo()
	l := logger.InitLogger("traffic-test", logger.LevelError)
	return NewEventService(repo, passthroughTx{}, l), repo
}

func mustReport(t *testing.T, svc *EventService, reporter uuid.UUID, eventType types.TrafficEventType) *models.TrafficEvent {
	t.Helper()
	event, err := svc.Report(context.Background(), reporter, eventType, types.SeverityMedium,
		models.Location{Latitude: 14.71, Longitude: -17.45}, "carrefour bloque", nil)
	require.NoError(t, err)
	return event
}

func TestEventService_ReportSetsTTLByType(t *testing.T) {
	svc, _ := newTestEventService(t)
	reporter := uuid.New()

	cases := []struct {
		eventType types.TrafficEventType
		ttl       time.Duration
	}{
		{types.EventAccident, 4 * time.Hour},
		{types.EventRoadblock, 6 * time.Hour},
		{types.EventFlooding, 8 * time.Hour},
		{types.EventPothole, 2 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(string(tc.eventType), func(t *testing.T) {
			event := mustReport(t, svc, reporter, tc.eventType)
			assert.True(t, event.IsActive)
			assert.InDelta(t, 50, event.Confidence, 0.01)
			assert.WithinDuration(t, event.CreatedAt.Add(tc.ttl), event.ExpiresAt, time.Second)
		})
	}
}

func TestEventService_ReportRejectsInvalidCoordinates(t *testing.T) {
	svc, _ := newTestEventService(t)

	_, err := svc.Report(context.Background(), uuid.New(), types.EventAccident, types.SeverityHigh,
		models.Location{}, "", nil)
	assert.ErrorIs(t, err, types.ErrInvalidCoordinates)
}

func TestEventService_VoteRejectsReporter(t *testing.T) {
	svc, _ := newTestEventService(t)
	reporter := uuid.New()
	event := mustReport(t, svc, reporter, types.EventAccident)

	_, err := svc.Vote(context.Background(), event.ID, reporter, true)
	assert.ErrorIs(t, err, types.ErrSelfVote)
}

func TestEventService_VoteRejectsDuplicateDirection(t *testing.T) {
	svc, _ := newTestEventService(t)
	event := mustReport(t, svc, uuid.New(), types.EventAccident)
	voter := uuid.New()

	updated, err := svc.Vote(context.Background(), event.ID, voter, true)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Upvotes)

	_, err = svc.Vote(context.Background(), event.ID, voter, true)
	assert.ErrorIs(t, err, types.ErrDuplicateVote)
}

func TestEventService_OppositeVoteFlipsCounters(t *testing.T) {
	svc, _ := newTestEventService(t)
	event := mustReport(t, svc, uuid.New(), types.EventAccident)
	voter := uuid.New()

	_, err := svc.Vote(context.Background(), event.ID, voter, true)
	require.NoError(t, err)

	updated, err := svc.Vote(context.Background(), event.ID, voter, false)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Upvotes)
	assert.Equal(t, 1, updated.Downvotes)
}

func TestEventService_ConfidenceTracksVotes(t *testing.T) {
	svc, _ := newTestEventService(t)
	event := mustReport(t, svc, uuid.New(), types.EventAccident)

	updated, err := svc.Vote(context.Background(), event.ID, uuid.New(), true)
	require.NoError(t, err)
	// (1+1)/(1+0+2) = 66.7%
	assert.InDelta(t, 66.67, updated.Confidence, 0.1)

	updated, err = svc.Vote(context.Background(), event.ID, uuid.New(), false)
	require.NoError(t, err)
	// (1+1)/(1+1+2) = 50%
	assert.InDelta(t, 50, updated.Confidence, 0.1)
}

func TestEventService_AutoDeactivatesDisputedEvent(t *testing.T) {
	svc, repo := newTestEventService(t)
	event := mustReport(t, svc, uuid.New(), types.EventAccident)

	var updated *models.TrafficEvent
	var err error
	for i := 0; i < 5; i++ {
		updated, err = svc.Vote(context.Background(), event.ID, uuid.New(), false)
		require.NoError(t, err)
	}

	// Fifth downvote: confidence (0+1)/(5+2) = 14.3% < 30 and downvotes >= 5.
	assert.False(t, updated.IsActive)
	require.NotNil(t, updated.ResolvedAt)

	stored, err := repo.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	// Deactivated events no longer accept votes.
	_, err = svc.Vote(context.Background(), event.ID, uuid.New(), false)
	assert.ErrorIs(t, err, types.ErrEventExpired)
}

func TestEventService_VoteLosesRaceWithDeactivation(t *testing.T) {
	svc, repo := newTestEventService(t)
	event := mustReport(t, svc, uuid.New(), types.EventAccident)

	// The event is deactivated after the vote flow has already read it as
	// active but before the counters are written.
	repo.beforeApply = func() {
		require.NoError(t, repo.Deactivate(context.Background(), event.ID, time.Now()))
	}

	_, err := svc.Vote(context.Background(), event.ID, uuid.New(), true)
	assert.ErrorIs(t, err, types.ErrEventExpired)

	stored, err := repo.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Upvotes)
	assert.Equal(t, 0, stored.Downvotes)
}

func TestEventService_ListActiveFilters(t *testing.T) {
	svc, repo := newTestEventService(t)
	reporter := uuid.New()

	accident := mustReport(t, svc, reporter, types.EventAccident)
	mustReport(t, svc, reporter, types.EventPothole)

	// A far-away flooding report.
	far, err := svc.Report(context.Background(), reporter, types.EventFlooding, types.SeverityHigh,
		models.Location{Latitude: 16.0, Longitude: -16.0}, "", nil)
	require.NoError(t, err)

	byType, err := svc.ListActive(context.Background(), nil, 0, types.EventAccident)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, accident.ID, byType[0].ID)

	near := &models.Location{Latitude: 14.71, Longitude: -17.45}
	nearby, err := svc.ListActive(context.Background(), near, 5, "")
	require.NoError(t, err)
	assert.Len(t, nearby, 2)
	for _, event := range nearby {
		assert.NotEqual(t, far.ID, event.ID)
	}

	// Expired events are lazily deactivated on read.
	repo.mu.Lock()
	repo.events[far.ID].ExpiresAt = time.Now().Add(-time.Minute)
	repo.mu.Unlock()

	all, err := svc.ListActive(context.Background(), nil, 0, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	stored, err := repo.GetByID(context.Background(), far.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestEventService_DeleteAuthorization(t *testing.T) {
	svc, repo := newTestEventService(t)
	reporter := uuid.New()
	event := mustReport(t, svc, reporter, types.EventAccident)

	err := svc.Delete(context.Background(), event.ID, uuid.New(), false)
	assert.ErrorIs(t, err, types.ErrForbidden)

	err = svc.Delete(context.Background(), event.ID, reporter, false)
	require.NoError(t, err)

	_, err = repo.GetByID(context.Background(), event.ID)
	assert.ErrorIs(t, err, types.ErrEventNotFound)
}
