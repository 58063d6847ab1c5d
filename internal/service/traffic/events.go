package traffic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/internal/service/geo"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
	"github.com/velodrop/courier-dispatch-system/pkg/trm"
)

// Auto-deactivation rule: a report this disputed is considered resolved
// (or bogus) by the crowd.
const (
	deactivateDownvotes  = 5
	deactivateConfidence = 30.0
)

// defaultEventTTL returns how long a report of the given type stays active
// without being resolved. Major incidents outlive minor hazard reports.
func defaultEventTTL(eventType types.TrafficEventType) time.Duration {
	switch eventType {
	case types.EventAccident:
		return 4 * time.Hour
	case types.EventRoadblock:
		return 6 * time.Hour
	case types.EventFlooding:
		return 8 * time.Hour
	case types.EventPothole:
		return 2 * time.Hour
	default:
		return 2 * time.Hour
	}
}

// confidenceScore derives the 0..100 confidence from the vote counters.
// Laplace smoothing keeps a fresh report at 50% and decays it as downvotes
// accumulate.
func confidenceScore(upvotes, downvotes int) float64 {
	return float64(upvotes+1) / float64(upvotes+downvotes+2) * 100
}

/*
EventService provides all business logic for crowd-reported traffic events:
reporting, voting with auto-deactivation, listing and deletion.
*/
type EventService struct {
	repo EventRepo
	trm  trm.TxManager
	l    logger.Logger
}

func NewEventService(repo EventRepo, trm trm.TxManager, l logger.Logger) *EventService {
	return &EventService{
		repo: repo,
		trm:  trm,
		l:    l,
	}
}

// Report creates a new active event with a type-dependent expiry.
func (s *EventService) Report(ctx context.Context, reporterID uuid.UUID, eventType types.TrafficEventType, severity types.EventSeverity, location models.Location, description string, photoRef *string) (*models.TrafficEvent, error) {
	ctx = wrap.WithAction(ctx, "report_traffic_event")

	if !validCoordinates(location.Latitude, location.Longitude) {
		return nil, wrap.Error(ctx, types.ErrInvalidCoordinates)
	}
	if severity == "" {
		severity = types.SeverityMedium
	}

	now := time.Now()
	event := &models.TrafficEvent{
		ID:          uuid.New(),
		ReporterID:  reporterID,
		Type:        eventType,
		Severity:    severity,
		Location:    location,
		Description: strings.TrimSpace(description),
		PhotoRef:    photoRef,
		Confidence:  confidenceScore(0, 0),
		IsActive:    true,
		CreatedAt:   now,
		ExpiresAt:   now.Add(defaultEventTTL(eventType)),
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("failed to create traffic event: %w", err))
	}

	s.l.Info(ctx, "traffic event reported", "event_id", event.ID, "type", event.Type)

	return event, nil
}

// Vote records one voter's verdict. Self-votes and duplicate same-direction
// votes are rejected; an opposite-direction vote flips the counters. The
// auto-deactivation check runs inside the same transaction, so a deactivated
// event cannot keep accepting votes through a race.
func (s *EventService) Vote(ctx context.Context, eventID, voterID uuid.UUID, isUpvote bool) (*models.TrafficEvent, error) {
	ctx = wrap.WithAction(ctx, "vote_traffic_event")

	var result *models.TrafficEvent

	fn := func(ctx context.Context) error {
		event, err := s.repo.GetByID(ctx, eventID)
		if err != nil {
			return wrap.Error(ctx, err)
		}

		now := time.Now()
		if !event.IsActive || event.Expired(now) {
			return wrap.Error(ctx, types.ErrEventExpired)
		}
		if event.ReporterID == voterID {
			return wrap.Error(ctx, types.ErrSelfVote)
		}

		existing, err := s.repo.GetVote(ctx, eventID, voterID)
		if err != nil {
			return wrap.Error(ctx, err)
		}

		var deltaUp, deltaDown int
		switch {
		case existing == nil:
			if err := s.repo.InsertVote(ctx, models.TrafficEventVote{
				EventID:  eventID,
				VoterID:  voterID,
				IsUpvote: isUpvote,
				VotedAt:  now,
			}); err != nil {
				return wrap.Error(ctx, fmt.Errorf("failed to insert vote: %w", err))
			}
			if isUpvote {
				deltaUp = 1
			} else {
				deltaDown = 1
			}

		case existing.IsUpvote == isUpvote:
			return wrap.Error(ctx, types.ErrDuplicateVote)

		default:
			// Opposite direction: flip the stored vote and both counters.
			if err := s.repo.FlipVote(ctx, eventID, voterID, isUpvote); err != nil {
				return wrap.Error(ctx, fmt.Errorf("failed to flip vote: %w", err))
			}
			if isUpvote {
				deltaUp, deltaDown = 1, -1
			} else {
				deltaUp, deltaDown = -1, 1
			}
		}

		confidence := confidenceScore(event.Upvotes+deltaUp, event.Downvotes+deltaDown)

		updated, err := s.repo.ApplyVoteCounters(ctx, eventID, deltaUp, deltaDown, confidence)
		if err != nil {
			return wrap.Error(ctx, fmt.Errorf("failed to apply vote counters: %w", err))
		}

		if updated.Downvotes >= deactivateDownvotes && updated.Confidence < deactivateConfidence {
			if err := s.repo.Deactivate(ctx, eventID, now); err != nil {
				return wrap.Error(ctx, fmt.Errorf("failed to deactivate event: %w", err))
			}
			updated.IsActive = false
			updated.ResolvedAt = &now
			s.l.Info(ctx, "traffic event auto-deactivated by votes", "event_id", eventID)
		}

		result = updated
		return nil
	}

	if err := s.trm.Do(ctx, fn); err != nil {
		return nil, err
	}

	return result, nil
}

// ListActive returns active, unexpired events, optionally filtered by type
// and by proximity to a point. Expired rows encountered during the read are
// lazily deactivated, since no background sweep guarantees instant expiry.
func (s *EventService) ListActive(ctx context.Context, near *models.Location, radiusKm float64, eventType types.TrafficEventType) ([]models.TrafficEvent, error) {
	ctx = wrap.WithAction(ctx, "list_traffic_events")

	events, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	now := time.Now()
	result := make([]models.TrafficEvent, 0, len(events))
	for _, event := range events {
		if event.Expired(now) {
			if err := s.repo.Deactivate(ctx, event.ID, now); err != nil {
				s.l.Warn(ctx, "lazy deactivation failed", "event_id", event.ID, "error", err.Error())
			}
			continue
		}
		if eventType != "" && event.Type != eventType {
			continue
		}
		if near != nil {
			d := geo.HaversineDistance(near.Latitude, near.Longitude, event.Location.Latitude, event.Location.Longitude)
			if d > radiusKm {
				continue
			}
		}
		result = append(result, event)
	}

	return result, nil
}

// Delete removes an event. Only the reporter or an admin may delete.
func (s *EventService) Delete(ctx context.Context, eventID, requesterID uuid.UUID, isAdmin bool) error {
	ctx = wrap.WithAction(ctx, "delete_traffic_event")

	event, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return wrap.Error(ctx, err)
	}

	if !isAdmin && event.ReporterID != requesterID {
		return wrap.Error(ctx, types.ErrForbidden)
	}

	if err := s.repo.Delete(ctx, eventID); err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to delete event: %w", err))
	}

	s.l.Info(ctx, "traffic event deleted", "event_id", eventID)
	return nil
}
