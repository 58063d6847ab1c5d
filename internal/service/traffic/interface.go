package traffic

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
)

// EventRepo persists crowd-reported traffic events and their votes.
type EventRepo interface {
	Create(ctx context.Context, event *models.TrafficEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.TrafficEvent, error)
	ListActive(ctx context.Context) ([]models.TrafficEvent, error)
	Deactivate(ctx context.Context, id uuid.UUID, resolvedAt time.Time) error
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error

	GetVote(ctx context.Context, eventID, voterID uuid.UUID) (*models.TrafficEventVote, error)
	InsertVote(ctx context.Context, vote models.TrafficEventVote) error
	FlipVote(ctx context.Context, eventID, voterID uuid.UUID, isUpvote bool) error
	ApplyVoteCounters(ctx context.Context, eventID uuid.UUID, deltaUp, deltaDown int, confidence float64) (*models.TrafficEvent, error)
}
