package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
)

// TrafficEvent is a crowd-reported incident (accident, roadblock, flooding...).
// Persisted; mutated by votes; deactivated by expiry, reporter delete, or the
// downvote/confidence rule.
type TrafficEvent struct {
	ID          uuid.UUID
	ReporterID  uuid.UUID
	Type        types.TrafficEventType
	Severity    types.EventSeverity
	Location    Location
	Description string
	PhotoRef    *string

	Upvotes    int
	Downvotes  int
	Confidence float64 // 0..100, derived from the vote ratio

	IsActive   bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ResolvedAt *time.Time
}

// Expired reports whether the event is past its lifetime at the given instant.
func (e *TrafficEvent) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TrafficEventVote records one voter's verdict on an event.
// Unique per (event, voter); flipping direction updates the event counters.
type TrafficEventVote struct {
	EventID  uuid.UUID
	VoterID  uuid.UUID
	IsUpvote bool
	VotedAt  time.Time
}
