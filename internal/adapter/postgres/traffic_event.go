package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

const eventColumns = `
	id, reporter_id, event_type, severity, latitude, longitude,
	description, photo_ref, upvotes, downvotes, confidence,
	is_active, created_at, expires_at, resolved_at`

type TrafficEventRepo struct {
	db *pgxpool.Pool
}

func NewTrafficEventRepo(db *pgxpool.Pool) *TrafficEventRepo {
	return &TrafficEventRepo{
		db: db,
	}
}

func scanEvent(row pgx.Row) (*models.TrafficEvent, error) {
	var e models.TrafficEvent
	err := row.Scan(
		&e.ID, &e.ReporterID, &e.Type, &e.Severity,
		&e.Location.Latitude, &e.Location.Longitude,
		&e.Description, &e.PhotoRef, &e.Upvotes, &e.Downvotes, &e.Confidence,
		&e.IsActive, &e.CreatedAt, &e.ExpiresAt, &e.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *TrafficEventRepo) Create(ctx context.Context, event *models.TrafficEvent) error {
	const op = "TrafficEventRepo.Create"
	query := `
		INSERT INTO traffic_events(id, reporter_id, event_type, severity,
		                           latitude, longitude, description, photo_ref,
		                           upvotes, downvotes, confidence,
		                           is_active, created_at, expires_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if _, err := TxorDB(ctx, r.db).Exec(ctx, query,
		event.ID,
		event.ReporterID,
		event.Type,
		event.Severity,
		event.Location.Latitude,
		event.Location.Longitude,
		event.Description,
		event.PhotoRef,
		event.Upvotes,
		event.Downvotes,
		event.Confidence,
		event.IsActive,
		event.CreatedAt,
		event.ExpiresAt,
	); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return nil
}

func (r *TrafficEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.TrafficEvent, error) {
	const op = "TrafficEventRepo.GetByID"
	query := `SELECT ` + eventColumns + ` FROM traffic_events WHERE id = $1`

	event, err := scanEvent(TxorDB(ctx, r.db).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrEventNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return event, nil
}

func (r *TrafficEventRepo) ListActive(ctx context.Context) ([]models.TrafficEvent, error) {
	const op = "TrafficEventRepo.ListActive"
	query := `
		SELECT ` + eventColumns + `
		FROM traffic_events
		WHERE is_active
		ORDER BY created_at DESC`

	rows, err := TxorDB(ctx, r.db).Query(ctx, query)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var events []models.TrafficEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return events, nil
}

func (r *TrafficEventRepo) Deactivate(ctx context.Context, id uuid.UUID, resolvedAt time.Time) error {
	const op = "TrafficEventRepo.Deactivate"
	query := `
		UPDATE traffic_events
		SET is_active = false, resolved_at = $2
		WHERE id = $1 AND is_active`

	if _, err := TxorDB(ctx, r.db).Exec(ctx, query, id, resolvedAt); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return nil
}

// DeactivateExpired is the sweep half of event expiry; reads also expire
// lazily, so running it late loses nothing.
func (r *TrafficEventRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	const op = "TrafficEventRepo.DeactivateExpired"
	query := `
		UPDATE traffic_events
		SET is_active = false, resolved_at = $1
		WHERE is_active AND expires_at <= $1`

	tag, err := TxorDB(ctx, r.db).Exec(ctx, query, now)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return 0, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return int(tag.RowsAffected()), nil
}

func (r *TrafficEventRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "TrafficEventRepo.Delete"
	query := `DELETE FROM traffic_events WHERE id = $1`

	tag, err := TxorDB(ctx, r.db).Exec(ctx, query, id)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrEventNotFound
	}

	return nil
}

func (r *TrafficEventRepo) GetVote(ctx context.Context, eventID, voterID uuid.UUID) (*models.TrafficEventVote, error) {
	const op = "TrafficEventRepo.GetVote"
	query := `
		SELECT event_id, voter_id, is_upvote, voted_at
		FROM traffic_event_votes
		WHERE event_id = $1 AND voter_id = $2`

	var v models.TrafficEventVote
	err := TxorDB(ctx, r.db).QueryRow(ctx, query, eventID, voterID).Scan(
		&v.EventID, &v.VoterID, &v.IsUpvote, &v.VotedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return &v, nil
}

func (r *TrafficEventRepo) InsertVote(ctx context.Context, vote models.TrafficEventVote) error {
	const op = "TrafficEventRepo.InsertVote"
	query := `
		INSERT INTO traffic_event_votes(event_id, voter_id, is_upvote, voted_at)
		VALUES($1, $2, $3, $4)`

	if _, err := TxorDB(ctx, r.db).Exec(ctx, query, vote.EventID, vote.VoterID, vote.IsUpvote, vote.VotedAt); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return nil
}

func (r *TrafficEventRepo) FlipVote(ctx context.Context, eventID, voterID uuid.UUID, isUpvote bool) error {
	const op = "TrafficEventRepo.FlipVote"
	query := `
		UPDATE traffic_event_votes
		SET is_upvote = $3, voted_at = now()
		WHERE event_id = $1 AND voter_id = $2`

	if _, err := TxorDB(ctx, r.db).Exec(ctx, query, eventID, voterID, isUpvote); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return nil
}

// ApplyVoteCounters mutates the counters in one statement and returns the
// resulting row, so the caller's deactivation rule sees committed values.
// Only active events take votes; a concurrent deactivation between the
// caller's read and this update surfaces as types.ErrEventExpired.
func (r *TrafficEventRepo) ApplyVoteCounters(ctx context.Context, eventID uuid.UUID, deltaUp, deltaDown int, confidence float64) (*models.TrafficEvent, error) {
	const op = "TrafficEventRepo.ApplyVoteCounters"
	query := `
		UPDATE traffic_events
		SET upvotes = upvotes + $2, downvotes = downvotes + $3, confidence = $4
		WHERE id = $1 AND is_active
		RETURNING ` + eventColumns

	event, err := scanEvent(TxorDB(ctx, r.db).QueryRow(ctx, query, eventID, deltaUp, deltaDown, confidence))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrEventExpired
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return event, nil
}
