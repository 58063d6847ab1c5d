package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/service/traffic"
)

var _ traffic.Store = (*TrafficStore)(nil)

const (
	fixKeyPrefix  = "traffic:fix:"
	cellKeyPrefix = "traffic:cell:"

	// updateRetries bounds the optimistic WATCH loop on a contended cell.
	updateRetries = 16

	scanBatch = 256
)

// TrafficStore keeps GPS fixes and traffic cells in Redis so several
// traffic-service replicas can share one live picture. Per-key expiry
// replaces the in-process purge: the purge methods are no-ops.
type TrafficStore struct {
	client  *redis.Client
	fixTTL  time.Duration
	cellTTL time.Duration
}

func NewTrafficStore(client *redis.Client, fixTTL, cellTTL time.Duration) *TrafficStore {
	return &TrafficStore{
		client:  client,
		fixTTL:  fixTTL,
		cellTTL: cellTTL,
	}
}

func fixKey(agentID uuid.UUID) string {
	return fixKeyPrefix + agentID.String()
}

func cellKey(cellID string) string {
	return cellKeyPrefix + cellID
}

func (s *TrafficStore) GetFix(ctx context.Context, agentID uuid.UUID) (models.GpsFix, bool, error) {
	const op = "TrafficStore.GetFix"

	raw, err := s.client.Get(ctx, fixKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.GpsFix{}, false, nil
	}
	if err != nil {
		return models.GpsFix{}, false, fmt.Errorf("%s: %w", op, err)
	}

	var fix models.GpsFix
	if err := json.Unmarshal(raw, &fix); err != nil {
		return models.GpsFix{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return fix, true, nil
}

func (s *TrafficStore) PutFix(ctx context.Context, fix models.GpsFix) error {
	const op = "TrafficStore.PutFix"

	raw, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, fixKey(fix.AgentID), raw, s.fixTTL).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// PurgeExpiredFixes is a no-op: Redis expires fix keys itself.
func (s *TrafficStore) PurgeExpiredFixes(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *TrafficStore) GetCell(ctx context.Context, cellID string) (models.TrafficCell, bool, error) {
	const op = "TrafficStore.GetCell"

	raw, err := s.client.Get(ctx, cellKey(cellID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.TrafficCell{}, false, nil
	}
	if err != nil {
		return models.TrafficCell{}, false, fmt.Errorf("%s: %w", op, err)
	}

	var cell models.TrafficCell
	if err := json.Unmarshal(raw, &cell); err != nil {
		return models.TrafficCell{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return cell, true, nil
}

// UpdateCell applies fn under WATCH so a concurrent writer to the same cell
// aborts the transaction and the read-modify-write retries on fresh state.
// Writes to different cells never interfere.
func (s *TrafficStore) UpdateCell(ctx context.Context, cellID string, fn func(cell models.TrafficCell, found bool) models.TrafficCell) (models.TrafficCell, error) {
	const op = "TrafficStore.UpdateCell"

	key := cellKey(cellID)
	var updated models.TrafficCell

	txFn := func(tx *redis.Tx) error {
		var cell models.TrafficCell
		found := true

		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			found = false
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &cell); err != nil {
				return err
			}
		}

		updated = fn(cell, found)

		out, err := json.Marshal(updated)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.cellTTL)
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := s.client.Watch(ctx, txFn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return models.TrafficCell{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.TrafficCell{}, fmt.Errorf("%s: too many conflicts on %s", op, cellID)
}

func (s *TrafficStore) ListCells(ctx context.Context) ([]models.TrafficCell, error) {
	const op = "TrafficStore.ListCells"

	var (
		cells  []models.TrafficCell
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, cellKeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if len(keys) > 0 {
			raws, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			for _, raw := range raws {
				str, ok := raw.(string)
				if !ok {
					// Key expired between SCAN and MGET.
					continue
				}
				var cell models.TrafficCell
				if err := json.Unmarshal([]byte(str), &cell); err != nil {
					return nil, fmt.Errorf("%s: %w", op, err)
				}
				cells = append(cells, cell)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return cells, nil
}

// PurgeStaleCells is a no-op: cell keys carry a TTL refreshed on write.
func (s *TrafficStore) PurgeStaleCells(ctx context.Context, staleAfter time.Duration) (int, error) {
	return 0, nil
}
