package traffic

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
)

const shardCount = 64

// MemoryStore is the in-process implementation of Store. Keys are sharded so
// that concurrent updates to different cells never contend on one lock, and
// updates to the same cell serialize on its shard.
type MemoryStore struct {
	fixTTL  time.Duration
	cellTTL time.Duration

	fixShards  [shardCount]fixShard
	cellShards [shardCount]cellShard
}

type fixShard struct {
	mu    sync.RWMutex
	fixes map[uuid.UUID]fixEntry
}

type fixEntry struct {
	fix       models.GpsFix
	expiresAt time.Time
}

type cellShard struct {
	mu    sync.Mutex
	cells map[string]models.TrafficCell
}

func NewMemoryStore(fixTTL, cellTTL time.Duration) *MemoryStore {
	s := &MemoryStore{
		fixTTL:  fixTTL,
		cellTTL: cellTTL,
	}
	for i := range s.fixShards {
		s.fixShards[i].fixes = make(map[uuid.UUID]fixEntry)
	}
	for i := range s.cellShards {
		s.cellShards[i].cells = make(map[string]models.TrafficCell)
	}
	return s
}

func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

func (s *MemoryStore) GetFix(ctx context.Context, agentID uuid.UUID) (models.GpsFix, bool, error) {
	shard := &s.fixShards[shardIndex(agentID.String())]
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, ok := shard.fixes[agentID]
	if !ok || time.Now().After(entry.expiresAt) {
		return models.GpsFix{}, false, nil
	}
	return entry.fix, true, nil
}

func (s *MemoryStore) PutFix(ctx context.Context, fix models.GpsFix) error {
	shard := &s.fixShards[shardIndex(fix.AgentID.String())]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.fixes[fix.AgentID] = fixEntry{
		fix:       fix,
		expiresAt: time.Now().Add(s.fixTTL),
	}
	return nil
}

func (s *MemoryStore) PurgeExpiredFixes(ctx context.Context) (int, error) {
	now := time.Now()
	purged := 0
	for i := range s.fixShards {
		shard := &s.fixShards[i]
		shard.mu.Lock()
		for id, entry := range shard.fixes {
			if now.After(entry.expiresAt) {
				delete(shard.fixes, id)
				purged++
			}
		}
		shard.mu.Unlock()
	}
	return purged, nil
}

// cellExpired reports whether a cell has outlived its storage TTL, matching
// the per-key expiry the Redis store gets from SETEX.
func (s *MemoryStore) cellExpired(cell models.TrafficCell, now time.Time) bool {
	return s.cellTTL > 0 && !cell.LastUpdated.IsZero() && now.Sub(cell.LastUpdated) > s.cellTTL
}

func (s *MemoryStore) GetCell(ctx context.Context, cellID string) (models.TrafficCell, bool, error) {
	shard := &s.cellShards[shardIndex(cellID)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	cell, ok := shard.cells[cellID]
	if !ok {
		return models.TrafficCell{}, false, nil
	}
	if s.cellExpired(cell, time.Now()) {
		delete(shard.cells, cellID)
		return models.TrafficCell{}, false, nil
	}
	return cell, true, nil
}

// UpdateCell applies fn under the shard lock: a read-modify-write on one
// cell never observes a concurrent writer's half-applied state.
func (s *MemoryStore) UpdateCell(ctx context.Context, cellID string, fn func(cell models.TrafficCell, found bool) models.TrafficCell) (models.TrafficCell, error) {
	shard := &s.cellShards[shardIndex(cellID)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	cell, ok := shard.cells[cellID]
	updated := fn(cell, ok)
	shard.cells[cellID] = updated
	return updated, nil
}

func (s *MemoryStore) ListCells(ctx context.Context) ([]models.TrafficCell, error) {
	now := time.Now()
	var cells []models.TrafficCell
	for i := range s.cellShards {
		shard := &s.cellShards[i]
		shard.mu.Lock()
		for id, cell := range shard.cells {
			if s.cellExpired(cell, now) {
				delete(shard.cells, id)
				continue
			}
			cells = append(cells, cell)
		}
		shard.mu.Unlock()
	}
	return cells, nil
}

func (s *MemoryStore) PurgeStaleCells(ctx context.Context, staleAfter time.Duration) (int, error) {
	now := time.Now()
	cutoff := now.Add(-staleAfter)
	purged := 0
	for i := range s.cellShards {
		shard := &s.cellShards[i]
		shard.mu.Lock()
		for id, cell := range shard.cells {
			if cell.LastUpdated.Before(cutoff) || s.cellExpired(cell, now) {
				delete(shard.cells, id)
				purged++
			}
		}
		shard.mu.Unlock()
	}
	return purged, nil
}
