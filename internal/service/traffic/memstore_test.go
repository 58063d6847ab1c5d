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
)

func TestMemoryStore_FixTTL(t *testing.T) {
	store := NewMemoryStore(20*time.Millisecond, time.Hour)
	agent := uuid.New()

	require.NoError(t, store.PutFix(context.Background(), models.GpsFix{
		AgentID:   agent,
		Latitude:  14.7,
		Longitude: -17.46,
		Timestamp: time.Now(),
	}))

	_, found, err := store.GetFix(context.Background(), agent)
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(30 * time.Millisecond)

	_, found, err = store.GetFix(context.Background(), agent)
	require.NoError(t, err)
	assert.False(t, found, "expired fix must be invisible")

	purged, err := store.PurgeExpiredFixes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestMemoryStore_ConcurrentUpdatesToOneCellNeverLoseWrites(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Hour)

	const (
		workers         = 16
		writesPerWorker = 100
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writesPerWorker; i++ {
				_, err := store.UpdateCell(context.Background(), "cell_163_-195", func(cell models.TrafficCell, found bool) models.TrafficCell {
					cell.SampleCount++
					return cell
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	cell, found, err := store.GetCell(context.Background(), "cell_163_-195")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, workers*writesPerWorker, cell.SampleCount)
}

func TestMemoryStore_ConcurrentUpdatesToManyCells(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Hour)

	cellIDs := make([]string, 32)
	for i := range cellIDs {
		cellIDs[i] = uuid.NewString()
	}

	var wg sync.WaitGroup
	for _, id := range cellIDs {
		wg.Add(1)
		go func(cellID string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := store.UpdateCell(context.Background(), cellID, func(cell models.TrafficCell, found bool) models.TrafficCell {
					cell.CellID = cellID
					cell.SampleCount++
					return cell
				})
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	cells, err := store.ListCells(context.Background())
	require.NoError(t, err)
	assert.Len(t, cells, len(cellIDs))
	for _, cell := range cells {
		assert.Equal(t, 50, cell.SampleCount)
	}
}

func TestMemoryStore_CellTTL(t *testing.T) {
	store := NewMemoryStore(time.Hour, 10*time.Minute)

	_, err := store.UpdateCell(context.Background(), "old", func(cell models.TrafficCell, found bool) models.TrafficCell {
		cell.CellID = "old"
		cell.LastUpdated = time.Now().Add(-11 * time.Minute)
		return cell
	})
	require.NoError(t, err)

	_, err = store.UpdateCell(context.Background(), "fresh", func(cell models.TrafficCell, found bool) models.TrafficCell {
		cell.CellID = "fresh"
		cell.LastUpdated = time.Now()
		return cell
	})
	require.NoError(t, err)

	// Cells past the storage TTL are invisible to reads.
	_, found, err := store.GetCell(context.Background(), "old")
	require.NoError(t, err)
	assert.False(t, found, "cell past its TTL must be invisible")

	cells, err := store.ListCells(context.Background())
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, "fresh", cells[0].CellID)

	// And the sweeper evicts them even with a generous staleness window.
	_, err = store.UpdateCell(context.Background(), "old2", func(cell models.TrafficCell, found bool) models.TrafficCell {
		cell.CellID = "old2"
		cell.LastUpdated = time.Now().Add(-11 * time.Minute)
		return cell
	})
	require.NoError(t, err)

	purged, err := store.PurgeStaleCells(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestMemoryStore_PurgeStaleCells(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Hour)

	_, err := store.UpdateCell(context.Background(), "fresh", func(cell models.TrafficCell, found bool) models.TrafficCell {
		cell.LastUpdated = time.Now()
		return cell
	})
	require.NoError(t, err)

	_, err = store.UpdateCell(context.Background(), "stale", func(cell models.TrafficCell, found bool) models.TrafficCell {
		cell.LastUpdated = time.Now().Add(-time.Hour)
		return cell
	})
	require.NoError(t, err)

	purged, err := store.PurgeStaleCells(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, found, err := store.GetCell(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = store.GetCell(context.Background(), "stale")
	require.NoError(t, err)
	assert.False(t, found)
}
