package traffic

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
)

// FixStore keeps the last GPS fix per agent under a short TTL.
// A courier who goes silent stops contributing once the fix expires.
type FixStore interface {
	GetFix(ctx context.Context, agentID uuid.UUID) (models.GpsFix, bool, error)
	PutFix(ctx context.Context, fix models.GpsFix) error
	PurgeExpiredFixes(ctx context.Context) (int, error)
}

// CellStore keeps aggregated traffic cells under a TTL. UpdateCell must apply
// fn atomically per key: concurrent ingestion into the same cell must not
// lose updates.
type CellStore interface {
	GetCell(ctx context.Context, cellID string) (models.TrafficCell, bool, error)
	UpdateCell(ctx context.Context, cellID string, fn func(cell models.TrafficCell, found bool) models.TrafficCell) (models.TrafficCell, error)
	ListCells(ctx context.Context) ([]models.TrafficCell, error)
	PurgeStaleCells(ctx context.Context, staleAfter time.Duration) (int, error)
}

// Store bundles both ephemeral stores behind one dependency.
type Store interface {
	FixStore
	CellStore
}
