package traffic

import (
	"context"
	"time"

	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
	"github.com/velodrop/courier-dispatch-system/pkg/metrics"
)

// Sweeper periodically evicts expired GPS fixes, stale traffic cells and
// expired crowd events. Every pass is idempotent: running it twice in a row
// removes nothing extra. The live read paths already filter stale data, so
// the sweeper only reclaims memory and keeps the event table honest.
type Sweeper struct {
	store    Store
	events   EventRepo
	agg      *Aggregator
	interval time.Duration
	service  string

	l logger.Logger
}

func NewSweeper(store Store, events EventRepo, agg *Aggregator, interval time.Duration, service string, l logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		events:   events,
		agg:      agg,
		interval: interval,
		service:  service,
		l:        l,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ctx = wrap.WithAction(ctx, "traffic_sweep")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.l.Info(ctx, "traffic sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.l.Info(ctx, "traffic sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now()

	fixes, err := s.store.PurgeExpiredFixes(ctx)
	if err != nil {
		s.l.Warn(ctx, "fix purge failed", "error", err.Error())
	}

	cells, err := s.store.PurgeStaleCells(ctx, s.agg.cfg.StaleAfter)
	if err != nil {
		s.l.Warn(ctx, "cell purge failed", "error", err.Error())
	}

	deactivated := 0
	if s.events != nil {
		deactivated, err = s.events.DeactivateExpired(ctx, now)
		if err != nil {
			s.l.Warn(ctx, "event expiry sweep failed", "error", err.Error())
		}
	}

	if remaining, err := s.store.ListCells(ctx); err == nil {
		active := 0
		for _, cell := range remaining {
			if s.agg.reportable(cell, now) {
				active++
			}
		}
		metrics.TrafficCellsActiveGauge.WithLabelValues(s.service).Set(float64(active))
	}

	if fixes > 0 || cells > 0 || deactivated > 0 {
		s.l.Debug(ctx, "sweep completed",
			"fixes_purged", fixes,
			"cells_purged", cells,
			"events_deactivated", deactivated,
		)
	}
}
