package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

// FinderPolicy controls candidate eligibility beyond the geo range query.
type FinderPolicy struct {
	// ExcludeBusy drops couriers already on an active delivery.
	ExcludeBusy bool
	// MaxPingAge drops couriers whose last location update is older than
	// this; zero disables the check.
	MaxPingAge time.Duration
}

func DefaultFinderPolicy() FinderPolicy {
	return FinderPolicy{
		ExcludeBusy: true,
		MaxPingAge:  5 * time.Minute,
	}
}

// Finder performs the radius-bounded candidate search around a pickup point.
// Eligibility (online, verified, non-blocked) is enforced by the repository
// query; the finder layers the freshness policy and guarantees the ordering.
type Finder struct {
	couriers CourierRepo
	policy   FinderPolicy
	l        logger.Logger
}

func NewFinder(couriers CourierRepo, policy FinderPolicy, l logger.Logger) *Finder {
	return &Finder{
		couriers: couriers,
		policy:   policy,
		l:        l,
	}
}

// Find returns eligible couriers within radiusKm of pickup, closest first.
func (f *Finder) Find(ctx context.Context, pickup models.Location, radiusKm float64) ([]models.CourierCandidate, error) {
	candidates, err := f.couriers.FindNearby(ctx, pickup, radiusKm, f.policy.ExcludeBusy)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	if f.policy.MaxPingAge > 0 {
		cutoff := time.Now().Add(-f.policy.MaxPingAge)
		fresh := candidates[:0]
		for _, c := range candidates {
			if c.LastPingAt.Before(cutoff) {
				continue
			}
			fresh = append(fresh, c)
		}
		candidates = fresh
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DistanceToPickupKm < candidates[j].DistanceToPickupKm
	})

	return candidates, nil
}
