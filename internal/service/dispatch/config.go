package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

// ConfigService caches the singleton dispatch configuration and invalidates
// the cache explicitly on update, so weight changes apply without a restart.
type ConfigService struct {
	repo ConfigRepo
	l    logger.Logger

	mu     sync.RWMutex
	cached *models.DispatchConfiguration
}

func NewConfigService(repo ConfigRepo, l logger.Logger) *ConfigService {
	return &ConfigService{
		repo: repo,
		l:    l,
	}
}

// Get returns the cached configuration, loading it from storage on a cache
// miss. When no configuration has ever been stored the defaults apply.
/// Invalid weights do not block dispatching: the engine fails open and the
// condition is logged for operators.
func (s *ConfigService) Get(ctx context.Context) (models.DispatchConfiguration, error) {
	s.mu.RLock()
	if s.cached != nil {
		cfg := *s.cached
		s.mu.RUnlock()
		return cfg, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached, nil
	}

	cfg, err := s.repo.Get(ctx)
	if errors.Is(err, types.ErrConfigNotFound) {
		def := models.DefaultDispatchConfiguration()
		s.cached = &def
		return def, nil
	}
	if err != nil {
		return models.DispatchConfiguration{}, wrap.Error(ctx, fmt.Errorf("failed to load dispatch configuration: %w", err))
	}

	if !cfg.WeightsValid() {
		s.l.Warn(ctx, "dispatch weights do not sum to 1.0, engine runs with them anyway",
			"weight_sum", cfg.WeightSum())
	}

	s.cached = cfg
	return *cfg, nil
}

// Update stores a new configuration and invalidates the cache. Weights that
// do not sum to 1.0 are accepted but reported back through the returned
// configuration's WeightsValid.
func (s *ConfigService) Update(ctx context.Context, cfg models.DispatchConfiguration) (models.DispatchConfiguration, error) {
	ctx = wrap.WithAction(ctx, "update_dispatch_config")

	cfg.UpdatedAt = time.Now()

	if !cfg.WeightsValid() {
		s.l.Warn(ctx, "storing dispatch configuration with invalid weight sum",
			"weight_sum", cfg.WeightSum())
	}

	if err := s.repo.Save(ctx, cfg); err != nil {
		return models.DispatchConfiguration{}, wrap.Error(ctx, fmt.Errorf("failed to save dispatch configuration: %w", err))
	}

	s.Invalidate()
	s.l.Info(ctx, "dispatch configuration updated", "weights_valid", cfg.WeightsValid())

	return cfg, nil
}

// Invalidate drops the cached configuration; the next Get reloads it.
func (s *ConfigService) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
