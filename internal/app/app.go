package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/velodrop/courier-dispatch-system/config"
	"github.com/velodrop/courier-dispatch-system/internal/app/microservices"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
)

var (
	ErrInvalidMode           = errors.New("invalid mode")
	ErrServiceNotInitialized = errors.New("service not initialized")
)

type Service interface {
	Start(ctx context.Context) error
}

type App struct {
	mode    types.ServiceMode
	service Service

	cfg config.Config
	log logger.Logger
}

// NewApplication
func NewApplication(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	app := &App{
		mode: cfg.Mode,
		cfg:  cfg,
		log:  log,
	}

	if err := app.initService(ctx, app.mode); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	if a.service == nil {
		return ErrServiceNotInitialized
	}

	if err := a.service.Start(ctx); err != nil {
		return err
	}

	return nil
}

func (a *App) initService(ctx context.Context, mode types.ServiceMode) error {
	var (
		service Service
		err     error
	)
	switch mode {
	case types.TrafficService:
		service, err = microservices.NewTraffic(ctx, a.cfg, a.log)
	case types.DispatchService:
		service, err = microservices.NewDispatch(ctx, a.cfg, a.log)
	default:
		return ErrInvalidMode
	}

	if err != nil {
		return fmt.Errorf("failed to init service: %w", err)
	}
	if service == nil {
		return fmt.Errorf("failed to initialize: %s", mode)
	}

	a.service = service

	return nil
}
