package microservices

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/velodrop/courier-dispatch-system/config"
	httpserver "github.com/velodrop/courier-dispatch-system/internal/adapter/http/server"
	repo "github.com/velodrop/courier-dispatch-system/internal/adapter/postgres"
	"github.com/velodrop/courier-dispatch-system/internal/adapter/routing"
	"github.com/velodrop/courier-dispatch-system/internal/service/auth"
	"github.com/velodrop/courier-dispatch-system/internal/service/geo"
	"github.com/velodrop/courier-dispatch-system/internal/service/router"
	"github.com/velodrop/courier-dispatch-system/internal/service/traffic"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	postgresclient "github.com/velodrop/courier-dispatch-system/pkg/postgres"
	"github.com/velodrop/courier-dispatch-system/pkg/trm"
)

type TrafficService struct {
	postgresDB  *postgresclient.PostgreDB
	redisClient *redis.Client
	httpServer  *httpserver.API
	sweeper     *traffic.Sweeper

	cfg config.Config
	log logger.Logger
}

func NewTraffic(ctx context.Context, cfg config.Config, log logger.Logger) (*TrafficService, error) {
	db, err := postgresclient.New(ctx, cfg.Database)
	if err != nil {
		log.Error(ctx, "Failed to setup database", err)
		return nil, err
	}

	store, redisClient, err := newTrafficStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "Failed to setup traffic store", err)
		return nil, err
	}

	// repositories
	eventRepo := repo.NewTrafficEventRepo(db.Pool)
	txManager := trm.New(db.Pool)

	// services
	grid := geo.NewGrid(cfg.Traffic.CellSizeM, cfg.Traffic.OperatingLat)
	speed := traffic.NewSpeedEstimator(store, cfg.Traffic.MaxSpeedKmh)
	agg := traffic.NewAggregator(grid, store, speed, traffic.AggregatorConfig{
		WindowSize:      cfg.Traffic.WindowSize,
		MinObservations: cfg.Traffic.MinObservations,
		StaleAfter:      cfg.Traffic.StaleAfter,
		Bands:           traffic.DefaultSpeedBands(),
	}, log)
	events := traffic.NewEventService(eventRepo, txManager, log)
	sweeper := traffic.NewSweeper(store, eventRepo, agg, cfg.Traffic.SweepInterval, string(cfg.Mode), log)

	osrm := routing.New(cfg.Routing.OSRMBaseURL, cfg.Routing.Timeout)
	planner := router.NewSmartRouter(osrm, agg, events, router.DefaultConfig(), log)

	tokenSvc := auth.NewTokenService(cfg.Auth.JWTSecret, log)

	server, err := httpserver.New(cfg, httpserver.Dependencies{
		Auth:    tokenSvc,
		Traffic: agg,
		Events:  events,
		Planner: planner,
	}, log)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		return nil, err
	}

	return &TrafficService{
		postgresDB:  db,
		redisClient: redisClient,
		httpServer:  server,
		sweeper:     sweeper,
		cfg:         cfg,
		log:         log,
	}, nil
}

func (s *TrafficService) Start(ctx context.Context) error {
	defer func() {
		s.close(ctx)
		s.log.Info(ctx, "traffic service closed")
	}()

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go s.sweeper.Run(sweepCtx)

	errCh := make(chan error, 1)
	s.httpServer.Run(ctx, errCh)

	// Waiting signal
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	s.log.Info(ctx, "traffic service started")
	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		s.log.Info(ctx, "shuting down application", "signal", sig.String())
		return nil
	}
}

func (s *TrafficService) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := s.httpServer.Stop(ctx); err != nil {
		s.log.Error(ctx, "failed to shutdown HTTP server", err)
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn(ctx, "failed to close redis client", "error", err.Error())
		}
	}

	s.postgresDB.Pool.Close()
}
