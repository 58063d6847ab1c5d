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
	wshandler "github.com/velodrop/courier-dispatch-system/internal/adapter/http/ws"
	repo "github.com/velodrop/courier-dispatch-system/internal/adapter/postgres"
	rabbitbroker "github.com/velodrop/courier-dispatch-system/internal/adapter/rabbit"
	"github.com/velodrop/courier-dispatch-system/internal/service/auth"
	"github.com/velodrop/courier-dispatch-system/internal/service/dispatch"
	"github.com/velodrop/courier-dispatch-system/internal/service/geo"
	"github.com/velodrop/courier-dispatch-system/internal/service/traffic"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	postgresclient "github.com/velodrop/courier-dispatch-system/pkg/postgres"
	"github.com/velodrop/courier-dispatch-system/pkg/rabbit"
	ws "github.com/velodrop/courier-dispatch-system/pkg/wsHub"
)

type DispatchService struct {
	postgresDB  *postgresclient.PostgreDB
	redisClient *redis.Client
	rabbitMQ    *rabbit.RabbitMQ
	httpServer  *httpserver.API

	connHub *ws.ConnectionHub
	broker  *rabbitbroker.DispatchBroker
	intake  *dispatch.IntakeService
	sweeper *traffic.Sweeper

	cfg config.Config
	log logger.Logger
}

func NewDispatch(ctx context.Context, cfg config.Config, log logger.Logger) (*DispatchService, error) {
	db, err := postgresclient.New(ctx, cfg.Database)
	if err != nil {
		log.Error(ctx, "Failed to setup database", err)
		return nil, err
	}

	rabbitMQ, err := rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log)
	if err != nil {
		log.Error(ctx, "Failed to setup rabbitmq", err)
		return nil, err
	}

	// Couriers stream GPS over the socket, so this service feeds the same
	// traffic picture the traffic service serves. Point both at redis to
	// share one picture.
	store, redisClient, err := newTrafficStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "Failed to setup traffic store", err)
		return nil, err
	}

	// repositories
	courierRepo := repo.NewCourierRepo(db.Pool)
	orderRepo := repo.NewOrderRepo(db.Pool)
	configRepo := repo.NewDispatchConfigRepo(db.Pool)
	eventRepo := repo.NewTrafficEventRepo(db.Pool)

	// services
	grid := geo.NewGrid(cfg.Traffic.CellSizeM, cfg.Traffic.OperatingLat)
	speed := traffic.NewSpeedEstimator(store, cfg.Traffic.MaxSpeedKmh)
	agg := traffic.NewAggregator(grid, store, speed, traffic.AggregatorConfig{
		WindowSize:      cfg.Traffic.WindowSize,
		MinObservations: cfg.Traffic.MinObservations,
		StaleAfter:      cfg.Traffic.StaleAfter,
		Bands:           traffic.DefaultSpeedBands(),
	}, log)
	sweeper := traffic.NewSweeper(store, eventRepo, agg, cfg.Traffic.SweepInterval, string(cfg.Mode), log)

	broker := rabbitbroker.NewDispatchBroker(rabbitMQ, string(cfg.Mode), log)

	connHub := ws.NewConnHub(log)
	offerSender := wshandler.NewCourierHub(connHub)

	courierSvc := dispatch.NewCourierService(courierRepo, broker, string(cfg.Mode), log)
	configSvc := dispatch.NewConfigService(configRepo, log)
	finder := dispatch.NewFinder(courierRepo, dispatch.DefaultFinderPolicy(), log)
	scoring := dispatch.NewScoringEngine()

	orchestrator := dispatch.NewOrchestrator(
		finder, scoring, configSvc,
		orderRepo, courierRepo,
		offerSender, broker,
		dispatch.OrchestratorConfig{
			OfferTimeout: cfg.Dispatch.OfferTimeout,
			TopN:         cfg.Dispatch.TopN,
			ServiceName:  string(cfg.Mode),
		},
		log,
	)
	intake := dispatch.NewIntakeService(orderRepo, orchestrator, log)
	overview := dispatch.NewOverviewService(courierRepo, orchestrator, log)

	socket := wshandler.NewCourierSocket(connHub, agg, courierSvc, orchestrator, string(cfg.Mode), log)

	tokenSvc := auth.NewTokenService(cfg.Auth.JWTSecret, log)

	server, err := httpserver.New(cfg, httpserver.Dependencies{
		Auth:           tokenSvc,
		Couriers:       courierSvc,
		DispatchConfig: configSvc,
		Admin:          overview,
		CourierSocket:  socket,
	}, log)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		return nil, err
	}

	return &DispatchService{
		postgresDB:  db,
		redisClient: redisClient,
		rabbitMQ:    rabbitMQ,
		httpServer:  server,
		connHub:     connHub,
		broker:      broker,
		intake:      intake,
		sweeper:     sweeper,
		cfg:         cfg,
		log:         log,
	}, nil
}

func (s *DispatchService) Start(ctx context.Context) error {
	defer func() {
		s.close(ctx)
		s.log.Info(ctx, "dispatch service closed")
	}()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	go s.sweeper.Run(workerCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.broker.ConsumeOrderCreated(workerCtx, s.intake.HandleOrderCreated); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := s.broker.ConsumeOrderCancelled(workerCtx, s.intake.HandleOrderCancelled); err != nil {
			errCh <- err
		}
	}()

	s.httpServer.Run(ctx, errCh)

	// Waiting signal
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	s.log.Info(ctx, "dispatch service started")
	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		s.log.Info(ctx, "shuting down application", "signal", sig.String())
		return nil
	}
}

func (s *DispatchService) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := s.httpServer.Stop(ctx); err != nil {
		s.log.Error(ctx, "failed to shutdown HTTP server", err)
	}

	s.connHub.Close()

	if err := s.rabbitMQ.Close(ctx); err != nil {
		s.log.Warn(ctx, "failed to close rabbitmq connection", "error", err.Error())
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn(ctx, "failed to close redis client", "error", err.Error())
		}
	}

	s.postgresDB.Pool.Close()
}
