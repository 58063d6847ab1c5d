package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/velodrop/courier-dispatch-system/config"
	"github.com/velodrop/courier-dispatch-system/internal/adapter/http/handler"
	"github.com/velodrop/courier-dispatch-system/internal/adapter/http/middleware"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

const serverIPAddress = "%s:%s"

// Dependencies carries the domain services the HTTP layer exposes. Only the
// ones the selected mode needs have to be non-nil.
type Dependencies struct {
	Auth middleware.AuthService

	Traffic        handler.TrafficService
	Events         handler.EventService
	Planner        handler.RoutePlanner
	Couriers       handler.CourierService
	DispatchConfig handler.DispatchConfigService
	Admin          handler.AdminService

	// CourierSocket is the WebSocket endpoint couriers keep open for
	// offers and location streaming.
	CourierSocket http.Handler
}

type API struct {
	mode   types.ServiceMode
	mux    *http.ServeMux
	server *http.Server
	routes *handlers
	m      *middleware.Middleware

	addr string
	cfg  config.Config
	log  logger.Logger
}

type handlers struct {
	health *handler.Health

	traffic *handler.Traffic
	event   *handler.Event
	route   *handler.Route

	courier        *handler.Courier
	dispatchConfig *handler.DispatchConfig
	admin          *handler.Admin
	courierSocket  http.Handler
}

func New(cfg config.Config, deps Dependencies, log logger.Logger) (*API, error) {
	if deps.Auth == nil {
		return nil, errors.New("auth service is required")
	}

	var addr string
	routes := &handlers{
		health: handler.NewHealth(string(cfg.Mode), log),
	}

	switch cfg.Mode {
	case types.TrafficService:
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.TrafficService)
		routes.traffic = handler.NewTraffic(deps.Traffic, string(cfg.Mode), log)
		routes.event = handler.NewEvent(deps.Events, string(cfg.Mode), log)
		routes.route = handler.NewRoute(deps.Planner, log)
	case types.DispatchService:
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.DispatchService)
		routes.courier = handler.NewCourier(deps.Couriers, log)
		routes.dispatchConfig = handler.NewDispatchConfig(deps.DispatchConfig, log)
		routes.admin = handler.NewAdmin(deps.Admin, log)
		routes.courierSocket = deps.CourierSocket
	default:
		return nil, fmt.Errorf("invalid mode: %s", cfg.Mode)
	}

	mid := middleware.NewMiddleware(deps.Auth, log)

	api := &API{
		mode: cfg.Mode,

		mux:    http.NewServeMux(),
		routes: routes,
		m:      mid,
		addr:   addr,
		cfg:    cfg,
		log:    log,
	}

	api.server = &http.Server{
		Addr:    api.addr,
		Handler: api.withMiddleware(),
	}

	setupRoutes(api.mux, api.routes, api.m, api.mode, api.log)

	return api, nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr, "mode", a.mode)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

// withMiddleware applies middlewares to the mux
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.Logging(a.m.Metrics(string(a.mode))(a.m.Auth(a.mux))))
}
