package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/velodrop/courier-dispatch-system/internal/adapter/http/middleware"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

// setupRoutes - setups http routes
func setupRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware, mode types.ServiceMode, log logger.Logger) {
	// System Health
	mux.HandleFunc("/health", routes.health.HealthCheck)

	setupSwaggerRoutes(mux, mode, log)
	setupMetricsRoute(mux)

	switch mode {
	case types.TrafficService:
		setupTrafficRoutes(mux, routes, m)
	case types.DispatchService:
		setupDispatchRoutes(mux, routes, m)
	}
}

// setupTrafficRoutes setups routes for the traffic service
func setupTrafficRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware) {
	// GPS ingestion and the live traffic picture
	mux.Handle("POST /v1/traffic/locations", m.RequireRoles(routes.traffic.IngestLocation, types.RoleCourier, types.RoleSender)) // Report a GPS fix
	mux.HandleFunc("GET /v1/traffic/heatmap", routes.traffic.Heatmap)                                                            // Congestion per grid cell
	mux.HandleFunc("GET /v1/traffic/stats", routes.traffic.Stats)                                                                // City-wide statistics
	mux.HandleFunc("POST /v1/traffic/route", routes.traffic.RouteTraffic)                                                        // Traffic along a route
	mux.HandleFunc("GET /v1/traffic/cells/{cell_id}", routes.traffic.CellDetail)                                                 // Single cell detail

	// Crowd-reported events
	mux.Handle("POST /v1/traffic/events", m.RequireRoles(routes.event.Report, types.RoleCourier, types.RoleSender))              // Report an incident
	mux.HandleFunc("GET /v1/traffic/events", routes.event.List)                                                                  // List active events
	mux.Handle("POST /v1/traffic/events/{event_id}/vote", m.RequireRoles(routes.event.Vote, types.RoleCourier, types.RoleSender)) // Confirm or deny
	mux.Handle("DELETE /v1/traffic/events/{event_id}", m.RequireRoles(routes.event.Delete, types.RoleCourier, types.RoleSender, types.RoleAdmin))

	// Smart routing
	mux.HandleFunc("POST /v1/routes/plan", routes.route.Plan) // Traffic-aware route planning
}

// setupDispatchRoutes setups routes for the dispatch service
func setupDispatchRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware) {
	mux.Handle("POST /v1/couriers/online", m.RequireRoles(routes.courier.GoOnline, types.RoleCourier))        // Courier goes online
	mux.Handle("POST /v1/couriers/offline", m.RequireRoles(routes.courier.GoOffline, types.RoleCourier))      // Courier goes offline
	mux.Handle("PUT /v1/couriers/location", m.RequireRoles(routes.courier.UpdateLocation, types.RoleCourier)) // REST location fallback
	mux.Handle("GET /v1/couriers/me", m.RequireRoles(routes.courier.Me, types.RoleCourier))                   // Courier profile

	mux.Handle("GET /ws/couriers", routes.courierSocket) // WebSocket connection for couriers

	mux.Handle("GET /v1/admin/overview", m.RequireRoles(routes.admin.Overview, types.RoleAdmin)) // Operations snapshot
	mux.Handle("GET /v1/admin/dispatch/config", m.RequireRoles(routes.dispatchConfig.Get, types.RoleAdmin))
	mux.Handle("PUT /v1/admin/dispatch/config", m.RequireRoles(routes.dispatchConfig.Update, types.RoleAdmin))
}

// setupSwaggerRoutes configures Swagger UI endpoints based on service mode
func setupSwaggerRoutes(mux *http.ServeMux, mode types.ServiceMode, log logger.Logger) {
	var instanceName string

	switch mode {
	case types.TrafficService:
		instanceName = "traffic"
	case types.DispatchService:
		instanceName = "dispatch"
	default:
		log.Warn(wrap.WithAction(context.Background(), "setup swagger routes"), "unknown service mode for swagger setup", "mode", mode)
		return
	}

	// Swagger UI endpoint
	swaggerURL := httpSwagger.InstanceName(instanceName)
	mux.HandleFunc("/swagger/", httpSwagger.Handler(swaggerURL))
}

// setupMetricsRoute configures the Prometheus metrics endpoint
func setupMetricsRoute(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
