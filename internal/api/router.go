package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/custody-tracker/docs"
	"github.com/99minutos/custody-tracker/internal/api/handler"
	"github.com/99minutos/custody-tracker/internal/api/middleware"
	"github.com/99minutos/custody-tracker/internal/core/ports"
)

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Lifecycle ports.LifecycleService
	Roles     ports.RoleService
	// Health maps a dependency name to its readiness ping.
	Health    map[string]handler.PingFunc
	JWTSecret string
	Logger    zerolog.Logger
	// Registerer and Gatherer default to the Prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(deps.Logger))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: deps.Registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	products := handler.NewProductHandler(deps.Lifecycle)
	roles := handler.NewRoleHandler(deps.Roles)
	health := handler.NewHealthHandler(deps.Health)
	auth := middleware.Auth(deps.JWTSecret)

	// --- Health probes, metrics and docs (no auth required) ---
	e.GET("/health", health.Liveness)
	e.GET("/health/ready", health.Readiness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: deps.Gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := e.Group("/v1")

	// --- Roles ---
	v1.POST("/roles", roles.Grant, auth)
	v1.GET("/actors/:actor/roles", roles.List)

	// --- Products ---
	v1.POST("/products", products.Create, auth)
	v1.GET("/products/:id", products.Get)
	v1.POST("/products/:id/transfer", products.Transfer, auth)
	v1.POST("/products/:id/status", products.UpdateStatus, auth)
	v1.POST("/products/:id/receive", products.Receive, auth)
	v1.POST("/products/:id/deliver", products.Deliver, auth)
	v1.POST("/products/:id/recall", products.Recall, auth)
	v1.POST("/products/:id/admin-override", products.AdminOverride, auth)

	// --- History ---
	v1.GET("/products/:id/history", products.History)
	v1.GET("/products/:id/history/count", products.HistoryCount)
	v1.GET("/products/:id/history/:index", products.HistoryItem)

	return e
}
