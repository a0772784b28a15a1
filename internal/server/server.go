// Package server runs the public and admin HTTP servers. Route providers
// contribute routes; the manager owns middleware, listeners and shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/metrics"
	"github.com/pawanM12/deCertify/pkg/config"
	"github.com/pawanM12/deCertify/pkg/middleware"
)

// RouteProvider adds routes to the public router
type RouteProvider interface {
	Name() string
	RegisterRoutes(router *gin.Engine)
}

// AdminRouteProvider adds routes to the admin router. auth checks the admin token.
type AdminRouteProvider interface {
	RegisterAdminRoutes(router *gin.Engine, auth gin.HandlerFunc)
}

// Manager manages the public and admin HTTP servers
type Manager struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	logger  *zap.Logger

	providers []RouteProvider

	httpServer  *http.Server
	adminServer *http.Server

	httpRouter  *gin.Engine
	adminRouter *gin.Engine
	adminToken  string
}

// NewManager creates a new server manager. m may be nil when metrics are disabled.
func NewManager(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		metrics: m,
		logger:  logger.Named("server"),
	}
}

// AddProvider adds a RouteProvider. Call this before Build or Start.
func (m *Manager) AddProvider(p RouteProvider) {
	m.providers = append(m.providers, p)
	m.logger.Debug("Added route provider", zap.String("name", p.Name()))
}

// Build creates the routers without starting any listener
func (m *Manager) Build() error {
	if m.cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	m.httpRouter = m.buildRouter()
	for _, p := range m.providers {
		m.logger.Info("Registering HTTP routes", zap.String("provider", p.Name()))
		p.RegisterRoutes(m.httpRouter)
	}

	if m.metrics != nil && m.cfg.Metrics.Enabled {
		m.httpRouter.GET(m.cfg.Metrics.Path, gin.WrapH(m.metrics.Handler()))
	}

	if m.cfg.Server.AdminPort > 0 {
		if err := m.buildAdminRouter(); err != nil {
			return err
		}
	}
	return nil
}

// Start builds the routers if needed and starts the listeners
func (m *Manager) Start(ctx context.Context) error {
	if m.httpRouter == nil {
		if err := m.Build(); err != nil {
			return err
		}
	}

	m.httpServer = newHTTPServer(m.cfg.Server.Address(), m.httpRouter)
	m.serve("HTTP", m.httpServer)

	if m.adminRouter != nil {
		m.adminServer = newHTTPServer(m.cfg.Server.AdminAddress(), m.adminRouter)
		m.serve("Admin", m.adminServer)
	}
	return nil
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: handler,
		// Uploads of certificates up to max_upload_mb must fit in the read timeout
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (m *Manager) serve(name string, srv *http.Server) {
	go func() {
		m.logger.Info(name+" server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error(name+" server error", zap.Error(err))
		}
	}()
}

// Shutdown gracefully shuts down all servers
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error

	if m.httpServer != nil {
		if err := m.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
	}

	if m.adminServer != nil {
		if err := m.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}

// buildRouter creates a new router with common middleware
func (m *Manager) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(m.logger))
	if m.metrics != nil {
		router.Use(middleware.Metrics(m.metrics))
	}

	origins := m.cfg.Server.AllowedOrigins
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "x-auth-token"},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	router.Use(cors.New(corsCfg))
	return router
}

func (m *Manager) buildAdminRouter() error {
	token := m.cfg.Server.AdminToken
	if token == "" {
		var err error
		token, err = middleware.GenerateAdminToken()
		if err != nil {
			return fmt.Errorf("failed to generate admin token: %w", err)
		}
		m.logger.Info("Generated admin API token (set DECERTIFY_SERVER_ADMIN_TOKEN to use a fixed token)",
			zap.String("token", token))
	}
	m.adminToken = token

	m.adminRouter = gin.New()
	m.adminRouter.Use(gin.Recovery())
	m.adminRouter.Use(middleware.Logger(m.logger.Named("admin")))

	auth := middleware.AdminAuthMiddleware(token, m.logger)
	for _, p := range m.providers {
		if ap, ok := p.(AdminRouteProvider); ok {
			ap.RegisterAdminRoutes(m.adminRouter, auth)
		}
	}
	return nil
}

// HTTPRouter returns the public router; nil before Build
func (m *Manager) HTTPRouter() *gin.Engine {
	return m.httpRouter
}

// AdminRouter returns the admin router; nil when the admin port is disabled
func (m *Manager) AdminRouter() *gin.Engine {
	return m.adminRouter
}

// AdminToken returns the token the admin API accepts
func (m *Manager) AdminToken() string {
	return m.adminToken
}
