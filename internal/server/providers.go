package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/api"
	"github.com/pawanM12/deCertify/internal/service"
	"github.com/pawanM12/deCertify/internal/storage"
	"github.com/pawanM12/deCertify/pkg/config"
	"github.com/pawanM12/deCertify/pkg/middleware"
)

// CertificateProvider serves the certificate API and its admin counterpart
type CertificateProvider struct {
	handlers *api.Handlers
	admin    *api.AdminHandlers
	services *service.Services
	limiter  *middleware.AuthRateLimiter
	logger   *zap.Logger
}

// NewCertificateProvider creates the provider for the public and admin API
func NewCertificateProvider(cfg *config.Config, services *service.Services, store storage.Store, logger *zap.Logger) *CertificateProvider {
	return &CertificateProvider{
		handlers: api.NewHandlers(services, cfg, logger),
		admin:    api.NewAdminHandlers(services, store, logger),
		services: services,
		limiter:  middleware.NewAuthRateLimiter(cfg.Security.AuthRateLimit, logger),
		logger:   logger,
	}
}

func (p *CertificateProvider) Name() string { return "certificates" }

func (p *CertificateProvider) RegisterRoutes(router *gin.Engine) {
	auth := middleware.AuthMiddleware(p.services.User, p.logger)
	authLimit := middleware.AuthRateLimitMiddleware(p.limiter, middleware.WalletIdentifier)
	p.handlers.RegisterRoutes(router, auth, authLimit)
}

func (p *CertificateProvider) RegisterAdminRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	p.admin.RegisterRoutes(router, auth)
}
