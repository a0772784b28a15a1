package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/service"
	"github.com/pawanM12/deCertify/pkg/config"
	"github.com/pawanM12/deCertify/pkg/middleware"
)

// Handlers aggregates all HTTP handlers
type Handlers struct {
	services *service.Services
	cfg      *config.Config
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services *service.Services, cfg *config.Config, logger *zap.Logger) *Handlers {
	logger = logger.Named("handlers")
	if err := RegisterValidators(); err != nil {
		logger.Error("Failed to register validators", zap.Error(err))
	}
	return &Handlers{
		services: services,
		cfg:      cfg,
		logger:   logger,
	}
}

// Status handles the /status endpoint
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:       "ok",
		Service:      "decertify",
		APIVersion:   CurrentAPIVersion,
		Capabilities: APICapabilities[CurrentAPIVersion],
	})
}

// caller returns the authenticated caller, writing a 401 when there is none
func (h *Handlers) caller(c *gin.Context) (domain.Caller, bool) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return domain.Caller{}, false
	}
	return caller, true
}

func authResponse(user *domain.User, token string) *domain.AuthResponse {
	return &domain.AuthResponse{
		ID:                     user.ID,
		WalletAddress:          user.WalletAddress,
		Name:                   user.Name,
		UserType:               user.Role,
		Email:                  user.Email,
		IsBlockchainRegistered: user.IsBlockchainRegistered,
		Token:                  token,
	}
}

// Register handles user registration
// POST /auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, token, err := h.services.User.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, authResponse(user, token))
}

// Login handles wallet login
// POST /auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, token, err := h.services.User.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, authResponse(user, token))
}

// Me returns the caller's profile
// GET /auth/me
func (h *Handlers) Me(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	user, err := h.services.User.Me(c.Request.Context(), caller)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateBlockchainStatus flags the caller as registered on the ledger
// PUT /auth/blockchain-status/:id
func (h *Handlers) UpdateBlockchainStatus(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	user, err := h.services.User.MarkBlockchainRegistered(c.Request.Context(), caller, domain.UserID(c.Param("id")))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// ListOrganizations returns every organization a student can request from
// GET /users/organizations
func (h *Handlers) ListOrganizations(c *gin.Context) {
	orgs, err := h.services.User.ListOrganizations(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, orgs)
}
