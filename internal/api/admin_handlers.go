package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/service"
	"github.com/pawanM12/deCertify/internal/storage"
)

// AdminHandlers contains handlers for internal admin API endpoints
type AdminHandlers struct {
	services *service.Services
	store    storage.Store
	logger   *zap.Logger
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(services *service.Services, store storage.Store, logger *zap.Logger) *AdminHandlers {
	return &AdminHandlers{
		services: services,
		store:    store,
		logger:   logger.Named("admin"),
	}
}

// RegisterRoutes mounts the admin API. Only /admin/status is reachable without auth.
func (h *AdminHandlers) RegisterRoutes(router gin.IRouter, auth gin.HandlerFunc) {
	router.GET("/admin/status", h.AdminStatus)

	admin := router.Group("/admin", auth)
	{
		admin.GET("/requests", h.ListRequests)
		admin.GET("/requests/:id", h.GetRequest)
		admin.GET("/users", h.ListUsers)
	}
}

// AdminStatus reports whether the store is reachable
// GET /admin/status
func (h *AdminHandlers) AdminStatus(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("Storage ping failed", zap.Error(err))
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"service": "decertify-admin",
	})
}

// GetRequest returns any request with both parties joined
// GET /admin/requests/:id
func (h *AdminHandlers) GetRequest(c *gin.Context) {
	view, err := h.services.Request.AdminGet(c.Request.Context(), domain.RequestID(c.Param("id")))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListRequests lists requests; ?status=issued&unanchored=true is the
// reconciliation list of issued certificates without a ledger commit
// GET /admin/requests
func (h *AdminHandlers) ListRequests(c *gin.Context) {
	filter := storage.RequestFilter{
		Student:      domain.UserID(c.Query("student")),
		Organization: domain.UserID(c.Query("organization")),
	}

	if s := c.Query("status"); s != "" {
		status := domain.RequestStatus(s)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status", "status": s})
			return
		}
		filter.Status = status
	}

	if u := c.Query("unanchored"); u != "" {
		unanchored, err := strconv.ParseBool(u)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid unanchored flag"})
			return
		}
		filter.Unanchored = unanchored
	}

	views, err := h.services.Request.AdminList(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": views, "count": len(views)})
}

// ListUsers lists users, optionally by ?role
// GET /admin/users
func (h *AdminHandlers) ListUsers(c *gin.Context) {
	var role domain.Role
	if r := c.Query("role"); r != "" {
		parsed, err := domain.ParseRole(r)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role", "role": r})
			return
		}
		role = parsed
	}

	users, err := h.services.User.ListUsers(c.Request.Context(), role)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}
