package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/service"
)

func requestID(c *gin.Context) domain.RequestID {
	if id := c.Param("id"); id != "" {
		return domain.RequestID(id)
	}
	return domain.RequestID(c.Param("requestId"))
}

// CreateRequest opens a certificate request from the calling student
// POST /requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var in domain.CreateRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	req, err := h.services.Request.Create(c.Request.Context(), caller, &in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, req)
}

// ListRequests lists the caller's requests from the side named by ?role,
// defaulting to the caller's own role
// GET /requests
func (h *Handlers) ListRequests(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	role := caller.Role
	if q := c.Query("role"); q != "" {
		parsed, err := domain.ParseRole(q)
		if err != nil {
			badRequest(c, err)
			return
		}
		role = parsed
	}
	h.listRequestsAs(c, caller, role)
}

func (h *Handlers) listRequestsAs(c *gin.Context, caller domain.Caller, role domain.Role) {
	var (
		views []*domain.RequestView
		err   error
	)
	switch role {
	case domain.RoleOrganization:
		views, err = h.services.Request.ListForOrganization(c.Request.Context(), caller)
	case domain.RoleStudent:
		views, err = h.services.Request.ListForStudent(c.Request.Context(), caller)
	default:
		err = service.ErrInvalidRole
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, views)
}

// listAs returns a handler that lists requests from a fixed side
func (h *Handlers) listAs(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := h.caller(c)
		if !ok {
			return
		}
		h.listRequestsAs(c, caller, role)
	}
}

// GetRequest returns one request the caller is a party to
// GET /requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	view, err := h.services.Request.Get(c.Request.Context(), caller, requestID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// UpdateRequestStatus accepts or rejects a pending request
// PUT /requests/:id/status
func (h *Handlers) UpdateRequestStatus(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var in domain.UpdateStatusInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	req, err := h.services.Request.SetStatus(c.Request.Context(), caller, requestID(c), &in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

// SetVerificationCharge sets what verifiers pay for the certificate
// PUT /requests/:id/verification-charge
func (h *Handlers) SetVerificationCharge(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var in domain.VerificationChargeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	req, err := h.services.Request.SetVerificationCharge(c.Request.Context(), caller, requestID(c), &in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

// RecordLedgerCommit stores the ledger transaction that anchored a certificate
// POST /requests/:id/ledger
func (h *Handlers) RecordLedgerCommit(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var in domain.LedgerCommitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	req, err := h.services.Request.RecordLedgerCommit(c.Request.Context(), caller, requestID(c), &in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

// ListCertificates returns the calling student's issued certificates
// GET /certificates
func (h *Handlers) ListCertificates(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	if q := c.Query("role"); q != "" && q != string(domain.RoleStudent) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	views, err := h.services.Request.ListIssued(c.Request.Context(), caller)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, views)
}
