package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/contentstore"
	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/service"
	"github.com/pawanM12/deCertify/internal/transform"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// errorMappings is checked in order; the first match wins
var errorMappings = []errorMapping{
	{service.ErrInvalidRole, http.StatusForbidden, "Access denied"},
	{service.ErrForbidden, http.StatusForbidden, "Access denied"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
	{service.ErrRequestNotFound, http.StatusNotFound, "Certificate request not found"},
	{service.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{service.ErrInvalidTransition, http.StatusConflict, service.ErrInvalidTransition.Error()},
	{service.ErrDuplicateRequest, http.StatusConflict, service.ErrDuplicateRequest.Error()},
	{service.ErrIssuanceInProgress, http.StatusConflict, service.ErrIssuanceInProgress.Error()},
	{service.ErrAlreadyCommitted, http.StatusConflict, service.ErrAlreadyCommitted.Error()},
	{service.ErrUserExists, http.StatusConflict, "User already exists"},
	{service.ErrInvalidAmount, http.StatusBadRequest, service.ErrInvalidAmount.Error()},
	{service.ErrInvalidLedgerTx, http.StatusBadRequest, service.ErrInvalidLedgerTx.Error()},
	{service.ErrInvalidDocument, http.StatusBadRequest, "A PDF document is required"},
	{contentstore.ErrInvalidContentID, http.StatusBadRequest, contentstore.ErrInvalidContentID.Error()},
	{domain.ErrInvalidWalletAddress, http.StatusBadRequest, domain.ErrInvalidWalletAddress.Error()},
	{domain.ErrUnknownRole, http.StatusBadRequest, domain.ErrUnknownRole.Error()},
	{transform.ErrMalformedDocument, http.StatusUnprocessableEntity, transform.ErrMalformedDocument.Error()},
	{transform.ErrEncoding, http.StatusUnprocessableEntity, transform.ErrEncoding.Error()},
	{contentstore.ErrUploadFailed, http.StatusBadGateway, contentstore.ErrUploadFailed.Error()},
}

// respondError writes the HTTP rendering of a service error. Issuance
// failures carry the step they stopped at.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	body := gin.H{}

	var issErr *service.IssuanceError
	if errors.As(err, &issErr) {
		body["step"] = issErr.Step
		if issErr.Partial() {
			logger.Error("Partial issuance",
				zap.String("request_id", c.Param("id")),
				zap.String("content_id", issErr.ContentID),
				zap.Error(issErr.Err))
			body["error"] = service.ErrPartialIssuance.Error()
			body["content_id"] = issErr.ContentID
			body["retryable"] = false
			c.JSON(http.StatusInternalServerError, body)
			return
		}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			body["error"] = m.message
			c.JSON(m.status, body)
			return
		}
	}

	logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	body["error"] = "Internal server error"
	c.JSON(http.StatusInternalServerError, body)
}

// badRequest reports a request body or parameter that failed validation
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
}
