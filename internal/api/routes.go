package api

import (
	"github.com/gin-gonic/gin"

	"github.com/pawanM12/deCertify/internal/domain"
)

// RegisterRoutes mounts the public API. auth authenticates the caller and
// authLimit guards the credential endpoints.
func (h *Handlers) RegisterRoutes(router gin.IRouter, auth, authLimit gin.HandlerFunc) {
	router.GET("/status", h.Status)
	router.GET("/health", h.Status)

	router.POST("/auth/register", authLimit, h.Register)
	router.POST("/auth/login", authLimit, h.Login)
	router.GET("/users/organizations", h.ListOrganizations)

	protected := router.Group("/", auth)
	{
		protected.GET("/auth/me", h.Me)
		protected.PUT("/auth/blockchain-status/:id", h.UpdateBlockchainStatus)

		requests := protected.Group("/requests")
		{
			requests.POST("", h.CreateRequest)
			requests.GET("", h.ListRequests)
			requests.GET("/:id", h.GetRequest)
			requests.PUT("/:id/status", h.UpdateRequestStatus)
			requests.PUT("/:id/verification-charge", h.SetVerificationCharge)
			requests.POST("/:id/ledger", h.RecordLedgerCommit)
			requests.POST("/:id/issue", h.IssueCertificate)
			requests.POST("/:id/issue/retry", h.RetryIssue)
		}

		protected.GET("/certificates", h.ListCertificates)
	}

	h.registerLegacyRoutes(router, auth, authLimit)
}

// registerLegacyRoutes mounts the paths used by the original web frontend
func (h *Handlers) registerLegacyRoutes(router gin.IRouter, auth, authLimit gin.HandlerFunc) {
	legacy := router.Group("/api")
	{
		legacy.POST("/auth/register", authLimit, h.Register)
		legacy.POST("/auth/login", authLimit, h.Login)
		legacy.PUT("/auth/update-blockchain-status/:id", auth, h.UpdateBlockchainStatus)

		legacy.GET("/users/organizations", h.ListOrganizations)

		users := legacy.Group("/users", auth)
		{
			users.POST("/request-certificate", h.CreateRequest)
			users.GET("/organization-requests", h.listAs(domain.RoleOrganization))
			users.GET("/student-requests", h.listAs(domain.RoleStudent))
			users.PUT("/request/:id/status", h.UpdateRequestStatus)
			users.GET("/received-certificates", h.ListCertificates)
		}

		legacy.POST("/ipfs/upload-document/:requestId", auth, h.LegacyUploadDocument)
	}
}
