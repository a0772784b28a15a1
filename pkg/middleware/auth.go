package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/metrics"
)

const callerKey = "caller"

// TokenValidator resolves a bearer token to the caller it was issued to
type TokenValidator interface {
	ValidateToken(token string) (domain.Caller, error)
}

// GenerateAdminToken generates a secure random token for admin API authentication
func GenerateAdminToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// bearerToken extracts the token from "Bearer <token>". The returned message
// is the client-facing error when extraction fails.
func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "Authorization header required"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "Invalid authorization header format"
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", "Token required"
	}
	return token, ""
}

// AdminAuthMiddleware validates bearer tokens for the admin API
func AdminAuthMiddleware(token string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedToken, msg := bearerToken(c)
		if msg != "" {
			c.JSON(401, gin.H{"error": msg})
			c.Abort()
			return
		}

		// Constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(providedToken), []byte(token)) != 1 {
			logger.Warn("Invalid admin token attempt")
			c.JSON(401, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AuthMiddleware validates JWT tokens and stores the resulting caller in the context.
// The legacy frontend also sends the token in x-auth-token.
func AuthMiddleware(validator TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, msg := bearerToken(c)
		if msg != "" {
			if legacy := strings.TrimSpace(c.GetHeader("x-auth-token")); legacy != "" {
				tokenString, msg = legacy, ""
			}
		}
		if msg != "" {
			c.JSON(401, gin.H{"error": msg})
			c.Abort()
			return
		}

		caller, err := validator.ValidateToken(tokenString)
		if err != nil {
			logger.Debug("Rejected token", zap.Error(err))
			c.JSON(401, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(callerKey, caller)
		c.Set("user_id", caller.UserID.String())
		c.Next()
	}
}

// CallerFromContext returns the caller set by AuthMiddleware
func CallerFromContext(c *gin.Context) (domain.Caller, bool) {
	v, exists := c.Get(callerKey)
	if !exists {
		return domain.Caller{}, false
	}
	caller, ok := v.(domain.Caller)
	return caller, ok
}

// Logger returns a gin middleware for logging
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Info("Request", fields...)
	}
}

// Metrics records request counts and latency by route template
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
