package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/metrics"
	"github.com/layer-3/certify/ports"
	"go.uber.org/zap"
)

const (
	capabilityKey = "capability"
	requestIDKey  = "requestID"

	// SigningTokenHeader carries the wallet-scoped signing token on issuance.
	SigningTokenHeader = "Issuer-Signature-Token"
)

// SessionMiddleware validates the bearer session token and stores the
// capability on the context.
func SessionMiddleware(tokens ports.Tokenizer, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid authorization header"})
			return
		}

		capability, err := tokens.TokenToCapability(token, core.CapabilitySession)
		if err == nil {
			err = capability.Validate(core.CapabilitySession, now())
		}
		if err != nil {
			msg := "Invalid token"
			if core.KindOf(err) == core.KindExpired {
				msg = "Token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": msg})
			return
		}

		c.Set(capabilityKey, capability)
		c.Next()
	}
}

// RequireRole rejects sessions that carry none of roles.
func RequireRole(roles ...core.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !capabilityOf(c).HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "Insufficient permissions"})
			return
		}
		c.Next()
	}
}

func capabilityOf(c *gin.Context) *core.Capability {
	v, ok := c.Get(capabilityKey)
	if !ok {
		return &core.Capability{}
	}
	return v.(*core.Capability)
}

// RequestLogger logs every request and feeds the HTTP metrics.
func RequestLogger(logger *zap.Logger, m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), duration)

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
		}
		if v, ok := c.Get(capabilityKey); ok {
			fields = append(fields, zap.String("user_id", v.(*core.Capability).UserID))
		}
		logger.Info("HTTP request", fields...)
	}
}

// Recovery turns a handler panic into a 500.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.String("request_id", c.GetString(requestIDKey)),
					zap.Any("error", err),
					zap.Stack("stack"))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
			}
		}()
		c.Next()
	}
}
