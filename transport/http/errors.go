package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/certify/core"
	"go.uber.org/zap"
)

// statusOf maps an error kind to its HTTP status.
func statusOf(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindNotAuthorized:
		return http.StatusForbidden
	case core.KindExpired, core.KindInvalidSignature:
		return http.StatusUnauthorized
	case core.KindConflict:
		return http.StatusConflict
	case core.KindLedger:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides the detail of ledger, artifact and internal errors.
func publicMessage(err error) string {
	switch core.KindOf(err) {
	case core.KindLedger:
		return "Blockchain transaction failed"
	case core.KindArtifact:
		return "File generation failed"
	case core.KindInternal:
		return "Internal server error"
	default:
		return core.MessageOf(err)
	}
}

// writeError renders err once; server side failures are logged with full detail.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusOf(core.KindOf(err))
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.String("route", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": publicMessage(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}
