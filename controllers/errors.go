package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"ordenes-service/apperrors"
	"ordenes-service/middlewares"
	"ordenes-service/models"
)

func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation, apperrors.KindStock:
		return http.StatusBadRequest
	case apperrors.KindAuth:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError renders err as {"error": message}. Errors without a kind are
// logged and answered with a generic message.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperrors.KindInternal {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error interno del servidor"})
		return
	}

	status := statusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		logger.Error("upstream failure", zap.String("path", c.FullPath()), zap.Error(err))
	}
	body := gin.H{"error": appErr.Message}
	if appErr.Kind == apperrors.KindStock {
		body["disponible"] = appErr.Available
	}
	c.JSON(status, body)
}

func identityOrAbort(c *gin.Context) (models.Identity, bool) {
	identity, ok := middlewares.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Usuario no autenticado correctamente"})
	}
	return identity, ok
}

func intParam(c *gin.Context, name, message string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
		return 0, false
	}
	return v, true
}

func succeeded(c *gin.Context) bool {
	return c.Writer.Status() >= 200 && c.Writer.Status() < 300
}
