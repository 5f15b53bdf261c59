package handler

import (
	"errors"
	"net/http"

	apperrors "cinema-checkout/pkg/app_errors"
	"cinema-checkout/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClientIDHeader identifies the browser client owning a checkout.
const ClientIDHeader = "X-Client-ID"

func BindJson(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
		})
		return err
	}
	return nil
}

func BindQuery(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindQuery(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
		})
		return err
	}
	return nil
}

func BindUri(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindUri(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
		})
		return err
	}
	return nil
}

func handleSuccess(c *gin.Context, data interface{}, statusCode int) {
	if data != nil {
		c.JSON(statusCode, data)
	} else {
		c.Status(statusCode)
	}
}

func handleError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))
	switch {
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrInvalidInput):
		log.Info("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Validation failed",
			"detail": err.Error(),
		})
	case errors.Is(err, apperrors.ErrPromotionInvalid):
		log.Info("Promotion invalid")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "Promotion invalid",
			"detail": err.Error(),
		})
	case errors.Is(err, apperrors.ErrNoActiveSession):
		log.Warn("No active session")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No active reservation session",
		})
	case errors.Is(err, apperrors.ErrSessionExpired):
		log.Warn("Session expired")
		c.JSON(http.StatusGone, gin.H{
			"error": "Reservation session expired, please select seats again",
		})
	case errors.Is(err, apperrors.ErrOperationInProgress):
		log.Warn("Operation in progress")
		c.JSON(http.StatusConflict, gin.H{
			"error": "Another operation is in progress",
		})
	case errors.Is(err, apperrors.ErrPreviewSuperseded):
		log.Info("Preview superseded")
		c.JSON(http.StatusConflict, gin.H{
			"error": "Preview superseded by a newer cart",
		})
	case errors.Is(err, apperrors.ErrBackendRejection):
		log.Warn("Backend rejected request")
		c.JSON(http.StatusConflict, gin.H{
			"error": "Request rejected by the cinema backend",
		})
	case errors.Is(err, apperrors.ErrNetwork):
		log.Error("Backend unreachable")
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Cinema backend unreachable",
		})
	case errors.Is(err, apperrors.ErrOrderNotFound):
		log.Warn("Order not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Order not found",
		})
	default:
		log.Error("Unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	}
}
