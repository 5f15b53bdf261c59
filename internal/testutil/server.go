package testutil

import (
	"errors"
	"net/http"
	"sync"

	"cinema-checkout/internal/client"
	"cinema-checkout/internal/model"
	apperrors "cinema-checkout/pkg/app_errors"

	"github.com/gin-gonic/gin"
)

// BackendServer exposes a FakeBackend over the backend of record's HTTP API.
type BackendServer struct {
	Backend *FakeBackend
	Engine  *gin.Engine

	mu         sync.Mutex
	lastAuthHd string
}

func NewBackendServer(backend *FakeBackend) *BackendServer {
	gin.SetMode(gin.TestMode)
	s := &BackendServer{Backend: backend, Engine: gin.New()}

	s.Engine.Use(func(c *gin.Context) {
		s.mu.Lock()
		s.lastAuthHd = c.GetHeader("Authorization")
		s.mu.Unlock()
		c.Next()
	})

	s.Engine.GET("/showtimes/:showtimeId/seats", s.getSeats)
	s.Engine.POST("/showtimes/:showtimeId/reservations", s.hold)
	s.Engine.POST("/reservations/:sessionId/confirm", s.confirm)
	s.Engine.DELETE("/reservations/:sessionId", s.release)
	s.Engine.GET("/reservations/:sessionId/seats", s.sessionSeats)
	s.Engine.POST("/promotions/validate", s.validatePromotion)
	s.Engine.POST("/orders/preview", s.previewOrder)
	s.Engine.POST("/orders/confirm", s.confirmOrder)
	return s
}

// LastAuthorization returns the Authorization header of the latest request.
func (s *BackendServer) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuthHd
}

func (s *BackendServer) getSeats(c *gin.Context) {
	showtimeID := c.Param("showtimeId")
	seats, err := s.Backend.GetSeatMatrix(c.Request.Context(), showtimeID)
	if err != nil {
		if errors.Is(err, apperrors.ErrBackendRejection) {
			c.JSON(http.StatusNotFound, client.ErrorResponse{Error: err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SeatMatrix{ShowtimeID: showtimeID, Seats: seats})
}

func (s *BackendServer) hold(c *gin.Context) {
	var req model.HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, client.ErrorResponse{Error: err.Error()})
		return
	}
	req.ShowtimeID = c.Param("showtimeId")

	resp, err := s.Backend.HoldSeats(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *BackendServer) confirm(c *gin.Context) {
	var req model.ConfirmReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, client.ErrorResponse{Error: err.Error()})
		return
	}
	if err := s.Backend.ConfirmReservation(c.Request.Context(), c.Param("sessionId"), req.PurchaseNumber); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *BackendServer) release(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if !s.Backend.HasSession(sessionID) {
		c.JSON(http.StatusNotFound, client.ErrorResponse{Error: "session not found"})
		return
	}
	if err := s.Backend.ReleaseReservation(c.Request.Context(), sessionID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *BackendServer) sessionSeats(c *gin.Context) {
	resp, err := s.Backend.GetSessionSeats(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionExpired) {
			c.JSON(http.StatusNotFound, client.ErrorResponse{Error: "session not found"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BackendServer) validatePromotion(c *gin.Context) {
	var req model.ValidatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, client.ErrorResponse{Error: err.Error()})
		return
	}
	resp, err := s.Backend.ValidatePromotion(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BackendServer) previewOrder(c *gin.Context) {
	var payload model.OrderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, client.ErrorResponse{Error: err.Error()})
		return
	}
	resp, err := s.Backend.PreviewOrder(c.Request.Context(), payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BackendServer) confirmOrder(c *gin.Context) {
	var payload model.OrderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, client.ErrorResponse{Error: err.Error()})
		return
	}
	resp, err := s.Backend.ConfirmOrder(c.Request.Context(), payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrSessionExpired):
		c.JSON(http.StatusGone, client.ErrorResponse{Error: err.Error(), Code: client.CodeSessionExpired})
	case errors.Is(err, apperrors.ErrBackendRejection):
		c.JSON(http.StatusConflict, client.ErrorResponse{Error: err.Error()})
	case errors.Is(err, apperrors.ErrNetwork):
		c.JSON(http.StatusServiceUnavailable, client.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, client.ErrorResponse{Error: err.Error()})
	}
}
