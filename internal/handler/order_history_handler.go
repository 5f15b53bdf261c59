package handler

import (
	"net/http"

	"cinema-checkout/internal/model"
	"cinema-checkout/internal/service"

	"github.com/gin-gonic/gin"
)

type OrderHistoryHandler struct {
	service service.OrderHistoryService
}

func NewOrderHistoryHandler(service service.OrderHistoryService) *OrderHistoryHandler {
	return &OrderHistoryHandler{service: service}
}

func (h *OrderHistoryHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group("/api/v1")
	{
		router.GET("orders/history", h.GetHistory)
	}
}

func (h *OrderHistoryHandler) GetHistory(c *gin.Context) {
	var query model.OrderHistoryQuery
	if err := BindQuery(c, &query); err != nil {
		return
	}

	entries, err := h.service.History(c, query.UserID)
	if err != nil {
		handleError(c, err, "GetHistory")
		return
	}
	if entries == nil {
		entries = []*model.OrderHistoryEntry{}
	}
	handleSuccess(c, entries, http.StatusOK)
}
