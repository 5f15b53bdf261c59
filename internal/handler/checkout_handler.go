package handler

import (
	"net/http"
	"strings"

	"cinema-checkout/internal/model"
	"cinema-checkout/internal/order"
	"cinema-checkout/internal/service"

	"github.com/gin-gonic/gin"
)

const checkoutKey = "checkout"

type CheckoutHandler struct {
	registry service.CheckoutRegistry
}

func NewCheckoutHandler(registry service.CheckoutRegistry) *CheckoutHandler {
	return &CheckoutHandler{registry: registry}
}

// CartResponse is the cart together with its freshly derived totals.
type CartResponse struct {
	Cart   model.CartSnapshot   `json:"cart"`
	Totals model.PriceBreakdown `json:"totals"`
}

type showtimeUri struct {
	ShowtimeID string `uri:"showtimeId" binding:"required"`
}

type seatUri struct {
	ShowtimeID string `uri:"showtimeId" binding:"required"`
	SeatCode   string `uri:"seatCode" binding:"required"`
}

type productUri struct {
	ProductID string `uri:"productId" binding:"required"`
}

type purchaseUri struct {
	PurchaseNumber string `uri:"purchaseNumber" binding:"required"`
}

func (h *CheckoutHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group("/api/v1", h.resolveCheckout)
	{
		router.GET("showtimes/:showtimeId/seats", h.GetSeats)

		router.POST("checkout/selection/toggle", h.ToggleSeat)
		router.PUT("checkout/selection/limit", h.SetSelectionLimit)

		router.POST("checkout/hold", h.Hold)
		router.GET("checkout/hold", h.GetHold)
		router.DELETE("checkout/hold", h.Release)

		router.GET("checkout/cart", h.GetCart)
		router.PUT("checkout/tickets", h.SetTickets)
		router.DELETE("checkout/tickets/:showtimeId/:seatCode", h.RemoveSeat)
		router.POST("checkout/concessions", h.AddConcession)
		router.PATCH("checkout/concessions/:productId", h.UpdateConcession)
		router.POST("checkout/promotion", h.ApplyPromotion)
		router.DELETE("checkout/promotion", h.RemovePromotion)

		router.GET("checkout/preview", h.Preview)
		router.POST("checkout/preview/remote", h.RemotePreview)
		router.POST("checkout/confirm", h.Confirm)
		router.GET("checkout/orders/:purchaseNumber", h.GetOrder)
	}
}

// resolveCheckout loads the caller's checkout from the X-Client-ID header.
func (h *CheckoutHandler) resolveCheckout(c *gin.Context) {
	clientID := strings.TrimSpace(c.GetHeader(ClientIDHeader))
	if clientID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "Missing " + ClientIDHeader + " header",
		})
		return
	}
	checkout, err := h.registry.Get(c, clientID)
	if err != nil {
		handleError(c, err, "ResolveCheckout")
		c.Abort()
		return
	}
	c.Set(checkoutKey, checkout)
	c.Next()
}

func current(c *gin.Context) *service.Checkout {
	return c.MustGet(checkoutKey).(*service.Checkout)
}

func cartResponse(checkout *service.Checkout) CartResponse {
	return CartResponse{Cart: checkout.Cart(), Totals: checkout.Preview()}
}

func (h *CheckoutHandler) GetSeats(c *gin.Context) {
	var uri showtimeUri
	if err := BindUri(c, &uri); err != nil {
		return
	}
	checkout := current(c)

	views, err := checkout.LoadShowtime(c, uri.ShowtimeID)
	if err != nil {
		handleError(c, err, "GetSeats")
		return
	}

	handleSuccess(c, gin.H{
		"showtime_id": uri.ShowtimeID,
		"seats":       views,
		"selection":   checkout.Selection(),
	}, http.StatusOK)
}

func (h *CheckoutHandler) ToggleSeat(c *gin.Context) {
	var req model.ToggleSeatRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	result, selection, err := current(c).ToggleSeat(req.SeatCode)
	if err != nil {
		handleError(c, err, "ToggleSeat")
		return
	}

	handleSuccess(c, gin.H{
		"result":    result,
		"selection": selection,
	}, http.StatusOK)
}

func (h *CheckoutHandler) SetSelectionLimit(c *gin.Context) {
	var req model.SelectionLimitRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	selection, err := current(c).SetSelectionLimit(*req.Max)
	if err != nil {
		handleError(c, err, "SetSelectionLimit")
		return
	}

	handleSuccess(c, gin.H{
		"max":       *req.Max,
		"selection": selection,
	}, http.StatusOK)
}

func (h *CheckoutHandler) Hold(c *gin.Context) {
	var req model.HoldSeatsRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	outcome, err := current(c).Hold(c, service.HoldInput{
		UnitPrice:  req.UnitPrice,
		TotalPrice: req.TotalPrice,
		UserID:     req.UserID,
	})
	if err != nil {
		handleError(c, err, "Hold")
		return
	}

	handleSuccess(c, outcome, http.StatusCreated)
}

func (h *CheckoutHandler) GetHold(c *gin.Context) {
	status := current(c).HoldStatus()
	if status.Session == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No active reservation session",
		})
		return
	}
	handleSuccess(c, status, http.StatusOK)
}

func (h *CheckoutHandler) Release(c *gin.Context) {
	if err := current(c).Release(c); err != nil {
		handleError(c, err, "Release")
		return
	}
	handleSuccess(c, nil, http.StatusNoContent)
}

func (h *CheckoutHandler) GetCart(c *gin.Context) {
	handleSuccess(c, cartResponse(current(c)), http.StatusOK)
}

func (h *CheckoutHandler) SetTickets(c *gin.Context) {
	var req model.SetTicketsRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	checkout := current(c)

	if _, err := checkout.SetTickets(c, req.ShowtimeID, req.SeatCodes, req.UnitPrice, req.TotalPrice); err != nil {
		handleError(c, err, "SetTickets")
		return
	}

	handleSuccess(c, cartResponse(checkout), http.StatusOK)
}

func (h *CheckoutHandler) RemoveSeat(c *gin.Context) {
	var uri seatUri
	if err := BindUri(c, &uri); err != nil {
		return
	}
	checkout := current(c)

	if _, err := checkout.RemoveSeat(c, uri.ShowtimeID, uri.SeatCode); err != nil {
		handleError(c, err, "RemoveSeat")
		return
	}

	handleSuccess(c, cartResponse(checkout), http.StatusOK)
}

func (h *CheckoutHandler) AddConcession(c *gin.Context) {
	var req model.AddConcessionRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	checkout := current(c)

	product := model.ConcessionProduct{
		ProductID: req.ProductID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
	}
	if _, err := checkout.AddConcession(c, product, req.Quantity); err != nil {
		handleError(c, err, "AddConcession")
		return
	}

	handleSuccess(c, cartResponse(checkout), http.StatusOK)
}

func (h *CheckoutHandler) UpdateConcession(c *gin.Context) {
	var uri productUri
	if err := BindUri(c, &uri); err != nil {
		return
	}
	var req model.UpdateConcessionRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	checkout := current(c)

	if _, err := checkout.UpdateConcession(c, uri.ProductID, *req.Quantity); err != nil {
		handleError(c, err, "UpdateConcession")
		return
	}

	handleSuccess(c, cartResponse(checkout), http.StatusOK)
}

func (h *CheckoutHandler) ApplyPromotion(c *gin.Context) {
	var req model.ApplyPromotionRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	checkout := current(c)

	promotion, err := checkout.ApplyPromotion(c, req.Code)
	if err != nil {
		handleError(c, err, "ApplyPromotion")
		return
	}

	handleSuccess(c, gin.H{
		"promotion": promotion,
		"cart":      cartResponse(checkout),
	}, http.StatusOK)
}

func (h *CheckoutHandler) RemovePromotion(c *gin.Context) {
	checkout := current(c)
	checkout.RemovePromotion(c)
	handleSuccess(c, cartResponse(checkout), http.StatusOK)
}

func (h *CheckoutHandler) Preview(c *gin.Context) {
	handleSuccess(c, current(c).Preview(), http.StatusOK)
}

func (h *CheckoutHandler) RemotePreview(c *gin.Context) {
	preview, err := current(c).RemotePreview(c)
	if err != nil {
		handleError(c, err, "RemotePreview")
		return
	}
	handleSuccess(c, preview, http.StatusOK)
}

func (h *CheckoutHandler) Confirm(c *gin.Context) {
	var req model.ConfirmOrderRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	confirmed, err := current(c).Confirm(c, order.ConfirmRequest{
		PurchaseNumber: req.PurchaseNumber,
		UserID:         req.UserID,
	})
	if err != nil {
		handleError(c, err, "Confirm")
		return
	}

	handleSuccess(c, confirmed, http.StatusCreated)
}

func (h *CheckoutHandler) GetOrder(c *gin.Context) {
	var uri purchaseUri
	if err := BindUri(c, &uri); err != nil {
		return
	}

	cached, err := current(c).Order(c, uri.PurchaseNumber)
	if err != nil {
		handleError(c, err, "GetOrder")
		return
	}
	handleSuccess(c, cached, http.StatusOK)
}
