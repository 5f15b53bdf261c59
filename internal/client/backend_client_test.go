package client_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cinema-checkout/config"
	"cinema-checkout/internal/client"
	"cinema-checkout/internal/model"
	"cinema-checkout/internal/testutil"
	apperrors "cinema-checkout/pkg/app_errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupClient(t *testing.T) (*client.BackendClient, *testutil.BackendServer) {
	t.Helper()
	backend := testutil.NewFakeBackend()
	backend.AddShowtime("show-1", 2, 4)
	srv := testutil.NewBackendServer(backend)
	ts := httptest.NewServer(srv.Engine)
	t.Cleanup(ts.Close)

	c := client.NewBackendClient(config.BackendConfig{
		BaseURL: ts.URL + "/",
		Token:   "secret",
		Timeout: 2 * time.Second,
	})
	return c, srv
}

func TestBackendClient_SeatMatrix(t *testing.T) {
	ctx := context.Background()
	c, srv := setupClient(t)

	seats, err := c.GetSeatMatrix(ctx, "show-1")

	require.NoError(t, err)
	assert.Len(t, seats, 8)
	assert.Equal(t, "A1", seats[0].Code)
	assert.Equal(t, model.SeatStatusAvailable, seats[0].Status)
	assert.Equal(t, "Bearer secret", srv.LastAuthorization())

	_, err = c.GetSeatMatrix(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrBackendRejection)
	var se *client.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestBackendClient_ReservationLifecycle(t *testing.T) {
	ctx := context.Background()
	c, srv := setupClient(t)
	srv.Backend.RejectOnHold("A3")

	hold, err := c.HoldSeats(ctx, model.HoldRequest{ShowtimeID: "show-1", SeatCodes: []string{"A1", "A2", "A3"}})
	require.NoError(t, err)
	assert.NotEmpty(t, hold.SessionID)
	assert.Equal(t, []string{"A3"}, hold.FailedCodes)
	assert.Equal(t, int64(300000), hold.TTLMillis)

	seats, err := c.GetSessionSeats(ctx, hold.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "show-1", seats.ShowtimeID)
	assert.Equal(t, []string{"A1", "A2"}, seats.SeatCodes)
	require.NotNil(t, seats.ExpiresAt)

	require.NoError(t, c.ConfirmReservation(ctx, hold.SessionID, "PN-1"))
	assert.Equal(t, model.SeatStatusOccupied, srv.Backend.SeatStatus("show-1", "A1"))

	// the session is gone after confirm
	_, err = c.GetSessionSeats(ctx, hold.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
}

func TestBackendClient_ConfirmExpired(t *testing.T) {
	ctx := context.Background()
	c, srv := setupClient(t)

	hold, err := c.HoldSeats(ctx, model.HoldRequest{ShowtimeID: "show-1", SeatCodes: []string{"B1"}})
	require.NoError(t, err)
	srv.Backend.ExpireSession(hold.SessionID)

	err = c.ConfirmReservation(ctx, hold.SessionID, "PN-2")

	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
	var se *client.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, client.CodeSessionExpired, se.Code)
}

func TestBackendClient_ReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	c, srv := setupClient(t)

	hold, err := c.HoldSeats(ctx, model.HoldRequest{ShowtimeID: "show-1", SeatCodes: []string{"A4"}})
	require.NoError(t, err)

	require.NoError(t, c.ReleaseReservation(ctx, hold.SessionID))
	assert.Equal(t, model.SeatStatusAvailable, srv.Backend.SeatStatus("show-1", "A4"))

	// 404 from the backend counts as released
	assert.NoError(t, c.ReleaseReservation(ctx, hold.SessionID))
}

func TestBackendClient_ErrorClasses(t *testing.T) {
	ctx := context.Background()

	t.Run("ServerError", func(t *testing.T) {
		c, srv := setupClient(t)
		srv.Backend.HoldErr = fmt.Errorf("%w: db down", apperrors.ErrNetwork)

		_, err := c.HoldSeats(ctx, model.HoldRequest{ShowtimeID: "show-1", SeatCodes: []string{"A1"}})

		assert.ErrorIs(t, err, apperrors.ErrNetwork)
	})

	t.Run("Rejection", func(t *testing.T) {
		c, srv := setupClient(t)
		srv.Backend.ConfirmOrderErr = fmt.Errorf("%w: card declined", apperrors.ErrBackendRejection)

		_, err := c.ConfirmOrder(ctx, model.OrderPayload{PurchaseNumber: "PN-3"})

		assert.ErrorIs(t, err, apperrors.ErrBackendRejection)
		assert.Contains(t, err.Error(), "card declined")
	})

	t.Run("Unreachable", func(t *testing.T) {
		c := client.NewBackendClient(config.BackendConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})

		_, err := c.GetSeatMatrix(ctx, "show-1")

		assert.ErrorIs(t, err, apperrors.ErrNetwork)
	})

	t.Run("OversizedBody", func(t *testing.T) {
		c := rawClient(t, http.StatusOK, "["+strings.Repeat(" ", 5<<20)+"]")

		_, err := c.GetSeatMatrix(ctx, "show-1")

		assert.ErrorIs(t, err, apperrors.ErrBackendRejection)
		assert.Contains(t, err.Error(), "response larger than")
	})

	t.Run("OversizedErrorBodyKeepsStatus", func(t *testing.T) {
		c := rawClient(t, http.StatusBadGateway, strings.Repeat("x", 5<<20))

		_, err := c.GetSeatMatrix(ctx, "show-1")

		var se *client.StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	})
}

// rawClient points a client at a server that answers every request with body.
func rawClient(t *testing.T, status int, body string) *client.BackendClient {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return client.NewBackendClient(config.BackendConfig{BaseURL: ts.URL, Timeout: 5 * time.Second})
}

func TestBackendClient_Promotions(t *testing.T) {
	ctx := context.Background()
	c, srv := setupClient(t)
	srv.Backend.AddPromotion(model.Promotion{
		Code:         "SAVE20",
		DiscountType: model.DiscountTypeFixedAmount,
		Value:        decimal.RequireFromString("20"),
		MinAmount:    decimal.RequireFromString("50"),
	})

	res, err := c.ValidatePromotion(ctx, model.ValidatePromotionRequest{Code: "SAVE20", Amount: decimal.RequireFromString("100")})
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	require.NotNil(t, res.Promotion)
	assert.True(t, res.Promotion.Value.Equal(decimal.RequireFromString("20")))

	res, err = c.ValidatePromotion(ctx, model.ValidatePromotionRequest{Code: "SAVE20", Amount: decimal.RequireFromString("10")})
	require.NoError(t, err)
	assert.False(t, res.IsValid)

	res, err = c.ValidatePromotion(ctx, model.ValidatePromotionRequest{Code: "NOPE", Amount: decimal.RequireFromString("100")})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
}

func TestBackendClient_Orders(t *testing.T) {
	ctx := context.Background()
	c, _ := setupClient(t)
	payload := model.OrderPayload{
		PurchaseNumber: "PN-9",
		TicketGroups: []model.TicketGroup{
			{ShowtimeID: "show-1", SeatCodes: []string{"B2", "A1"}, UnitPrice: decimal.RequireFromString("10")},
		},
		Totals: model.PriceBreakdown{GrandTotal: decimal.RequireFromString("23.60")},
	}

	preview, err := c.PreviewOrder(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, preview.Status)

	order, err := c.ConfirmOrder(ctx, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, order.OrderID)
	assert.Equal(t, "PN-9", order.PurchaseNumber)
	assert.Equal(t, model.OrderStatusConfirmed, order.Status)
	assert.Equal(t, []string{"A1", "B2"}, order.SeatCodes)
	assert.Equal(t, "23.6", order.Totals.GrandTotal.String())
}
