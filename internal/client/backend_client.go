// Package client talks to the cinema backend of record over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cinema-checkout/config"
	"cinema-checkout/internal/model"
	apperrors "cinema-checkout/pkg/app_errors"
	"cinema-checkout/pkg/logger"

	"go.uber.org/zap"
)

// CodeSessionExpired is the backend's error code for a lapsed hold.
const CodeSessionExpired = "SESSION_EXPIRED"

// maxResponseBytes caps how much of a backend body is read into memory.
const maxResponseBytes = 4 << 20

// ErrorResponse is the backend's error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// BackendClient implements every collaborator API the checkout consumes.
type BackendClient struct {
	client  *http.Client
	baseURL string
	token   string
	log     *zap.Logger
}

func NewBackendClient(cfg config.BackendConfig) *BackendClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BackendClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		log:     logger.WithComponent("client"),
	}
}

func (c *BackendClient) GetSeatMatrix(ctx context.Context, showtimeID string) ([]model.Seat, error) {
	var matrix model.SeatMatrix
	path := fmt.Sprintf("/showtimes/%s/seats", url.PathEscape(showtimeID))
	if err := c.do(ctx, http.MethodGet, path, nil, &matrix); err != nil {
		return nil, err
	}
	return matrix.Seats, nil
}

func (c *BackendClient) HoldSeats(ctx context.Context, req model.HoldRequest) (*model.HoldResponse, error) {
	var resp model.HoldResponse
	path := fmt.Sprintf("/showtimes/%s/reservations", url.PathEscape(req.ShowtimeID))
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("%w: hold response without session id", apperrors.ErrBackendRejection)
	}
	return &resp, nil
}

func (c *BackendClient) ConfirmReservation(ctx context.Context, sessionID, purchaseNumber string) error {
	path := fmt.Sprintf("/reservations/%s/confirm", url.PathEscape(sessionID))
	return c.do(ctx, http.MethodPost, path, model.ConfirmReservationRequest{PurchaseNumber: purchaseNumber}, nil)
}

// ReleaseReservation treats an unknown session as already released.
func (c *BackendClient) ReleaseReservation(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/reservations/%s", url.PathEscape(sessionID))
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	var se *StatusError
	if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusGone) {
		return nil
	}
	return err
}

func (c *BackendClient) GetSessionSeats(ctx context.Context, sessionID string) (*model.SessionSeatsResponse, error) {
	var resp model.SessionSeatsResponse
	path := fmt.Sprintf("/reservations/%s/seats", url.PathEscape(sessionID))
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, err)
	}
	if err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		resp.SessionID = sessionID
	}
	return &resp, nil
}

func (c *BackendClient) ValidatePromotion(ctx context.Context, req model.ValidatePromotionRequest) (*model.PromotionValidation, error) {
	var resp model.PromotionValidation
	if err := c.do(ctx, http.MethodPost, "/promotions/validate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BackendClient) PreviewOrder(ctx context.Context, payload model.OrderPayload) (*model.OrderConfirmation, error) {
	var resp model.OrderConfirmation
	if err := c.do(ctx, http.MethodPost, "/orders/preview", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BackendClient) ConfirmOrder(ctx context.Context, payload model.OrderPayload) (*model.OrderConfirmation, error) {
	var resp model.OrderConfirmation
	if err := c.do(ctx, http.MethodPost, "/orders/confirm", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatusError is a non-2xx answer. It unwraps to the matching error class.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
	class      error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return e.class }

func newStatusError(status int, body []byte) *StatusError {
	var er ErrorResponse
	_ = json.Unmarshal(body, &er)

	se := &StatusError{StatusCode: status, Code: er.Code, Message: er.Error}
	switch {
	case status == http.StatusGone || er.Code == CodeSessionExpired:
		se.class = apperrors.ErrSessionExpired
	case status >= http.StatusInternalServerError:
		se.class = apperrors.ErrNetwork
	default:
		se.class = apperrors.ErrBackendRejection
	}
	return se
}

func (c *BackendClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("Backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s %s: %w", apperrors.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", apperrors.ErrNetwork, err)
	}
	oversized := len(raw) > maxResponseBytes
	if oversized {
		raw = raw[:maxResponseBytes]
		c.log.Warn("Backend response truncated",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("limit", maxResponseBytes),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := newStatusError(resp.StatusCode, raw)
		if resp.StatusCode >= http.StatusInternalServerError {
			c.log.Warn("Backend server error",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
			)
		}
		return se
	}

	if oversized {
		return fmt.Errorf("%w: %s %s: response larger than %d bytes", apperrors.ErrBackendRejection, method, path, maxResponseBytes)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", apperrors.ErrBackendRejection, err)
	}
	return nil
}
