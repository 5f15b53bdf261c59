package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 訂單狀態類型
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsValid 驗證狀態是否有效
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCancelled:
		return true
	}
	return false
}

// PriceBreakdown is derived from a cart snapshot on every read and never stored as mutable state.
type PriceBreakdown struct {
	Subtotal              decimal.Decimal `json:"subtotal"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	SubtotalAfterDiscount decimal.Decimal `json:"subtotal_after_discount"`
	TaxAmount             decimal.Decimal `json:"tax_amount"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
}

// OrderPayload is what gets sent to previewOrder/confirmOrder.
type OrderPayload struct {
	SessionID      string           `json:"session_id,omitempty"`
	PurchaseNumber string           `json:"purchase_number,omitempty"`
	UserID         *string          `json:"user_id,omitempty"`
	TicketGroups   []TicketGroup    `json:"ticket_groups"`
	Concessions    []ConcessionLine `json:"concessions"`
	PromotionCode  string           `json:"promotion_code,omitempty"`
	Totals         PriceBreakdown   `json:"totals"`
}

// OrderConfirmation is the backend's authoritative view of an order.
type OrderConfirmation struct {
	OrderID        string         `json:"order_id"`
	PurchaseNumber string         `json:"purchase_number"`
	UserID         *string        `json:"user_id,omitempty"`
	Status         OrderStatus    `json:"status"`
	Totals         PriceBreakdown `json:"totals"`
	SeatCodes      []string       `json:"seat_codes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	// Speculative marks a locally-assumed value that the backend has not acknowledged yet.
	Speculative bool `json:"speculative,omitempty"`
}

// OrderConfirmedEvent is published once the backend accepts an order.
type OrderConfirmedEvent struct {
	OrderID        string          `json:"order_id"`
	PurchaseNumber string          `json:"purchase_number"`
	UserID         string          `json:"user_id,omitempty"`
	ShowtimeIDs    []string        `json:"showtime_ids"`
	SeatCodes      []string        `json:"seat_codes"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	ConfirmedAt    time.Time       `json:"confirmed_at"`
}

// OrderHistoryEntry is one row of the local order-history read model.
type OrderHistoryEntry struct {
	ID             int             `json:"id" db:"id"`
	OrderID        string          `json:"order_id" db:"order_id"`
	PurchaseNumber string          `json:"purchase_number" db:"purchase_number"`
	UserID         string          `json:"user_id" db:"user_id"`
	ShowtimeIDs    []string        `json:"showtime_ids" db:"showtime_ids"`
	SeatCodes      []string        `json:"seat_codes" db:"seat_codes"`
	GrandTotal     decimal.Decimal `json:"grand_total" db:"grand_total"`
	ConfirmedAt    time.Time       `json:"confirmed_at" db:"confirmed_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
