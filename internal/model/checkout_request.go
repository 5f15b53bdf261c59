package model

import "github.com/shopspring/decimal"

// Request bodies of the checkout HTTP surface.

type ToggleSeatRequest struct {
	SeatCode string `json:"seat_code" binding:"required"`
}

type SelectionLimitRequest struct {
	Max *int `json:"max" binding:"required,min=0"`
}

// HoldSeatsRequest holds the current selection. TotalPrice, when present, is authoritative
// over UnitPrice x seats and only applies if every seat is reserved.
type HoldSeatsRequest struct {
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	TotalPrice *decimal.Decimal `json:"total_price,omitempty"`
	UserID     *string          `json:"user_id,omitempty"`
}

type SetTicketsRequest struct {
	ShowtimeID string           `json:"showtime_id" binding:"required"`
	SeatCodes  []string         `json:"seat_codes"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	TotalPrice *decimal.Decimal `json:"total_price,omitempty"`
}

type AddConcessionRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" binding:"omitempty,min=1"` // 預設 1
}

// UpdateConcessionRequest sets the exact quantity; 0 or less removes the line.
type UpdateConcessionRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type ApplyPromotionRequest struct {
	Code string `json:"code" binding:"required"`
}

type ConfirmOrderRequest struct {
	PurchaseNumber string  `json:"purchase_number"`
	UserID         *string `json:"user_id,omitempty"`
}

type OrderHistoryQuery struct {
	UserID string `form:"user_id"`
}
