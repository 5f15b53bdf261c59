package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "PERCENTAGE"
	DiscountTypeFixedAmount DiscountType = "FIXED_AMOUNT"
)

// Promotion is supplied pre-validated by the promotions collaborator. Validity window
// and usage caps are informational here.
type Promotion struct {
	Code         string          `json:"code"`
	DiscountType DiscountType    `json:"discount_type"`
	Value        decimal.Decimal `json:"value"`
	ValidFrom    *time.Time      `json:"valid_from,omitempty"`
	ValidUntil   *time.Time      `json:"valid_until,omitempty"`
	MaxUsage     int             `json:"max_usage,omitempty"`
	UsageCount   int             `json:"usage_count,omitempty"`
	MinAmount    decimal.Decimal `json:"min_amount"`
}

type ValidatePromotionRequest struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

type PromotionValidation struct {
	IsValid   bool       `json:"is_valid"`
	Message   string     `json:"message,omitempty"`
	Promotion *Promotion `json:"promotion,omitempty"`
}
