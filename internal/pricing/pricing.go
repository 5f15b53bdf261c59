// Package pricing turns a subtotal and an optional promotion into a PriceBreakdown.
// Every function here is pure; amounts are rounded to 2 decimals at each step.
package pricing

import (
	"cinema-checkout/internal/model"

	"github.com/shopspring/decimal"
)

// TaxRate is the fixed levy applied to the post-discount subtotal.
var TaxRate = decimal.RequireFromString("0.18")

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero to 2 decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// CalculatePriceBreakdown applies, in order: clamp inputs to >= 0, subtract the
// discount (floored at 0), tax the remainder, add tax for the grand total.
func CalculatePriceBreakdown(subtotal, discountAmount decimal.Decimal) model.PriceBreakdown {
	subtotal = Round2(nonNegative(subtotal))
	discountAmount = Round2(nonNegative(discountAmount))

	afterDiscount := Round2(nonNegative(subtotal.Sub(discountAmount)))
	tax := Round2(afterDiscount.Mul(TaxRate))
	grandTotal := Round2(afterDiscount.Add(tax))

	return model.PriceBreakdown{
		Subtotal:              subtotal,
		DiscountAmount:        discountAmount,
		SubtotalAfterDiscount: afterDiscount,
		TaxAmount:             tax,
		GrandTotal:            grandTotal,
	}
}

// ResolveDiscount computes the discount a promotion grants on base.
// PERCENTAGE is not capped; FIXED_AMOUNT never exceeds base.
// The promotion is trusted as-is: no date window, usage cap or minimum amount checks.
func ResolveDiscount(promo *model.Promotion, base decimal.Decimal) decimal.Decimal {
	if promo == nil {
		return decimal.Zero
	}
	base = nonNegative(base)

	switch promo.DiscountType {
	case model.DiscountTypePercentage:
		return Round2(base.Mul(promo.Value).Div(hundred))
	case model.DiscountTypeFixedAmount:
		return Round2(decimal.Min(promo.Value, base))
	default:
		return decimal.Zero
	}
}

// Breakdown resolves the promotion against subtotal and returns the full breakdown.
func Breakdown(subtotal decimal.Decimal, promo *model.Promotion) model.PriceBreakdown {
	subtotal = Round2(nonNegative(subtotal))
	return CalculatePriceBreakdown(subtotal, ResolveDiscount(promo, subtotal))
}
