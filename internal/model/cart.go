package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketGroup binds a seat set and price to one showtime. TotalPrice, when set,
// is authoritative over UnitPrice x len(SeatCodes).
type TicketGroup struct {
	ShowtimeID string           `json:"showtime_id"`
	SeatCodes  []string         `json:"seat_codes"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	TotalPrice *decimal.Decimal `json:"total_price,omitempty"`
}

// EffectivePrice returns TotalPrice when present, otherwise UnitPrice x seat count.
func (g *TicketGroup) EffectivePrice() decimal.Decimal {
	if g.TotalPrice != nil {
		return *g.TotalPrice
	}
	return g.UnitPrice.Mul(decimal.NewFromInt(int64(len(g.SeatCodes))))
}

// ConcessionLine quantity is always >= 1; lines with no quantity are deleted.
type ConcessionLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (l *ConcessionLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ConcessionProduct 販售品項
type ConcessionProduct struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CartSnapshot is an immutable copy of the cart taken at a point in time.
type CartSnapshot struct {
	TicketGroups []TicketGroup    `json:"ticket_groups"`
	Concessions  []ConcessionLine `json:"concessions"`
	Promotion    *Promotion       `json:"promotion,omitempty"`
	Version      uint64           `json:"version"`
	CapturedAt   time.Time        `json:"captured_at"`
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.TicketGroups) == 0 && len(s.Concessions) == 0
}
