package model_test

import (
	"testing"

	"cinema-checkout/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func snapshotOf(groups ...model.TicketGroup) model.CartSnapshot {
	return model.CartSnapshot{TicketGroups: groups}
}

func TestCartSnapshot_IsEmpty(t *testing.T) {
	assert.True(t, model.CartSnapshot{}.IsEmpty())
	assert.True(t, snapshotOf().IsEmpty())
	assert.False(t, snapshotOf(model.TicketGroup{ShowtimeID: "show-1", SeatCodes: []string{"A1"}}).IsEmpty())
	assert.False(t, model.CartSnapshot{
		Concessions: []model.ConcessionLine{{ProductID: "popcorn", UnitPrice: decimal.NewFromInt(5), Quantity: 1}},
	}.IsEmpty())
}

func TestTicketGroup_EffectivePrice(t *testing.T) {
	total := decimal.RequireFromString("18")
	group := model.TicketGroup{SeatCodes: []string{"A1", "A2"}, UnitPrice: decimal.RequireFromString("10")}

	assert.Equal(t, "20", group.EffectivePrice().String())

	group.TotalPrice = &total
	assert.Equal(t, "18", group.EffectivePrice().String())
}
