package seatmap_test

import (
	"testing"

	"cinema-checkout/internal/model"
	"cinema-checkout/internal/seatmap"
	apperrors "cinema-checkout/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectable(code string) seatmap.SeatView {
	return seatmap.Classify(model.Seat{Code: code, Status: model.SeatStatusAvailable}, false, "")
}

func TestSelection_Toggle(t *testing.T) {
	t.Run("AddAndRemove", func(t *testing.T) {
		sel := seatmap.NewSelection(2)

		res, err := sel.Toggle(selectable("A1"))
		require.NoError(t, err)
		assert.Equal(t, seatmap.ToggleAdded, res)
		assert.True(t, sel.Contains("A1"))

		res, err = sel.Toggle(selectable("A1"))
		require.NoError(t, err)
		assert.Equal(t, seatmap.ToggleRemoved, res)
		assert.Equal(t, 0, sel.Len())
	})

	t.Run("LimitReachedLeavesSetUnchanged", func(t *testing.T) {
		sel := seatmap.NewSelection(4)
		for _, code := range []string{"A1", "A2", "A3", "A4"} {
			res, err := sel.Toggle(selectable(code))
			require.NoError(t, err)
			require.Equal(t, seatmap.ToggleAdded, res)
		}

		res, err := sel.Toggle(selectable("A5"))

		require.NoError(t, err)
		assert.Equal(t, seatmap.ToggleLimitReached, res)
		assert.Equal(t, []string{"A1", "A2", "A3", "A4"}, sel.Codes())
	})

	t.Run("RemoveAllowedAtLimit", func(t *testing.T) {
		sel := seatmap.NewSelection(1)
		_, _ = sel.Toggle(selectable("A1"))

		res, err := sel.Toggle(selectable("A1"))
		require.NoError(t, err)
		assert.Equal(t, seatmap.ToggleRemoved, res)
	})

	t.Run("NonClickableSeat", func(t *testing.T) {
		sel := seatmap.NewSelection(4)
		sold := seatmap.Classify(model.Seat{Code: "B2", Status: model.SeatStatusOccupied}, false, "")

		_, err := sel.Toggle(sold)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.ErrorIs(t, err, apperrors.ErrSeatNotAvailable)
		assert.Equal(t, 0, sel.Len())
	})

	t.Run("ZeroLimit", func(t *testing.T) {
		sel := seatmap.NewSelection(0)
		res, err := sel.Toggle(selectable("A1"))
		require.NoError(t, err)
		assert.Equal(t, seatmap.ToggleLimitReached, res)
	})
}

func TestSelection_SetMax(t *testing.T) {
	sel := seatmap.NewSelection(3)
	for _, code := range []string{"A1", "A2", "A3"} {
		_, _ = sel.Toggle(selectable(code))
	}

	sel.SetMax(2)

	assert.Equal(t, 2, sel.Max())
	assert.Equal(t, []string{"A1", "A2"}, sel.Codes())

	sel.SetMax(-1)
	assert.Equal(t, 0, sel.Max())
	assert.Equal(t, 0, sel.Len())
}

func TestSelection_Remove(t *testing.T) {
	sel := seatmap.NewSelection(4)
	for _, code := range []string{"A1", "A2", "A3"} {
		_, _ = sel.Toggle(selectable(code))
	}

	sel.Remove("A2", "Z9")
	assert.Equal(t, []string{"A1", "A3"}, sel.Codes())

	sel.Remove()
	assert.Equal(t, 2, sel.Len())

	sel.Clear()
	assert.Empty(t, sel.Codes())
}
