package seatmap_test

import (
	"context"
	"errors"
	"testing"

	"cinema-checkout/internal/model"
	"cinema-checkout/internal/seatmap"
	"cinema-checkout/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestClassify(t *testing.T) {
	mine := "session-mine"
	other := "session-other"

	tests := []struct {
		name      string
		seat      model.Seat
		selected  bool
		state     seatmap.SeatState
		clickable bool
	}{
		{"CancelledWinsOverSelection", model.Seat{Code: "A1", Status: model.SeatStatusCancelled}, true, seatmap.StateBlocked, false},
		{"SelectedAvailable", model.Seat{Code: "A1", Status: model.SeatStatusAvailable}, true, seatmap.StateMine, true},
		{"SelectedSoldStaysMine", model.Seat{Code: "A1", Status: model.SeatStatusOccupied}, true, seatmap.StateMine, true},
		{"Available", model.Seat{Code: "A1", Status: model.SeatStatusAvailable}, false, seatmap.StateSelectable, true},
		{"HeldByMySession", model.Seat{Code: "A1", Status: model.SeatStatusTemporarilyReserved, SessionID: strPtr(mine)}, false, seatmap.StateMyPendingHold, true},
		{"HeldByOtherSession", model.Seat{Code: "A1", Status: model.SeatStatusTemporarilyReserved, SessionID: strPtr(other)}, false, seatmap.StateHeldByOther, false},
		{"HeldWithoutSession", model.Seat{Code: "A1", Status: model.SeatStatusTemporarilyReserved}, false, seatmap.StateHeldByOther, false},
		{"Occupied", model.Seat{Code: "A1", Status: model.SeatStatusOccupied}, false, seatmap.StateSold, false},
		{"UnknownStatus", model.Seat{Code: "A1", Status: "BROKEN"}, false, seatmap.StateBlocked, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := seatmap.Classify(tt.seat, tt.selected, mine)
			assert.Equal(t, tt.state, view.State)
			assert.Equal(t, tt.clickable, view.Clickable)
		})
	}

	t.Run("NoSessionNeverMatchesHold", func(t *testing.T) {
		seat := model.Seat{Code: "A1", Status: model.SeatStatusTemporarilyReserved, SessionID: strPtr("")}
		view := seatmap.Classify(seat, false, "")
		assert.Equal(t, seatmap.StateHeldByOther, view.State)
	})
}

func TestMirror_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.AddShowtime("show-1", 2, 3)
		m := seatmap.NewMirror(backend)

		require.NoError(t, m.Load(ctx, "show-1"))

		assert.Equal(t, "show-1", m.ShowtimeID())
		assert.Len(t, m.Seats(), 6)
		assert.False(t, m.FetchedAt().IsZero())

		seat, ok := m.Seat("B3")
		require.True(t, ok)
		assert.Equal(t, "B", seat.Row)
		assert.Equal(t, 3, seat.Column)
	})

	t.Run("EmptyShowtime", func(t *testing.T) {
		m := seatmap.NewMirror(testutil.NewFakeBackend())
		err := m.Load(ctx, "")
		require.Error(t, err)
	})

	t.Run("ErrorKeepsPreviousSnapshot", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.AddShowtime("show-1", 1, 4)
		m := seatmap.NewMirror(backend)
		require.NoError(t, m.Load(ctx, "show-1"))

		backend.SeatMatrixErr = errors.New("boom")
		err := m.Refresh(ctx)

		require.Error(t, err)
		assert.Len(t, m.Seats(), 4)
		assert.Equal(t, "show-1", m.ShowtimeID())
	})

	t.Run("SwitchShowtime", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.AddShowtime("show-1", 1, 2)
		backend.AddShowtime("show-2", 3, 3)
		m := seatmap.NewMirror(backend)

		require.NoError(t, m.Load(ctx, "show-1"))
		require.NoError(t, m.Load(ctx, "show-2"))

		assert.Equal(t, "show-2", m.ShowtimeID())
		assert.Len(t, m.Seats(), 9)
	})
}

func TestMirror_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("NothingLoaded", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		m := seatmap.NewMirror(backend)

		require.NoError(t, m.Refresh(ctx))
		assert.Equal(t, 0, backend.SeatMatrixCalls())
	})

	t.Run("PicksUpBackendChanges", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.AddShowtime("show-1", 1, 3)
		m := seatmap.NewMirror(backend)
		require.NoError(t, m.Load(ctx, "show-1"))

		backend.SetSeatStatus("show-1", "A2", model.SeatStatusOccupied, nil)

		// stale until refreshed
		seat, _ := m.Seat("A2")
		assert.Equal(t, model.SeatStatusAvailable, seat.Status)

		require.NoError(t, m.Refresh(ctx))
		seat, _ = m.Seat("A2")
		assert.Equal(t, model.SeatStatusOccupied, seat.Status)
		assert.Equal(t, 2, backend.SeatMatrixCalls())
	})
}

func TestMirror_Views(t *testing.T) {
	ctx := context.Background()
	backend := testutil.NewFakeBackend()
	backend.AddShowtime("show-1", 1, 4)
	backend.SetSeatStatus("show-1", "A2", model.SeatStatusOccupied, nil)
	backend.SetSeatStatus("show-1", "A3", model.SeatStatusTemporarilyReserved, strPtr("mine"))
	backend.SetSeatStatus("show-1", "A4", model.SeatStatusTemporarilyReserved, strPtr("someone"))

	m := seatmap.NewMirror(backend)
	require.NoError(t, m.Load(ctx, "show-1"))

	sel := seatmap.NewSelection(4)
	view, ok := m.View("A1", sel, "mine")
	require.True(t, ok)
	_, err := sel.Toggle(view)
	require.NoError(t, err)

	states := make(map[string]seatmap.SeatState)
	for _, v := range m.Views(sel, "mine") {
		states[v.Code] = v.State
	}

	assert.Equal(t, map[string]seatmap.SeatState{
		"A1": seatmap.StateMine,
		"A2": seatmap.StateSold,
		"A3": seatmap.StateMyPendingHold,
		"A4": seatmap.StateHeldByOther,
	}, states)

	_, ok = m.View("Z9", sel, "mine")
	assert.False(t, ok)
}
