package seatmap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cinema-checkout/internal/model"
	apperrors "cinema-checkout/pkg/app_errors"
)

// SeatSource fetches the authoritative seat matrix of a showtime.
type SeatSource interface {
	GetSeatMatrix(ctx context.Context, showtimeID string) ([]model.Seat, error)
}

// SeatState is the visual/interactive classification of a seat.
type SeatState string

const (
	StateBlocked       SeatState = "blocked"
	StateMine          SeatState = "mine"
	StateSelectable    SeatState = "selectable"
	StateMyPendingHold SeatState = "my_pending_hold"
	StateHeldByOther   SeatState = "held_by_other"
	StateSold          SeatState = "sold"
)

type SeatView struct {
	model.Seat
	State     SeatState `json:"state"`
	Clickable bool      `json:"clickable"`
}

// Classify applies the rules in priority order, first match wins:
// cancelled, selected by me, available, held by my session, held by another, occupied.
func Classify(seat model.Seat, selected bool, mySessionID string) SeatView {
	view := SeatView{Seat: seat}
	switch {
	case seat.Status == model.SeatStatusCancelled:
		view.State, view.Clickable = StateBlocked, false
	case selected:
		view.State, view.Clickable = StateMine, true
	case seat.Status == model.SeatStatusAvailable:
		view.State, view.Clickable = StateSelectable, true
	case seat.IsHeldBy(mySessionID):
		view.State, view.Clickable = StateMyPendingHold, true
	case seat.Status == model.SeatStatusTemporarilyReserved:
		view.State, view.Clickable = StateHeldByOther, false
	case seat.Status == model.SeatStatusOccupied:
		view.State, view.Clickable = StateSold, false
	default:
		view.State, view.Clickable = StateBlocked, false
	}
	return view
}

// Mirror holds the latest seat snapshot for one showtime. The snapshot is only
// replaced by an explicit Load or Refresh; staleness between refreshes is expected.
type Mirror struct {
	mu         sync.RWMutex
	source     SeatSource
	showtimeID string
	seats      []model.Seat
	index      map[string]int
	fetchedAt  time.Time
	generation uint64
}

func NewMirror(source SeatSource) *Mirror {
	return &Mirror{
		source: source,
		index:  make(map[string]int),
	}
}

// Load switches the mirror to showtimeID and fetches its matrix.
// On error the previous snapshot is kept.
func (m *Mirror) Load(ctx context.Context, showtimeID string) error {
	if showtimeID == "" {
		return fmt.Errorf("%w: %w: showtime id is required", apperrors.ErrValidation, apperrors.ErrInvalidInput)
	}
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	return m.fetch(ctx, showtimeID, gen)
}

// Refresh refetches the current showtime. No-op when nothing was loaded yet.
func (m *Mirror) Refresh(ctx context.Context) error {
	m.mu.RLock()
	showtimeID, gen := m.showtimeID, m.generation
	m.mu.RUnlock()

	if showtimeID == "" {
		return nil
	}
	return m.fetch(ctx, showtimeID, gen)
}

func (m *Mirror) fetch(ctx context.Context, showtimeID string, gen uint64) error {
	seats, err := m.source.GetSeatMatrix(ctx, showtimeID)
	if err != nil {
		return err
	}

	index := make(map[string]int, len(seats))
	for i := range seats {
		index[seats[i].Code] = i
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// a newer Load superseded this fetch
	if gen != m.generation {
		return nil
	}
	m.showtimeID = showtimeID
	m.seats = seats
	m.index = index
	m.fetchedAt = time.Now()
	return nil
}

func (m *Mirror) ShowtimeID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.showtimeID
}

func (m *Mirror) FetchedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchedAt
}

// Seat looks up a seat in the current snapshot.
func (m *Mirror) Seat(code string) (model.Seat, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[code]
	if !ok {
		return model.Seat{}, false
	}
	return m.seats[i], true
}

func (m *Mirror) Seats() []model.Seat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Seat(nil), m.seats...)
}

// View classifies a single seat against the given selection and session.
func (m *Mirror) View(code string, selection *Selection, mySessionID string) (SeatView, bool) {
	seat, ok := m.Seat(code)
	if !ok {
		return SeatView{}, false
	}
	return Classify(seat, selection != nil && selection.Contains(code), mySessionID), true
}

// Views classifies every seat of the snapshot.
func (m *Mirror) Views(selection *Selection, mySessionID string) []SeatView {
	seats := m.Seats()
	views := make([]SeatView, 0, len(seats))
	for _, seat := range seats {
		selected := selection != nil && selection.Contains(seat.Code)
		views = append(views, Classify(seat, selected, mySessionID))
	}
	return views
}
