package reservation

import (
	"context"
	"time"

	"cinema-checkout/internal/model"
)

// API is the backend of record's reservation surface.
type API interface {
	HoldSeats(ctx context.Context, req model.HoldRequest) (*model.HoldResponse, error)
	ConfirmReservation(ctx context.Context, sessionID, purchaseNumber string) error
	// ReleaseReservation must succeed for an unknown session.
	ReleaseReservation(ctx context.Context, sessionID string) error
	GetSessionSeats(ctx context.Context, sessionID string) (*model.SessionSeatsResponse, error)
}

// SeatMirror is the subset of the seat mirror the manager needs for prechecks and refreshes.
type SeatMirror interface {
	ShowtimeID() string
	Seat(code string) (model.Seat, bool)
	Refresh(ctx context.Context) error
}

// SessionStore persists the active session id and expiry so a session survives a restart.
// LoadSession reports ok=false for missing or unreadable entries.
type SessionStore interface {
	SaveSession(ctx context.Context, sessionID string, expiresAt time.Time) error
	LoadSession(ctx context.Context) (sessionID string, expiresAt time.Time, ok bool)
	ClearSession(ctx context.Context) error
}

type nopStore struct{}

func (nopStore) SaveSession(context.Context, string, time.Time) error { return nil }

func (nopStore) LoadSession(context.Context) (string, time.Time, bool) {
	return "", time.Time{}, false
}

func (nopStore) ClearSession(context.Context) error { return nil }
