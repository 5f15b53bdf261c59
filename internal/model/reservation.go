package model

import "time"

// ReservationSession is the client-side mirror of a server-granted hold.
// ReservedCodes is a subset of RequestedCodes and FailedCodes is the difference.
type ReservationSession struct {
	SessionID      string    `json:"session_id"`
	ShowtimeID     string    `json:"showtime_id"`
	RequestedCodes []string  `json:"requested_codes"`
	ReservedCodes  []string  `json:"reserved_codes"`
	FailedCodes    []string  `json:"failed_codes"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Remaining returns max(0, ExpiresAt-now).
func (s *ReservationSession) Remaining(now time.Time) time.Duration {
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// HoldRequest 佔位請求
type HoldRequest struct {
	ShowtimeID string   `json:"showtime_id"`
	SeatCodes  []string `json:"seat_codes"`
	UserID     *string  `json:"user_id,omitempty"`
}

// HoldResponse carries either an absolute ExpiresAt or a relative TTL (milliseconds).
// FailedCodes lists the requested seats the backend refused.
type HoldResponse struct {
	SessionID   string     `json:"session_id"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	TTLMillis   int64      `json:"ttl_ms,omitempty"`
	FailedCodes []string   `json:"failed_codes,omitempty"`
}

type ConfirmReservationRequest struct {
	PurchaseNumber string `json:"purchase_number"`
}

// SessionSeatsResponse is used to re-attach a session after a reload.
type SessionSeatsResponse struct {
	SessionID  string     `json:"session_id"`
	ShowtimeID string     `json:"showtime_id"`
	SeatCodes  []string   `json:"seat_codes"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// HoldOutcome is what a hold returns to callers. A non-empty Failed is a partial
// failure: the caller must drop those codes from the cart.
type HoldOutcome struct {
	SessionID string    `json:"session_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Reserved  []string  `json:"reserved"`
	Failed    []string  `json:"failed"`
}

func (o HoldOutcome) IsPartial() bool {
	return len(o.Failed) > 0 && len(o.Reserved) > 0
}
