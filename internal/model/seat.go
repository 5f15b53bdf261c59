package model

// SeatStatus is the backend of record's view of a seat for one showtime.
type SeatStatus string

const (
	SeatStatusAvailable           SeatStatus = "AVAILABLE"
	SeatStatusTemporarilyReserved SeatStatus = "TEMPORARILY_RESERVED"
	SeatStatusOccupied            SeatStatus = "OCCUPIED"
	SeatStatusCancelled           SeatStatus = "CANCELLED"
)

// IsValid 檢查狀態是否為已知值
func (s SeatStatus) IsValid() bool {
	switch s {
	case SeatStatusAvailable, SeatStatusTemporarilyReserved, SeatStatusOccupied, SeatStatusCancelled:
		return true
	}
	return false
}

// Seat is one cell of a showtime's seat matrix. Code is the seat identifier ("F7").
type Seat struct {
	Code      string     `json:"code"`
	Row       string     `json:"row"`
	Column    int        `json:"column"`
	Status    SeatStatus `json:"status"`
	SessionID *string    `json:"session_id,omitempty"`
}

// IsHeldBy reports whether the seat is temporarily reserved by the given session.
func (s *Seat) IsHeldBy(sessionID string) bool {
	return s.Status == SeatStatusTemporarilyReserved &&
		sessionID != "" &&
		s.SessionID != nil &&
		*s.SessionID == sessionID
}

// SeatMatrix is the full per-showtime snapshot.
type SeatMatrix struct {
	ShowtimeID string `json:"showtime_id"`
	Seats      []Seat `json:"seats"`
}
