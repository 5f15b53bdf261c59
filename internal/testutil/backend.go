// Package testutil provides an in-memory backend of record for tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cinema-checkout/internal/model"
	apperrors "cinema-checkout/pkg/app_errors"

	"github.com/google/uuid"
)

type fakeSession struct {
	showtimeID string
	codes      []string
	expiresAt  time.Time
}

// FakeBackend implements every collaborator API the checkout consumes.
// Error fields, when set, are returned by the matching call instead of doing any work.
type FakeBackend struct {
	mu         sync.Mutex
	seats      map[string][]*model.Seat
	sessions   map[string]*fakeSession
	promotions map[string]model.Promotion
	reject     map[string]struct{}

	TTL time.Duration
	Now func() time.Time

	HoldErr         error
	ConfirmErr      error
	ReleaseErr      error
	SeatMatrixErr   error
	SessionSeatsErr error
	PromotionErr    error
	PreviewErr      error
	ConfirmOrderErr error

	// PreviewGate, when set, blocks PreviewOrder until a value is received.
	PreviewGate chan struct{}
	// SessionSeatsGate does the same for GetSessionSeats.
	SessionSeatsGate chan struct{}

	seatMatrixCalls  int
	holdCalls        int
	confirmCalls     int
	releaseCalls     int
	previewCalls     int
	orderCalls       int
	sessionSeatCalls int
	LastOrder        *model.OrderPayload
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		seats:      make(map[string][]*model.Seat),
		sessions:   make(map[string]*fakeSession),
		promotions: make(map[string]model.Promotion),
		reject:     make(map[string]struct{}),
		TTL:        5 * time.Minute,
		Now:        time.Now,
	}
}

// AddShowtime seeds a showtime with rows x cols AVAILABLE seats named A1, A2, ... B1 ...
func (b *FakeBackend) AddShowtime(showtimeID string, rows, cols int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seats := make([]*model.Seat, 0, rows*cols)
	for r := 0; r < rows; r++ {
		row := string(rune('A' + r))
		for c := 1; c <= cols; c++ {
			seats = append(seats, &model.Seat{
				Code:   fmt.Sprintf("%s%d", row, c),
				Row:    row,
				Column: c,
				Status: model.SeatStatusAvailable,
			})
		}
	}
	b.seats[showtimeID] = seats
}

// SetSeatStatus forces a seat status, e.g. to simulate another client's hold.
func (b *FakeBackend) SetSeatStatus(showtimeID, code string, status model.SeatStatus, sessionID *string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seat := b.findSeat(showtimeID, code); seat != nil {
		seat.Status = status
		seat.SessionID = sessionID
	}
}

// RejectOnHold makes the backend refuse these codes on the next holds (a lost race).
func (b *FakeBackend) RejectOnHold(codes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range codes {
		b.reject[c] = struct{}{}
	}
}

func (b *FakeBackend) AddPromotion(p model.Promotion) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.promotions[p.Code] = p
}

// ExpireSession drops a hold server-side, as the backend's own TTL would.
func (b *FakeBackend) ExpireSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropSession(sessionID, model.SeatStatusAvailable)
}

func (b *FakeBackend) HasSession(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[sessionID]
	return ok
}

func (b *FakeBackend) SeatStatus(showtimeID, code string) model.SeatStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seat := b.findSeat(showtimeID, code); seat != nil {
		return seat.Status
	}
	return ""
}

func (b *FakeBackend) SeatMatrixCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seatMatrixCalls
}

func (b *FakeBackend) HoldCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.holdCalls
}

func (b *FakeBackend) ConfirmCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.confirmCalls
}

func (b *FakeBackend) ReleaseCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.releaseCalls
}

func (b *FakeBackend) PreviewCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.previewCalls
}

func (b *FakeBackend) OrderCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.orderCalls
}

func (b *FakeBackend) SessionSeatsCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionSeatCalls
}

func (b *FakeBackend) GetSeatMatrix(ctx context.Context, showtimeID string) ([]model.Seat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seatMatrixCalls++
	if b.SeatMatrixErr != nil {
		return nil, b.SeatMatrixErr
	}
	seats, ok := b.seats[showtimeID]
	if !ok {
		return nil, fmt.Errorf("%w: showtime %s not found", apperrors.ErrBackendRejection, showtimeID)
	}
	out := make([]model.Seat, 0, len(seats))
	for _, s := range seats {
		cp := *s
		if s.SessionID != nil {
			id := *s.SessionID
			cp.SessionID = &id
		}
		out = append(out, cp)
	}
	return out, nil
}

func (b *FakeBackend) HoldSeats(ctx context.Context, req model.HoldRequest) (*model.HoldResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdCalls++
	if b.HoldErr != nil {
		return nil, b.HoldErr
	}

	sessionID := uuid.New().String()
	var held, failed []string
	for _, code := range req.SeatCodes {
		seat := b.findSeat(req.ShowtimeID, code)
		_, rejected := b.reject[code]
		if seat == nil || rejected || seat.Status != model.SeatStatusAvailable {
			failed = append(failed, code)
			continue
		}
		sid := sessionID
		seat.Status = model.SeatStatusTemporarilyReserved
		seat.SessionID = &sid
		held = append(held, code)
	}

	b.sessions[sessionID] = &fakeSession{
		showtimeID: req.ShowtimeID,
		codes:      held,
		expiresAt:  b.Now().Add(b.TTL),
	}
	return &model.HoldResponse{
		SessionID:   sessionID,
		TTLMillis:   b.TTL.Milliseconds(),
		FailedCodes: failed,
	}, nil
}

func (b *FakeBackend) ConfirmReservation(ctx context.Context, sessionID, purchaseNumber string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmCalls++
	if b.ConfirmErr != nil {
		return b.ConfirmErr
	}
	if _, ok := b.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: session %s", apperrors.ErrSessionExpired, sessionID)
	}
	b.dropSession(sessionID, model.SeatStatusOccupied)
	return nil
}

func (b *FakeBackend) ReleaseReservation(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseCalls++
	if b.ReleaseErr != nil {
		return b.ReleaseErr
	}
	b.dropSession(sessionID, model.SeatStatusAvailable)
	return nil
}

func (b *FakeBackend) GetSessionSeats(ctx context.Context, sessionID string) (*model.SessionSeatsResponse, error) {
	b.mu.Lock()
	b.sessionSeatCalls++
	gate := b.SessionSeatsGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SessionSeatsErr != nil {
		return nil, b.SessionSeatsErr
	}
	s, ok := b.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrSessionExpired, sessionID)
	}
	expiresAt := s.expiresAt
	return &model.SessionSeatsResponse{
		SessionID:  sessionID,
		ShowtimeID: s.showtimeID,
		SeatCodes:  append([]string(nil), s.codes...),
		ExpiresAt:  &expiresAt,
	}, nil
}

func (b *FakeBackend) ValidatePromotion(ctx context.Context, req model.ValidatePromotionRequest) (*model.PromotionValidation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PromotionErr != nil {
		return nil, b.PromotionErr
	}
	p, ok := b.promotions[req.Code]
	if !ok {
		return &model.PromotionValidation{IsValid: false, Message: "unknown promotion code"}, nil
	}
	if req.Amount.LessThan(p.MinAmount) {
		return &model.PromotionValidation{IsValid: false, Message: "minimum amount not reached"}, nil
	}
	return &model.PromotionValidation{IsValid: true, Promotion: &p}, nil
}

func (b *FakeBackend) PreviewOrder(ctx context.Context, payload model.OrderPayload) (*model.OrderConfirmation, error) {
	b.mu.Lock()
	b.previewCalls++
	gate := b.PreviewGate
	err := b.PreviewErr
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &model.OrderConfirmation{
		Status: model.OrderStatusPending,
		Totals: payload.Totals,
	}, nil
}

func (b *FakeBackend) ConfirmOrder(ctx context.Context, payload model.OrderPayload) (*model.OrderConfirmation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderCalls++
	p := payload
	b.LastOrder = &p
	if b.ConfirmOrderErr != nil {
		return nil, b.ConfirmOrderErr
	}

	var codes []string
	for _, g := range payload.TicketGroups {
		codes = append(codes, g.SeatCodes...)
	}
	sort.Strings(codes)
	return &model.OrderConfirmation{
		OrderID:        uuid.New().String(),
		PurchaseNumber: payload.PurchaseNumber,
		UserID:         payload.UserID,
		Status:         model.OrderStatusConfirmed,
		Totals:         payload.Totals,
		SeatCodes:      codes,
		CreatedAt:      b.Now().UTC(),
	}, nil
}

func (b *FakeBackend) findSeat(showtimeID, code string) *model.Seat {
	for _, s := range b.seats[showtimeID] {
		if s.Code == code {
			return s
		}
	}
	return nil
}

func (b *FakeBackend) dropSession(sessionID string, to model.SeatStatus) {
	s, ok := b.sessions[sessionID]
	if !ok {
		return
	}
	for _, code := range s.codes {
		if seat := b.findSeat(s.showtimeID, code); seat != nil {
			seat.Status = to
			seat.SessionID = nil
		}
	}
	delete(b.sessions, sessionID)
}
