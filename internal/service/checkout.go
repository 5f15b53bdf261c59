package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cinema-checkout/config"
	"cinema-checkout/internal/cache"
	"cinema-checkout/internal/cart"
	"cinema-checkout/internal/model"
	"cinema-checkout/internal/order"
	"cinema-checkout/internal/reservation"
	"cinema-checkout/internal/seatmap"
	apperrors "cinema-checkout/pkg/app_errors"
	"cinema-checkout/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Backend is every collaborator API of the backend of record the checkout consumes.
type Backend interface {
	seatmap.SeatSource
	reservation.API
	order.API
	ValidatePromotion(ctx context.Context, req model.ValidatePromotionRequest) (*model.PromotionValidation, error)
}

// HoldInput prices the seats of a hold. TotalPrice only applies when every seat is reserved.
type HoldInput struct {
	UnitPrice  decimal.Decimal
	TotalPrice *decimal.Decimal
	UserID     *string
}

// HoldStatus is the active session plus its live countdown.
type HoldStatus struct {
	Session          *model.ReservationSession `json:"session"`
	RemainingSeconds int64                     `json:"remaining_seconds"`
	InProgress       bool                      `json:"in_progress"`
}

// Checkout is the state of one client: seat map, selection, hold, cart and order.
type Checkout struct {
	clientID    string
	backend     Backend
	state       *cache.StateStore
	mirror      *seatmap.Mirror
	selection   *seatmap.Selection
	cart        *cart.Cart
	sessions    *reservation.Manager
	coordinator *order.Coordinator
	log         *zap.Logger
}

func NewCheckout(clientID string, backend Backend, store cache.Store, publisher order.Publisher, cfg config.CheckoutConfig, opts ...reservation.Option) *Checkout {
	c := &Checkout{
		clientID:  clientID,
		backend:   backend,
		state:     cache.NewStateStore(store, clientID),
		mirror:    seatmap.NewMirror(backend),
		selection: seatmap.NewSelection(cfg.MaxSeats),
		log:       logger.WithComponent("checkout").With(zap.String("client_id", clientID)),
	}
	c.cart = cart.NewCart(c.state)

	opts = append([]reservation.Option{
		reservation.WithTickInterval(cfg.TickInterval),
		reservation.WithStore(c.state),
		reservation.WithOnExpire(c.onExpire),
	}, opts...)
	c.sessions = reservation.NewManager(backend, c.mirror, opts...)
	c.coordinator = order.NewCoordinator(backend, c.cart, c.sessions, store, publisher)
	return c
}

func (c *Checkout) ClientID() string {
	return c.clientID
}

// Restore reloads the persisted cart and re-attaches the persisted hold.
// Ticket groups are dropped when no hold survives, since their seats are no longer held.
func (c *Checkout) Restore(ctx context.Context) error {
	if snapshot, ok := c.state.LoadCart(ctx); ok {
		c.cart.Restore(snapshot)
	}

	session, err := c.sessions.Restore(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		c.cart.ClearTickets(ctx, "")
		return nil
	}
	if session.ShowtimeID != "" {
		if err := c.mirror.Load(ctx, session.ShowtimeID); err != nil {
			c.log.Warn("Seat map load after restore failed", zap.String("showtime_id", session.ShowtimeID), zap.Error(err))
		}
	}
	return nil
}

// LoadShowtime switches the seat map to showtimeID. Switching showtimes clears the selection.
func (c *Checkout) LoadShowtime(ctx context.Context, showtimeID string) ([]seatmap.SeatView, error) {
	previous := c.mirror.ShowtimeID()
	if err := c.mirror.Load(ctx, showtimeID); err != nil {
		return nil, err
	}
	if previous != showtimeID {
		c.selection.Clear()
	}
	return c.SeatViews(), nil
}

func (c *Checkout) SeatViews() []seatmap.SeatView {
	return c.mirror.Views(c.selection, c.mySessionID())
}

// ToggleSeat adds or removes a seat from the selection. Reaching the limit is reported, not failed.
func (c *Checkout) ToggleSeat(code string) (seatmap.ToggleResult, []string, error) {
	if c.mirror.ShowtimeID() == "" {
		return "", nil, fmt.Errorf("%w: %w: no seat map loaded", apperrors.ErrValidation, apperrors.ErrInvalidInput)
	}
	view, ok := c.mirror.View(code, c.selection, c.mySessionID())
	if !ok {
		return "", nil, fmt.Errorf("%w: %w: unknown seat %s", apperrors.ErrValidation, apperrors.ErrSeatNotAvailable, code)
	}
	result, err := c.selection.Toggle(view)
	if err != nil {
		return "", nil, err
	}
	return result, c.selection.Codes(), nil
}

// SetSelectionLimit follows the number of tickets the customer bought.
func (c *Checkout) SetSelectionLimit(limit int) ([]string, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %w: limit must not be negative", apperrors.ErrValidation, apperrors.ErrInvalidQuantity)
	}
	c.selection.SetMax(limit)
	return c.selection.Codes(), nil
}

func (c *Checkout) Selection() []string {
	return c.selection.Codes()
}

// Hold reserves the current selection and puts the reserved seats in the cart.
// Seats the backend refused are removed from both the selection and the cart.
func (c *Checkout) Hold(ctx context.Context, in HoldInput) (*model.HoldOutcome, error) {
	codes := c.selection.Codes()
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, apperrors.ErrEmptySelection)
	}
	if in.UnitPrice.IsNegative() || (in.TotalPrice != nil && in.TotalPrice.IsNegative()) {
		return nil, fmt.Errorf("%w: %w: negative price", apperrors.ErrValidation, apperrors.ErrInvalidInput)
	}
	showtimeID := c.mirror.ShowtimeID()
	previous := c.sessions.Session()

	outcome, err := c.sessions.Hold(ctx, codes, in.UserID)
	active := c.sessions.Session()
	replaced := previous != nil && (active == nil || active.SessionID != previous.SessionID)
	if err != nil {
		if replaced {
			c.cart.ClearTickets(ctx, previous.ShowtimeID)
		}
		return nil, err
	}

	if replaced && previous.ShowtimeID != showtimeID {
		c.cart.ClearTickets(ctx, previous.ShowtimeID)
	}
	c.selection.Remove(outcome.Failed...)
	if previous != nil && !replaced {
		// refused outright; the earlier hold and its tickets stand
		return outcome, nil
	}

	total := in.TotalPrice
	if len(outcome.Failed) > 0 {
		total = nil
	}
	if err := c.cart.SetTicketGroup(ctx, showtimeID, outcome.Reserved, in.UnitPrice, total); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (c *Checkout) HoldStatus() HoldStatus {
	return HoldStatus{
		Session:          c.sessions.Session(),
		RemainingSeconds: int64(c.sessions.Remaining() / time.Second),
		InProgress:       c.sessions.InProgress(),
	}
}

// Release cancels the active hold and drops its seats from the cart. No hold is not an error.
func (c *Checkout) Release(ctx context.Context) error {
	session := c.sessions.Session()
	if session == nil {
		return nil
	}
	if err := c.sessions.Release(ctx, session.SessionID); err != nil {
		return err
	}
	c.cart.ClearTickets(ctx, session.ShowtimeID)
	c.selection.Clear()
	return nil
}

func (c *Checkout) SetTickets(ctx context.Context, showtimeID string, seatCodes []string, unitPrice decimal.Decimal, totalPrice *decimal.Decimal) (model.CartSnapshot, error) {
	if err := c.cart.SetTicketGroup(ctx, showtimeID, seatCodes, unitPrice, totalPrice); err != nil {
		return model.CartSnapshot{}, err
	}
	return c.cart.Snapshot(), nil
}

func (c *Checkout) RemoveSeat(ctx context.Context, showtimeID, seatCode string) (model.CartSnapshot, error) {
	if err := c.cart.RemoveSeatFromGroup(ctx, showtimeID, seatCode); err != nil {
		return model.CartSnapshot{}, err
	}
	c.selection.Remove(seatCode)
	return c.cart.Snapshot(), nil
}

func (c *Checkout) AddConcession(ctx context.Context, product model.ConcessionProduct, quantity int) (model.CartSnapshot, error) {
	if err := c.cart.AddConcession(ctx, product, quantity); err != nil {
		return model.CartSnapshot{}, err
	}
	return c.cart.Snapshot(), nil
}

func (c *Checkout) UpdateConcession(ctx context.Context, productID string, quantity int) (model.CartSnapshot, error) {
	if err := c.cart.UpdateConcession(ctx, productID, quantity); err != nil {
		return model.CartSnapshot{}, err
	}
	return c.cart.Snapshot(), nil
}

// ApplyPromotion validates code against the current subtotal and stores the result in the cart.
// Percentages outside (0,100] are refused here; the pricing engine itself does not clamp them.
func (c *Checkout) ApplyPromotion(ctx context.Context, code string) (*model.Promotion, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: %w: promotion code is required", apperrors.ErrValidation, apperrors.ErrInvalidInput)
	}

	res, err := c.backend.ValidatePromotion(ctx, model.ValidatePromotionRequest{
		Code:   code,
		Amount: c.cart.Subtotal(),
	})
	if err != nil {
		return nil, err
	}
	if !res.IsValid || res.Promotion == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrPromotionInvalid, res.Message)
	}

	promo := res.Promotion
	if promo.DiscountType == model.DiscountTypePercentage &&
		(!promo.Value.IsPositive() || promo.Value.GreaterThan(decimal.NewFromInt(100))) {
		c.log.Warn("Refusing misconfigured percentage promotion",
			zap.String("code", promo.Code),
			zap.String("value", promo.Value.String()),
		)
		return nil, fmt.Errorf("%w: percentage %s out of range", apperrors.ErrPromotionInvalid, promo.Value)
	}

	c.cart.SetPromotion(ctx, promo)
	return promo, nil
}

func (c *Checkout) RemovePromotion(ctx context.Context) {
	c.cart.SetPromotion(ctx, nil)
}

func (c *Checkout) Cart() model.CartSnapshot {
	return c.cart.Snapshot()
}

func (c *Checkout) Preview() model.PriceBreakdown {
	return c.coordinator.Preview()
}

func (c *Checkout) RemotePreview(ctx context.Context) (*model.OrderConfirmation, error) {
	return c.coordinator.RemotePreview(ctx)
}

// Confirm places the order and, on success, empties the cart and the selection.
func (c *Checkout) Confirm(ctx context.Context, req order.ConfirmRequest) (*model.OrderConfirmation, error) {
	confirmed, err := c.coordinator.Confirm(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cart.Clear(ctx)
	c.selection.Clear()
	return confirmed, nil
}

func (c *Checkout) Order(ctx context.Context, purchaseNumber string) (*model.OrderConfirmation, error) {
	return c.coordinator.Order(ctx, purchaseNumber)
}

// Close stops the countdown. Persisted state is kept for a later Restore.
func (c *Checkout) Close() {
	c.sessions.Close()
}

func (c *Checkout) mySessionID() string {
	if s := c.sessions.Session(); s != nil {
		return s.SessionID
	}
	return ""
}

// onExpire runs after the manager has dropped the lapsed session, possibly racing a new Hold.
func (c *Checkout) onExpire(expired model.ReservationSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if active := c.sessions.Session(); active != nil && active.SessionID != expired.SessionID {
		if active.ShowtimeID != expired.ShowtimeID {
			c.cart.ClearTickets(ctx, expired.ShowtimeID)
		}
		return
	}
	c.cart.ClearTickets(ctx, expired.ShowtimeID)
	if !c.sessions.InProgress() {
		c.selection.Clear()
	}
}
