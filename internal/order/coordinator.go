package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cinema-checkout/internal/cache"
	"cinema-checkout/internal/cart"
	"cinema-checkout/internal/model"
	apperrors "cinema-checkout/pkg/app_errors"
	"cinema-checkout/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const orderCacheTTL = 24 * time.Hour

// API is the backend of record's order surface.
type API interface {
	PreviewOrder(ctx context.Context, payload model.OrderPayload) (*model.OrderConfirmation, error)
	ConfirmOrder(ctx context.Context, payload model.OrderPayload) (*model.OrderConfirmation, error)
}

// CartSource is read-only access to the cart being checked out.
type CartSource interface {
	Snapshot() model.CartSnapshot
	Version() uint64
}

// SessionFinalizer turns the active hold into a permanent reservation.
type SessionFinalizer interface {
	Session() *model.ReservationSession
	Confirm(ctx context.Context, sessionID, purchaseNumber string) error
	Abandon(ctx context.Context)
}

// Publisher receives an event for every order the backend accepted.
type Publisher interface {
	PublishOrderConfirmed(ctx context.Context, event *model.OrderConfirmedEvent) error
}

type ConfirmRequest struct {
	PurchaseNumber string
	UserID         *string
}

// Coordinator composes the cart and the reservation session into order payloads.
type Coordinator struct {
	api       API
	cart      CartSource
	sessions  SessionFinalizer
	store     cache.Store
	publisher Publisher
	now       func() time.Time
	log       *zap.Logger

	mu          sync.Mutex
	previewGen  uint64
	lastPreview *model.OrderConfirmation
}

// NewCoordinator wires a coordinator. publisher may be nil.
func NewCoordinator(api API, cartSource CartSource, sessions SessionFinalizer, store cache.Store, publisher Publisher) *Coordinator {
	return &Coordinator{
		api:       api,
		cart:      cartSource,
		sessions:  sessions,
		store:     store,
		publisher: publisher,
		now:       time.Now,
		log:       logger.WithComponent("order"),
	}
}

// OrderCacheKey is where the latest known state of an order is cached.
func OrderCacheKey(purchaseNumber string) string {
	return "orders:" + purchaseNumber
}

// HistoryCacheKey is the cached order-history collection of a user; confirm invalidates it.
func HistoryCacheKey(userID string) string {
	if userID == "" {
		userID = "anonymous"
	}
	return "orders:history:" + userID
}

// Preview derives the breakdown from the current cart. It has no side effects.
func (c *Coordinator) Preview() model.PriceBreakdown {
	return cart.BreakdownOf(c.cart.Snapshot())
}

// BuildPayload assembles the request body sent to the backend for a snapshot.
func BuildPayload(snapshot model.CartSnapshot, sessionID, purchaseNumber string, userID *string) model.OrderPayload {
	payload := model.OrderPayload{
		SessionID:      sessionID,
		PurchaseNumber: purchaseNumber,
		UserID:         userID,
		TicketGroups:   snapshot.TicketGroups,
		Concessions:    snapshot.Concessions,
		Totals:         cart.BreakdownOf(snapshot),
	}
	if payload.TicketGroups == nil {
		payload.TicketGroups = []model.TicketGroup{}
	}
	if payload.Concessions == nil {
		payload.Concessions = []model.ConcessionLine{}
	}
	if snapshot.Promotion != nil {
		payload.PromotionCode = snapshot.Promotion.Code
	}
	return payload
}

// RemotePreview asks the backend to price the current cart. A newer RemotePreview or a cart
// change while the call is in flight makes this result stale: ErrPreviewSuperseded is returned
// and the result is dropped.
func (c *Coordinator) RemotePreview(ctx context.Context) (*model.OrderConfirmation, error) {
	snapshot := c.cart.Snapshot()
	if snapshot.IsEmpty() {
		return nil, fmt.Errorf("%w: %w: cart is empty", apperrors.ErrValidation, apperrors.ErrEmptySelection)
	}

	c.mu.Lock()
	c.previewGen++
	gen := c.previewGen
	c.mu.Unlock()

	sessionID := ""
	if s := c.sessions.Session(); s != nil {
		sessionID = s.SessionID
	}
	res, err := c.api.PreviewOrder(ctx, BuildPayload(snapshot, sessionID, "", nil))

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.previewGen || c.cart.Version() != snapshot.Version {
		return nil, apperrors.ErrPreviewSuperseded
	}
	if err != nil {
		return nil, err
	}
	c.lastPreview = res
	return res, nil
}

// LastPreview returns the most recent non-superseded remote preview.
func (c *Coordinator) LastPreview() *model.OrderConfirmation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPreview
}

// Confirm submits the order. The order is cached as confirmed before the call resolves
// and rolled back to the captured value if the backend refuses it.
func (c *Coordinator) Confirm(ctx context.Context, req ConfirmRequest) (*model.OrderConfirmation, error) {
	snapshot := c.cart.Snapshot()
	if snapshot.IsEmpty() {
		return nil, fmt.Errorf("%w: %w: cart is empty", apperrors.ErrValidation, apperrors.ErrEmptySelection)
	}

	var session *model.ReservationSession
	if len(snapshot.TicketGroups) > 0 {
		session = c.sessions.Session()
		if session == nil {
			return nil, apperrors.ErrNoActiveSession
		}
	}

	purchaseNumber := strings.TrimSpace(req.PurchaseNumber)
	if purchaseNumber == "" {
		purchaseNumber = NewPurchaseNumber()
	}
	sessionID := ""
	if session != nil {
		sessionID = session.SessionID
	}
	payload := BuildPayload(snapshot, sessionID, purchaseNumber, req.UserID)

	update, err := c.beginOptimistic(ctx, purchaseNumber, &model.OrderConfirmation{
		PurchaseNumber: purchaseNumber,
		UserID:         req.UserID,
		Status:         model.OrderStatusConfirmed,
		Totals:         payload.Totals,
		SeatCodes:      seatCodes(snapshot),
		CreatedAt:      c.now().UTC(),
		Speculative:    true,
	})
	if err != nil {
		return nil, err
	}

	confirmed, err := c.api.ConfirmOrder(ctx, payload)
	if err != nil {
		update.rollback(ctx)
		c.log.Warn("Order confirm failed, rolled back",
			zap.String("purchase_number", purchaseNumber),
			zap.Error(err),
		)
		return nil, err
	}
	confirmed.Speculative = false
	if confirmed.PurchaseNumber == "" {
		confirmed.PurchaseNumber = purchaseNumber
	}
	update.commit(ctx, confirmed)
	c.invalidateHistory(ctx, req.UserID)

	if session != nil {
		if err := c.sessions.Confirm(ctx, session.SessionID, purchaseNumber); err != nil {
			// the order stands; the hold lapses server-side on its own
			c.log.Warn("Failed to finalize reservation session",
				zap.String("session_id", session.SessionID),
				zap.String("purchase_number", purchaseNumber),
				zap.Error(err),
			)
			c.sessions.Abandon(ctx)
		}
	}

	c.publish(ctx, confirmed, snapshot)

	c.log.Info("Order confirmed",
		zap.String("order_id", confirmed.OrderID),
		zap.String("purchase_number", purchaseNumber),
		zap.String("grand_total", confirmed.Totals.GrandTotal.StringFixed(2)),
	)
	return confirmed, nil
}

// Order reads the cached state of an order, speculative or authoritative.
func (c *Coordinator) Order(ctx context.Context, purchaseNumber string) (*model.OrderConfirmation, error) {
	return LoadCachedOrder(ctx, c.store, purchaseNumber)
}

func LoadCachedOrder(ctx context.Context, store cache.Store, purchaseNumber string) (*model.OrderConfirmation, error) {
	raw, err := store.Get(ctx, OrderCacheKey(purchaseNumber))
	if errors.Is(err, apperrors.ErrCacheMiss) {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	var order model.OrderConfirmation
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode cached order: %w", err)
	}
	return &order, nil
}

// NewPurchaseNumber returns a fresh client-side purchase number.
func NewPurchaseNumber() string {
	return "PN-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
}

// optimisticUpdate holds what was in the cache before a speculative write.
type optimisticUpdate struct {
	c           *Coordinator
	key         string
	previous    []byte
	speculative []byte
}

func (c *Coordinator) beginOptimistic(ctx context.Context, purchaseNumber string, speculative *model.OrderConfirmation) (*optimisticUpdate, error) {
	key := OrderCacheKey(purchaseNumber)

	previous, err := c.store.Get(ctx, key)
	if err != nil && !errors.Is(err, apperrors.ErrCacheMiss) {
		return nil, err
	}
	if err != nil {
		previous = nil
	}

	raw, err := json.Marshal(speculative)
	if err != nil {
		return nil, fmt.Errorf("marshal speculative order: %w", err)
	}

	ok, err := c.store.CompareAndSwap(ctx, key, previous, raw, orderCacheTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: purchase %s", apperrors.ErrOperationInProgress, purchaseNumber)
	}
	return &optimisticUpdate{c: c, key: key, previous: previous, speculative: raw}, nil
}

// rollback restores the captured value unless something else replaced the speculative one.
func (u *optimisticUpdate) rollback(ctx context.Context) {
	ok, err := u.c.store.CompareAndSwap(ctx, u.key, u.speculative, u.previous, orderCacheTTL)
	if err != nil {
		u.c.log.Error("Order cache rollback failed", zap.String("key", u.key), zap.Error(err))
		return
	}
	if !ok {
		u.c.log.Warn("Order cache changed during confirm, rollback skipped", zap.String("key", u.key))
	}
}

// commit replaces the speculative value with the backend's order.
func (u *optimisticUpdate) commit(ctx context.Context, order *model.OrderConfirmation) {
	raw, err := json.Marshal(order)
	if err != nil {
		u.c.log.Error("Failed to marshal confirmed order", zap.Error(err))
		return
	}
	ok, err := u.c.store.CompareAndSwap(ctx, u.key, u.speculative, raw, orderCacheTTL)
	if err == nil && !ok {
		err = u.c.store.Set(ctx, u.key, raw, orderCacheTTL)
	}
	if err != nil {
		u.c.log.Error("Failed to cache confirmed order", zap.String("key", u.key), zap.Error(err))
	}
}

func (c *Coordinator) invalidateHistory(ctx context.Context, userID *string) {
	id := ""
	if userID != nil {
		id = *userID
	}
	if err := c.store.Delete(ctx, HistoryCacheKey(id)); err != nil {
		c.log.Warn("Failed to invalidate order history cache", zap.Error(err))
	}
}

func (c *Coordinator) publish(ctx context.Context, order *model.OrderConfirmation, snapshot model.CartSnapshot) {
	if c.publisher == nil {
		return
	}
	event := &model.OrderConfirmedEvent{
		OrderID:        order.OrderID,
		PurchaseNumber: order.PurchaseNumber,
		ShowtimeIDs:    showtimeIDs(snapshot),
		SeatCodes:      seatCodes(snapshot),
		GrandTotal:     order.Totals.GrandTotal,
		ConfirmedAt:    order.CreatedAt,
	}
	if order.UserID != nil {
		event.UserID = *order.UserID
	}
	if event.ConfirmedAt.IsZero() {
		event.ConfirmedAt = c.now().UTC()
	}
	if err := c.publisher.PublishOrderConfirmed(ctx, event); err != nil {
		c.log.Error("Failed to publish order confirmed event",
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
	}
}

func seatCodes(snapshot model.CartSnapshot) []string {
	var codes []string
	for _, g := range snapshot.TicketGroups {
		codes = append(codes, g.SeatCodes...)
	}
	sort.Strings(codes)
	return codes
}

func showtimeIDs(snapshot model.CartSnapshot) []string {
	ids := make([]string, 0, len(snapshot.TicketGroups))
	for _, g := range snapshot.TicketGroups {
		ids = append(ids, g.ShowtimeID)
	}
	return ids
}
