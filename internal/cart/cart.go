package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cinema-checkout/internal/model"
	"cinema-checkout/internal/pricing"
	apperrors "cinema-checkout/pkg/app_errors"
	"cinema-checkout/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Persister stores the cart snapshot after every mutation.
type Persister interface {
	SaveCart(ctx context.Context, snapshot model.CartSnapshot) error
}

// Cart owns ticket groups (one per showtime) and concession lines.
// Aggregates are recomputed on demand and never cached.
type Cart struct {
	mu          sync.RWMutex
	groups      map[string]*model.TicketGroup
	showtimes   []string // insertion order of groups
	concessions []model.ConcessionLine
	promotion   *model.Promotion
	version     uint64

	persister Persister
	now       func() time.Time
	log       *zap.Logger
}

func NewCart(persister Persister) *Cart {
	return &Cart{
		groups:    make(map[string]*model.TicketGroup),
		persister: persister,
		now:       time.Now,
		log:       logger.WithComponent("cart"),
	}
}

// Restore replaces the whole cart with a previously persisted snapshot without re-persisting it.
// Invalid entries (empty groups, non-positive quantities) are dropped.
func (c *Cart) Restore(snapshot model.CartSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.groups = make(map[string]*model.TicketGroup)
	c.showtimes = nil
	for _, g := range snapshot.TicketGroups {
		codes := uniqueCodes(g.SeatCodes)
		if g.ShowtimeID == "" || len(codes) == 0 {
			continue
		}
		group := g
		group.SeatCodes = codes
		c.putGroup(&group)
	}

	c.concessions = nil
	for _, line := range snapshot.Concessions {
		if line.ProductID == "" || line.Quantity <= 0 {
			continue
		}
		c.concessions = append(c.concessions, line)
	}
	c.promotion = clonePromotion(snapshot.Promotion)
	c.version = snapshot.Version
}

// SetTicketGroup upserts the group for showtimeID, replacing any previous seat set and price.
// An empty seat set removes the group.
func (c *Cart) SetTicketGroup(ctx context.Context, showtimeID string, seatCodes []string, unitPrice decimal.Decimal, totalPrice *decimal.Decimal) error {
	if showtimeID == "" {
		return fmt.Errorf("%w: %w: showtime id is required", apperrors.ErrValidation, apperrors.ErrInvalidInput)
	}
	if unitPrice.IsNegative() || (totalPrice != nil && totalPrice.IsNegative()) {
		return fmt.Errorf("%w: %w: negative price", apperrors.ErrValidation, apperrors.ErrInvalidInput)
	}

	codes := uniqueCodes(seatCodes)

	c.mu.Lock()
	if len(codes) == 0 {
		c.removeGroup(showtimeID)
	} else {
		group := &model.TicketGroup{
			ShowtimeID: showtimeID,
			SeatCodes:  codes,
			UnitPrice:  unitPrice,
		}
		if totalPrice != nil {
			tp := *totalPrice
			group.TotalPrice = &tp
		}
		c.putGroup(group)
	}
	snapshot := c.commitLocked()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
	return nil
}

// RemoveSeatFromGroup drops one seat. A group left without seats is pruned.
func (c *Cart) RemoveSeatFromGroup(ctx context.Context, showtimeID, seatCode string) error {
	return c.RemoveSeats(ctx, showtimeID, []string{seatCode})
}

// RemoveSeats drops the given seats from a group. Once seats are removed the group
// falls back to unit pricing, since an authoritative total no longer matches the seat set.
func (c *Cart) RemoveSeats(ctx context.Context, showtimeID string, seatCodes []string) error {
	c.mu.Lock()
	group, ok := c.groups[showtimeID]
	if !ok || len(seatCodes) == 0 {
		c.mu.Unlock()
		return nil
	}

	drop := make(map[string]struct{}, len(seatCodes))
	for _, code := range seatCodes {
		drop[code] = struct{}{}
	}
	kept := make([]string, 0, len(group.SeatCodes))
	for _, code := range group.SeatCodes {
		if _, gone := drop[code]; !gone {
			kept = append(kept, code)
		}
	}
	if len(kept) == len(group.SeatCodes) {
		c.mu.Unlock()
		return nil
	}

	if len(kept) == 0 {
		c.removeGroup(showtimeID)
	} else {
		group.SeatCodes = kept
		group.TotalPrice = nil
	}
	snapshot := c.commitLocked()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
	return nil
}

// ClearTickets removes the group for showtimeID, or every group when showtimeID is empty.
func (c *Cart) ClearTickets(ctx context.Context, showtimeID string) {
	c.mu.Lock()
	if showtimeID == "" {
		if len(c.groups) == 0 {
			c.mu.Unlock()
			return
		}
		c.groups = make(map[string]*model.TicketGroup)
		c.showtimes = nil
	} else {
		if _, ok := c.groups[showtimeID]; !ok {
			c.mu.Unlock()
			return
		}
		c.removeGroup(showtimeID)
	}
	snapshot := c.commitLocked()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
}

// AddConcession merges by product id: an existing line is incremented, otherwise a line is appended.
func (c *Cart) AddConcession(ctx context.Context, product model.ConcessionProduct, quantity int) error {
	if product.ProductID == "" {
		return fmt.Errorf("%w: %w: product id is required", apperrors.ErrValidation, apperrors.ErrInvalidInput)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: %w: %d", apperrors.ErrValidation, apperrors.ErrInvalidQuantity, quantity)
	}
	if product.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: %w: negative price", apperrors.ErrValidation, apperrors.ErrInvalidInput)
	}

	c.mu.Lock()
	merged := false
	for i := range c.concessions {
		if c.concessions[i].ProductID == product.ProductID {
			c.concessions[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		c.concessions = append(c.concessions, model.ConcessionLine{
			ProductID: product.ProductID,
			Name:      product.Name,
			UnitPrice: product.UnitPrice,
			Quantity:  quantity,
		})
	}
	snapshot := c.commitLocked()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
	return nil
}

// UpdateConcession sets the quantity exactly. quantity <= 0 deletes the line.
func (c *Cart) UpdateConcession(ctx context.Context, productID string, quantity int) error {
	c.mu.Lock()
	idx := -1
	for i := range c.concessions {
		if c.concessions[i].ProductID == productID {
			idx = i
			break
		}
	}

	switch {
	case idx < 0 && quantity <= 0:
		c.mu.Unlock()
		return nil
	case idx < 0:
		c.mu.Unlock()
		return fmt.Errorf("%w: %w: unknown product %q", apperrors.ErrValidation, apperrors.ErrInvalidInput, productID)
	case quantity <= 0:
		c.concessions = append(c.concessions[:idx], c.concessions[idx+1:]...)
	default:
		c.concessions[idx].Quantity = quantity
	}
	snapshot := c.commitLocked()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
	return nil
}

// SetPromotion stores an externally validated promotion; nil clears it.
func (c *Cart) SetPromotion(ctx context.Context, promo *model.Promotion) {
	c.mu.Lock()
	c.promotion = clonePromotion(promo)
	snapshot := c.commitLocked()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
}

// Clear empties the cart, promotion included.
func (c *Cart) Clear(ctx context.Context) {
	c.mu.Lock()
	c.groups = make(map[string]*model.TicketGroup)
	c.showtimes = nil
	c.concessions = nil
	c.promotion = nil
	snapshot := c.commitLocked()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
}

func (c *Cart) TicketsSubtotal() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticketsSubtotalLocked()
}

func (c *Cart) ConcessionsSubtotal() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.concessionsSubtotalLocked()
}

// Subtotal is the amount fed to the pricing engine.
func (c *Cart) Subtotal() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return pricing.Round2(c.ticketsSubtotalLocked().Add(c.concessionsSubtotalLocked()))
}

// Breakdown prices the current cart. Recomputed on every call.
func (c *Cart) Breakdown() model.PriceBreakdown {
	snapshot := c.Snapshot()
	return BreakdownOf(snapshot)
}

func (c *Cart) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Snapshot returns a deep copy of the cart.
func (c *Cart) Snapshot() model.CartSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// SubtotalOf computes the subtotal of a snapshot.
func SubtotalOf(snapshot model.CartSnapshot) decimal.Decimal {
	total := decimal.Zero
	for i := range snapshot.TicketGroups {
		total = total.Add(snapshot.TicketGroups[i].EffectivePrice())
	}
	for i := range snapshot.Concessions {
		total = total.Add(snapshot.Concessions[i].LineTotal())
	}
	return pricing.Round2(total)
}

// BreakdownOf prices a snapshot with its own promotion.
func BreakdownOf(snapshot model.CartSnapshot) model.PriceBreakdown {
	return pricing.Breakdown(SubtotalOf(snapshot), snapshot.Promotion)
}

func (c *Cart) ticketsSubtotalLocked() decimal.Decimal {
	total := decimal.Zero
	for _, id := range c.showtimes {
		total = total.Add(c.groups[id].EffectivePrice())
	}
	return pricing.Round2(total)
}

func (c *Cart) concessionsSubtotalLocked() decimal.Decimal {
	total := decimal.Zero
	for i := range c.concessions {
		total = total.Add(c.concessions[i].LineTotal())
	}
	return pricing.Round2(total)
}

func (c *Cart) putGroup(group *model.TicketGroup) {
	if _, exists := c.groups[group.ShowtimeID]; !exists {
		c.showtimes = append(c.showtimes, group.ShowtimeID)
	}
	c.groups[group.ShowtimeID] = group
}

func (c *Cart) removeGroup(showtimeID string) {
	if _, ok := c.groups[showtimeID]; !ok {
		return
	}
	delete(c.groups, showtimeID)
	for i, id := range c.showtimes {
		if id == showtimeID {
			c.showtimes = append(c.showtimes[:i], c.showtimes[i+1:]...)
			break
		}
	}
}

func (c *Cart) commitLocked() model.CartSnapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Cart) snapshotLocked() model.CartSnapshot {
	groups := make([]model.TicketGroup, 0, len(c.showtimes))
	for _, id := range c.showtimes {
		g := *c.groups[id]
		g.SeatCodes = append([]string(nil), g.SeatCodes...)
		if g.TotalPrice != nil {
			tp := *g.TotalPrice
			g.TotalPrice = &tp
		}
		groups = append(groups, g)
	}
	return model.CartSnapshot{
		TicketGroups: groups,
		Concessions:  append([]model.ConcessionLine{}, c.concessions...),
		Promotion:    clonePromotion(c.promotion),
		Version:      c.version,
		CapturedAt:   c.now().UTC(),
	}
}

func (c *Cart) persist(ctx context.Context, snapshot model.CartSnapshot) {
	if c.persister == nil {
		return
	}
	if err := c.persister.SaveCart(ctx, snapshot); err != nil {
		c.log.Warn("persist cart failed", zap.Uint64("version", snapshot.Version), zap.Error(err))
	}
}

func uniqueCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

func clonePromotion(p *model.Promotion) *model.Promotion {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
