package service

import (
	"context"
	"sync"
	"time"

	"cinema-checkout/config"
	"cinema-checkout/internal/cache"
	"cinema-checkout/internal/order"
	"cinema-checkout/internal/reservation"
	apperrors "cinema-checkout/pkg/app_errors"
	"cinema-checkout/pkg/logger"

	"go.uber.org/zap"
)

const restoreTimeout = 10 * time.Second

type CheckoutRegistry interface {
	// 取得 client 的 checkout，第一次使用時從持久化狀態還原
	Get(ctx context.Context, clientID string) (*Checkout, error)
	// 移除 before 之前就沒再使用、且沒有 hold 的 checkout；回傳移除數量
	Sweep(before time.Time) int
	// 每 interval 執行一次 Sweep，直到 ctx 結束
	StartSweeper(ctx context.Context, interval, maxIdle time.Duration)
	// 停止所有 countdown；持久化狀態保留
	Close()
}

type checkoutEntry struct {
	checkout *Checkout
	// closed once Restore has finished
	ready    chan struct{}
	lastUsed time.Time
}

func (e *checkoutEntry) restored() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

type CheckoutRegistryImpl struct {
	mu        sync.Mutex
	checkouts map[string]*checkoutEntry

	backend   Backend
	store     cache.Store
	publisher order.Publisher
	cfg       config.CheckoutConfig
	opts      []reservation.Option
	now       func() time.Time
	log       *zap.Logger
}

func NewCheckoutRegistry(backend Backend, store cache.Store, publisher order.Publisher, cfg config.CheckoutConfig, opts ...reservation.Option) CheckoutRegistry {
	return &CheckoutRegistryImpl{
		checkouts: make(map[string]*checkoutEntry),
		backend:   backend,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		opts:      opts,
		now:       time.Now,
		log:       logger.WithComponent("checkout"),
	}
}

// Get never holds the registry lock across backend I/O. Callers racing the first
// Get of a client wait for its Restore instead of building a second checkout.
func (r *CheckoutRegistryImpl) Get(ctx context.Context, clientID string) (*Checkout, error) {
	if clientID == "" {
		return nil, apperrors.ErrInvalidInput
	}

	r.mu.Lock()
	if entry, ok := r.checkouts[clientID]; ok {
		entry.lastUsed = r.now()
		r.mu.Unlock()
		select {
		case <-entry.ready:
			return entry.checkout, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	entry := &checkoutEntry{
		checkout: NewCheckout(clientID, r.backend, r.store, r.publisher, r.cfg, r.opts...),
		ready:    make(chan struct{}),
		lastUsed: r.now(),
	}
	r.checkouts[clientID] = entry
	r.mu.Unlock()
	defer close(entry.ready)

	// 其他 caller 也在等這次還原，不跟著第一個 request 一起取消
	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	if err := entry.checkout.Restore(restoreCtx); err != nil {
		// 後端暫時連不上時仍可繼續，保留持久化狀態等下次還原
		r.log.Warn("Restore checkout failed",
			zap.String("client_id", clientID),
			zap.Error(err),
		)
	}
	return entry.checkout, nil
}

// Sweep drops checkouts unused since before. A checkout with a hold, an operation
// in flight or a pending Restore is kept; its cart stays in the store either way.
func (r *CheckoutRegistryImpl) Sweep(before time.Time) int {
	r.mu.Lock()
	var idle []*Checkout
	for id, entry := range r.checkouts {
		if !entry.lastUsed.Before(before) || !entry.restored() {
			continue
		}
		status := entry.checkout.HoldStatus()
		if status.Session != nil || status.InProgress {
			continue
		}
		delete(r.checkouts, id)
		idle = append(idle, entry.checkout)
	}
	remaining := len(r.checkouts)
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	if len(idle) > 0 {
		r.log.Info("Idle checkouts evicted",
			zap.Int("evicted", len(idle)),
			zap.Int("remaining", remaining),
		)
	}
	return len(idle)
}

func (r *CheckoutRegistryImpl) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(r.now().Add(-maxIdle))
			}
		}
	}()
}

func (r *CheckoutRegistryImpl) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.checkouts {
		entry.checkout.Close()
		delete(r.checkouts, id)
	}
}
