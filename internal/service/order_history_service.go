package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cinema-checkout/internal/cache"
	"cinema-checkout/internal/model"
	"cinema-checkout/internal/order"
	"cinema-checkout/internal/repository"
	apperrors "cinema-checkout/pkg/app_errors"
	"cinema-checkout/pkg/logger"

	"go.uber.org/zap"
)

const (
	historyCacheTTL   = 5 * time.Minute
	defaultHistoryMax = 50
)

type OrderHistoryService interface {
	// 由 worker 呼叫：寫入訂單紀錄並讓快取失效
	Record(ctx context.Context, event *model.OrderConfirmedEvent) error
	// 讀取使用者訂單紀錄 (read-through cache)
	History(ctx context.Context, userID string) ([]*model.OrderHistoryEntry, error)
}

type OrderHistoryServiceImpl struct {
	repository repository.OrderHistoryRepository
	store      cache.Store
	log        *zap.Logger
}

func NewOrderHistoryService(repository repository.OrderHistoryRepository, store cache.Store) OrderHistoryService {
	return &OrderHistoryServiceImpl{
		repository: repository,
		store:      store,
		log:        logger.WithComponent("order_history"),
	}
}

func (s *OrderHistoryServiceImpl) Record(ctx context.Context, event *model.OrderConfirmedEvent) error {
	if event == nil || event.OrderID == "" {
		return apperrors.ErrInvalidInput
	}
	_, inserted, err := s.repository.Save(ctx, event)
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Info("Order already recorded", zap.String("order_id", event.OrderID))
	}
	if err := s.store.Delete(ctx, order.HistoryCacheKey(event.UserID)); err != nil {
		s.log.Warn("Failed to invalidate history cache", zap.String("user_id", event.UserID), zap.Error(err))
	}
	return nil
}

func (s *OrderHistoryServiceImpl) History(ctx context.Context, userID string) ([]*model.OrderHistoryEntry, error) {
	key := order.HistoryCacheKey(userID)

	raw, err := s.store.Get(ctx, key)
	if err == nil {
		var entries []*model.OrderHistoryEntry
		if err := json.Unmarshal(raw, &entries); err == nil {
			return entries, nil
		}
		s.log.Warn("Discarding unreadable history cache", zap.String("key", key))
	} else if !errors.Is(err, apperrors.ErrCacheMiss) {
		s.log.Warn("History cache read failed", zap.String("key", key), zap.Error(err))
	}

	entries, err := s.repository.ListByUser(ctx, userID, defaultHistoryMax)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(entries); err == nil {
		if err := s.store.Set(ctx, key, raw, historyCacheTTL); err != nil {
			s.log.Warn("History cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return entries, nil
}
