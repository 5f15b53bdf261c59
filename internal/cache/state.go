package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cinema-checkout/internal/model"
	apperrors "cinema-checkout/pkg/app_errors"
	"cinema-checkout/pkg/logger"

	"go.uber.org/zap"
)

const (
	keySessionID   = "reservation:session_id"
	keyExpiresAt   = "reservation:expires_at"
	keyTickets     = "cart:tickets"
	keyConcessions = "cart:concessions"
	keyPromotion   = "cart:promotion"
)

// StateStore persists one client's checkout state, each piece under its own namespaced key.
// Unreadable entries are deleted and reported as absent.
type StateStore struct {
	store     Store
	namespace string
	log       *zap.Logger
}

func NewStateStore(store Store, namespace string) *StateStore {
	return &StateStore{
		store:     store,
		namespace: namespace,
		log:       logger.WithComponent("storage"),
	}
}

func (s *StateStore) key(name string) string {
	return fmt.Sprintf("state:%s:%s", s.namespace, name)
}

func (s *StateStore) SaveSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if err := s.store.Set(ctx, s.key(keySessionID), []byte(sessionID), 0); err != nil {
		return err
	}
	return s.store.Set(ctx, s.key(keyExpiresAt), []byte(expiresAt.UTC().Format(time.RFC3339Nano)), 0)
}

func (s *StateStore) LoadSession(ctx context.Context) (string, time.Time, bool) {
	rawID, ok := s.read(ctx, keySessionID)
	if !ok {
		return "", time.Time{}, false
	}
	rawExpiry, ok := s.read(ctx, keyExpiresAt)
	if !ok {
		s.discard(ctx, keySessionID, errors.New("expires_at missing"))
		return "", time.Time{}, false
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, string(rawExpiry))
	if err != nil || len(rawID) == 0 {
		if err == nil {
			err = errors.New("empty session id")
		}
		s.discard(ctx, keyExpiresAt, err)
		s.discard(ctx, keySessionID, err)
		return "", time.Time{}, false
	}
	return string(rawID), expiresAt, true
}

func (s *StateStore) ClearSession(ctx context.Context) error {
	return s.store.Delete(ctx, s.key(keySessionID), s.key(keyExpiresAt))
}

// SaveCart implements cart.Persister.
func (s *StateStore) SaveCart(ctx context.Context, snapshot model.CartSnapshot) error {
	tickets, err := json.Marshal(snapshot.TicketGroups)
	if err != nil {
		return fmt.Errorf("marshal tickets: %w", err)
	}
	concessions, err := json.Marshal(snapshot.Concessions)
	if err != nil {
		return fmt.Errorf("marshal concessions: %w", err)
	}

	if err := s.store.Set(ctx, s.key(keyTickets), tickets, 0); err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.key(keyConcessions), concessions, 0); err != nil {
		return err
	}

	if snapshot.Promotion == nil {
		return s.store.Delete(ctx, s.key(keyPromotion))
	}
	promotion, err := json.Marshal(snapshot.Promotion)
	if err != nil {
		return fmt.Errorf("marshal promotion: %w", err)
	}
	return s.store.Set(ctx, s.key(keyPromotion), promotion, 0)
}

// LoadCart reassembles the persisted cart. ok is false when nothing usable was stored.
func (s *StateStore) LoadCart(ctx context.Context) (model.CartSnapshot, bool) {
	var snapshot model.CartSnapshot
	found := false

	if raw, ok := s.read(ctx, keyTickets); ok {
		if err := json.Unmarshal(raw, &snapshot.TicketGroups); err != nil {
			snapshot.TicketGroups = nil
			s.discard(ctx, keyTickets, err)
		} else {
			found = true
		}
	}
	if raw, ok := s.read(ctx, keyConcessions); ok {
		if err := json.Unmarshal(raw, &snapshot.Concessions); err != nil {
			snapshot.Concessions = nil
			s.discard(ctx, keyConcessions, err)
		} else {
			found = true
		}
	}
	if raw, ok := s.read(ctx, keyPromotion); ok {
		var promo model.Promotion
		if err := json.Unmarshal(raw, &promo); err != nil || promo.Code == "" {
			if err == nil {
				err = errors.New("promotion without code")
			}
			s.discard(ctx, keyPromotion, err)
		} else {
			snapshot.Promotion = &promo
			found = true
		}
	}
	return snapshot, found
}

// Clear removes every persisted piece of this client's state.
func (s *StateStore) Clear(ctx context.Context) error {
	return s.store.Delete(ctx,
		s.key(keySessionID), s.key(keyExpiresAt),
		s.key(keyTickets), s.key(keyConcessions), s.key(keyPromotion),
	)
}

func (s *StateStore) read(ctx context.Context, name string) ([]byte, bool) {
	raw, err := s.store.Get(ctx, s.key(name))
	if err != nil {
		if !errors.Is(err, apperrors.ErrCacheMiss) {
			s.log.Warn("Failed to read persisted state", zap.String("key", s.key(name)), zap.Error(err))
		}
		return nil, false
	}
	return raw, true
}

func (s *StateStore) discard(ctx context.Context, name string, cause error) {
	s.log.Warn("Discarding corrupted persisted state",
		zap.String("key", s.key(name)),
		zap.Error(cause),
	)
	if err := s.store.Delete(ctx, s.key(name)); err != nil {
		s.log.Warn("Failed to delete corrupted state", zap.String("key", s.key(name)), zap.Error(err))
	}
}
