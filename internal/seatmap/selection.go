package seatmap

import (
	"fmt"
	"sync"

	apperrors "cinema-checkout/pkg/app_errors"
)

type ToggleResult string

const (
	ToggleAdded        ToggleResult = "added"
	ToggleRemoved      ToggleResult = "removed"
	ToggleLimitReached ToggleResult = "limit_reached"
)

// Selection is the caller's current seat pick, bounded by max (the purchased
// ticket quantity). Adding beyond max leaves the set unchanged.
type Selection struct {
	mu    sync.RWMutex
	max   int
	codes []string
}

func NewSelection(limit int) *Selection {
	if limit < 0 {
		limit = 0
	}
	return &Selection{max: limit}
}

// Toggle adds or removes view's seat. A non-clickable seat is a validation error;
// reaching the limit is not an error and reports ToggleLimitReached.
func (s *Selection) Toggle(view SeatView) (ToggleResult, error) {
	if !view.Clickable {
		return "", fmt.Errorf("%w: %w: %s is %s", apperrors.ErrValidation, apperrors.ErrSeatNotAvailable, view.Code, view.State)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, code := range s.codes {
		if code == view.Code {
			s.codes = append(s.codes[:i], s.codes[i+1:]...)
			return ToggleRemoved, nil
		}
	}
	if len(s.codes) >= s.max {
		return ToggleLimitReached, nil
	}
	s.codes = append(s.codes, view.Code)
	return ToggleAdded, nil
}

// SetMax changes the bound; when it shrinks below the current size the earliest picks are kept.
func (s *Selection) SetMax(limit int) {
	if limit < 0 {
		limit = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.max = limit
	if len(s.codes) > limit {
		s.codes = s.codes[:limit]
	}
}

func (s *Selection) Max() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.max
}

func (s *Selection) Contains(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.codes {
		if c == code {
			return true
		}
	}
	return false
}

func (s *Selection) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.codes...)
}

func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codes)
}

// Remove drops the given codes, e.g. seats the backend refused during a hold.
func (s *Selection) Remove(codes ...string) {
	if len(codes) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		drop[c] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.codes[:0]
	for _, c := range s.codes {
		if _, ok := drop[c]; !ok {
			kept = append(kept, c)
		}
	}
	s.codes = kept
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = nil
}
