package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cinema-checkout/internal/model"
	apperrors "cinema-checkout/pkg/app_errors"
	"cinema-checkout/pkg/logger"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	defaultTickInterval   = time.Second
	defaultRefreshTimeout = 10 * time.Second
)

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithTickInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.tickInterval = d
		}
	}
}

func WithStore(s SessionStore) Option {
	return func(m *Manager) {
		if s != nil {
			m.store = s
		}
	}
}

// WithOnExpire registers a hook called once after a session lapses locally,
// after the mirror refresh.
func WithOnExpire(fn func(expired model.ReservationSession)) Option {
	return func(m *Manager) { m.onExpire = fn }
}

// Manager drives the hold -> confirm | release | expire lifecycle of at most one session.
type Manager struct {
	mu            sync.Mutex
	session       *model.ReservationSession
	generation    uint64
	stopCountdown func()
	closed        bool
	wg            sync.WaitGroup

	busy atomic.Bool

	api          API
	mirror       SeatMirror
	store        SessionStore
	clock        clock.Clock
	tickInterval time.Duration
	onExpire     func(model.ReservationSession)
	log          *zap.Logger
}

func NewManager(api API, mirror SeatMirror, opts ...Option) *Manager {
	m := &Manager{
		api:          api,
		mirror:       mirror,
		store:        nopStore{},
		clock:        clock.New(),
		tickInterval: defaultTickInterval,
		log:          logger.WithComponent("reservation"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hold claims seatCodes on the mirror's current showtime. An active session is
// released only once the replacement hold has succeeded, so a failed call leaves
// it in place. A backend refusal of some seats is reported in the outcome, not as an error.
func (m *Manager) Hold(ctx context.Context, seatCodes []string, userID *string) (*model.HoldOutcome, error) {
	requested := uniqueCodes(seatCodes)
	if len(requested) == 0 {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, apperrors.ErrEmptySelection)
	}
	showtimeID := m.mirror.ShowtimeID()
	if showtimeID == "" {
		return nil, fmt.Errorf("%w: %w: no seat map loaded", apperrors.ErrValidation, apperrors.ErrInvalidInput)
	}

	current := m.Session()
	mySessionID := ""
	if current != nil {
		mySessionID = current.SessionID
	}
	for _, code := range requested {
		seat, ok := m.mirror.Seat(code)
		if !ok {
			return nil, fmt.Errorf("%w: %w: unknown seat %s", apperrors.ErrValidation, apperrors.ErrSeatNotAvailable, code)
		}
		if seat.Status != model.SeatStatusAvailable && !seat.IsHeldBy(mySessionID) {
			return nil, fmt.Errorf("%w: %w: %s is %s", apperrors.ErrValidation, apperrors.ErrSeatNotAvailable, code, seat.Status)
		}
	}

	if !m.busy.CompareAndSwap(false, true) {
		return nil, apperrors.ErrOperationInProgress
	}
	defer m.busy.Store(false)

	req := model.HoldRequest{
		ShowtimeID: showtimeID,
		SeatCodes:  requested,
		UserID:     userID,
	}
	resp, err := m.api.HoldSeats(ctx, req)
	if err != nil {
		return nil, err
	}

	// Seats this client already holds come back as failures while the old session lives.
	if current != nil && current.ShowtimeID == showtimeID && overlaps(resp.FailedCodes, current.ReservedCodes) {
		m.discard(ctx, resp.SessionID)
		if err := m.api.ReleaseReservation(ctx, current.SessionID); err != nil {
			return nil, fmt.Errorf("release previous session: %w", err)
		}
		m.teardown(ctx, current.SessionID)
		current = nil
		resp, err = m.api.HoldSeats(ctx, req)
		if err != nil {
			m.refreshMirror(ctx)
			return nil, err
		}
	}

	reserved, failed := partition(requested, resp.FailedCodes)
	outcome := &model.HoldOutcome{Reserved: reserved, Failed: failed}

	var expiresAt time.Time
	switch {
	case resp.ExpiresAt != nil:
		expiresAt = *resp.ExpiresAt
	case resp.TTLMillis > 0:
		expiresAt = m.clock.Now().Add(time.Duration(resp.TTLMillis) * time.Millisecond)
	}

	if len(reserved) == 0 || expiresAt.IsZero() {
		m.discard(ctx, resp.SessionID)
		m.refreshMirror(ctx)
		if expiresAt.IsZero() {
			return nil, fmt.Errorf("%w: hold response carries no expiry", apperrors.ErrBackendRejection)
		}
		outcome.Reserved = []string{}
		m.log.Info("Hold rejected for every seat",
			zap.String("showtime_id", showtimeID),
			zap.Int("requested", len(requested)),
		)
		return outcome, nil
	}

	if current != nil {
		if err := m.api.ReleaseReservation(ctx, current.SessionID); err != nil {
			m.log.Warn("Failed to release replaced session",
				zap.String("session_id", current.SessionID),
				zap.Error(err),
			)
		}
	}

	session := &model.ReservationSession{
		SessionID:      resp.SessionID,
		ShowtimeID:     showtimeID,
		RequestedCodes: requested,
		ReservedCodes:  reserved,
		FailedCodes:    failed,
		ExpiresAt:      expiresAt,
	}
	m.install(session)
	m.persist(ctx, session)
	m.refreshMirror(ctx)

	outcome.SessionID = session.SessionID
	outcome.ExpiresAt = session.ExpiresAt

	m.log.Info("Seats held",
		zap.String("session_id", session.SessionID),
		zap.String("showtime_id", showtimeID),
		zap.Int("requested", len(requested)),
		zap.Int("reserved", len(reserved)),
		zap.Int("failed", len(failed)),
		zap.Time("expires_at", expiresAt),
	)
	return outcome, nil
}

// Confirm turns the hold into a purchase. An empty sessionID means the active session.
// A hold that already lapsed server-side is cleared locally and ErrSessionExpired is returned.
func (m *Manager) Confirm(ctx context.Context, sessionID, purchaseNumber string) error {
	current := m.Session()
	if current == nil || (sessionID != "" && sessionID != current.SessionID) {
		return apperrors.ErrNoActiveSession
	}
	if !m.busy.CompareAndSwap(false, true) {
		return apperrors.ErrOperationInProgress
	}
	defer m.busy.Store(false)

	if err := m.api.ConfirmReservation(ctx, current.SessionID, purchaseNumber); err != nil {
		if errors.Is(err, apperrors.ErrSessionExpired) {
			m.log.Warn("Session lapsed before confirm",
				zap.String("session_id", current.SessionID),
			)
			m.teardown(ctx, current.SessionID)
			m.refreshMirror(ctx)
		}
		return err
	}

	m.teardown(ctx, current.SessionID)
	m.refreshMirror(ctx)
	m.log.Info("Session confirmed",
		zap.String("session_id", current.SessionID),
		zap.String("purchase_number", purchaseNumber),
	)
	return nil
}

// Release cancels a hold early. Releasing a session that is not active is a no-op.
func (m *Manager) Release(ctx context.Context, sessionID string) error {
	current := m.Session()
	if current == nil || (sessionID != "" && sessionID != current.SessionID) {
		return nil
	}
	if !m.busy.CompareAndSwap(false, true) {
		return apperrors.ErrOperationInProgress
	}
	defer m.busy.Store(false)

	if err := m.api.ReleaseReservation(ctx, current.SessionID); err != nil {
		return err
	}
	m.teardown(ctx, current.SessionID)
	m.refreshMirror(ctx)
	m.log.Info("Session released", zap.String("session_id", current.SessionID))
	return nil
}

// ApplyReservationResult recomputes reserved and failed codes from a fresh server answer.
func (m *Manager) ApplyReservationResult(failedCodes []string) (*model.HoldOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, apperrors.ErrNoActiveSession
	}
	reserved, failed := partition(m.session.RequestedCodes, failedCodes)
	m.session.ReservedCodes = reserved
	m.session.FailedCodes = failed
	return &model.HoldOutcome{
		SessionID: m.session.SessionID,
		ExpiresAt: m.session.ExpiresAt,
		Reserved:  append([]string(nil), reserved...),
		Failed:    append([]string(nil), failed...),
	}, nil
}

// Restore re-attaches the persisted session, if any, using the backend's view of it.
// Expired or unknown sessions are discarded and nil is returned.
func (m *Manager) Restore(ctx context.Context) (*model.ReservationSession, error) {
	sessionID, expiresAt, ok := m.store.LoadSession(ctx)
	if !ok {
		return nil, nil
	}
	if !expiresAt.After(m.clock.Now()) {
		m.log.Info("Discarding expired persisted session", zap.String("session_id", sessionID))
		m.clearStore(ctx)
		return nil, nil
	}

	resp, err := m.api.GetSessionSeats(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionExpired) || errors.Is(err, apperrors.ErrBackendRejection) {
			m.log.Info("Persisted session no longer exists", zap.String("session_id", sessionID))
			m.clearStore(ctx)
			return nil, nil
		}
		return nil, err
	}

	codes := uniqueCodes(resp.SeatCodes)
	if len(codes) == 0 {
		m.clearStore(ctx)
		return nil, nil
	}
	if resp.ExpiresAt != nil {
		expiresAt = *resp.ExpiresAt
	}

	session := &model.ReservationSession{
		SessionID:      sessionID,
		ShowtimeID:     resp.ShowtimeID,
		RequestedCodes: codes,
		ReservedCodes:  append([]string(nil), codes...),
		FailedCodes:    []string{},
		ExpiresAt:      expiresAt,
	}
	m.install(session)
	m.persist(ctx, session)

	m.log.Info("Session restored",
		zap.String("session_id", sessionID),
		zap.Int("seats", len(codes)),
		zap.Time("expires_at", expiresAt),
	)
	cp := *session
	return &cp, nil
}

// Abandon forgets the active session locally without telling the backend.
func (m *Manager) Abandon(ctx context.Context) {
	m.mu.Lock()
	prev := m.clearLocked()
	m.mu.Unlock()
	if prev != nil {
		m.clearStore(ctx)
	}
}

// Session returns a copy of the active session, or nil.
func (m *Manager) Session() *model.ReservationSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	return copySession(m.session)
}

// Remaining is max(0, expiresAt-now) for the active session, 0 when there is none.
func (m *Manager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return 0
	}
	return m.session.Remaining(m.clock.Now())
}

func (m *Manager) InProgress() bool {
	return m.busy.Load()
}

// Close stops the countdown and waits for it to exit. Persisted state is kept.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.stopCountdown != nil {
		m.stopCountdown()
		m.stopCountdown = nil
	}
	m.generation++
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) install(session *model.ReservationSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	m.session = session
	m.startCountdownLocked()
}

// discard releases a backend session that will never be installed.
func (m *Manager) discard(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := m.api.ReleaseReservation(ctx, sessionID); err != nil {
		m.log.Warn("Failed to release unusable session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// teardown clears the session only if it is still the one the caller acted on.
func (m *Manager) teardown(ctx context.Context, sessionID string) {
	m.mu.Lock()
	var prev *model.ReservationSession
	if m.session != nil && m.session.SessionID == sessionID {
		prev = m.clearLocked()
	}
	m.mu.Unlock()
	if prev != nil {
		m.clearStore(ctx)
	}
}

// clearLocked drops the session and cancels its countdown. Caller holds m.mu.
func (m *Manager) clearLocked() *model.ReservationSession {
	prev := m.session
	m.session = nil
	m.generation++
	if m.stopCountdown != nil {
		m.stopCountdown()
		m.stopCountdown = nil
	}
	return prev
}

func (m *Manager) startCountdownLocked() {
	if m.closed {
		return
	}
	gen := m.generation
	ticker := m.clock.Ticker(m.tickInterval)
	done := make(chan struct{})
	var once sync.Once
	m.stopCountdown = func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}

	m.wg.Add(1)
	go m.runCountdown(gen, ticker, done)
}

func (m *Manager) runCountdown(gen uint64, ticker *clock.Ticker, done <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			expired, stop := m.tick(gen)
			if expired != nil {
				m.expire(*expired)
			}
			if stop {
				return
			}
		}
	}
}

// tick returns the lapsed session when the countdown reached zero, and whether the loop should stop.
func (m *Manager) tick(gen uint64) (*model.ReservationSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.session == nil {
		return nil, true
	}
	if m.session.Remaining(m.clock.Now()) > 0 {
		return nil, false
	}
	return m.clearLocked(), true
}

func (m *Manager) expire(session model.ReservationSession) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRefreshTimeout)
	defer cancel()

	m.log.Info("Session expired",
		zap.String("session_id", session.SessionID),
		zap.String("showtime_id", session.ShowtimeID),
		zap.Strings("seat_codes", session.ReservedCodes),
	)
	m.clearStore(ctx)
	m.refreshMirror(ctx)
	if m.onExpire != nil {
		m.onExpire(session)
	}
}

func (m *Manager) persist(ctx context.Context, session *model.ReservationSession) {
	if err := m.store.SaveSession(ctx, session.SessionID, session.ExpiresAt); err != nil {
		m.log.Warn("Failed to persist session",
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
	}
}

func (m *Manager) clearStore(ctx context.Context) {
	if err := m.store.ClearSession(ctx); err != nil {
		m.log.Warn("Failed to clear persisted session", zap.Error(err))
	}
}

func (m *Manager) refreshMirror(ctx context.Context) {
	if err := m.mirror.Refresh(ctx); err != nil {
		m.log.Warn("Seat map refresh failed", zap.Error(err))
	}
}

// partition splits requested into reserved and failed, keeping request order.
// Failed codes that were never requested are ignored.
func partition(requested, failedCodes []string) (reserved, failed []string) {
	rejected := make(map[string]struct{}, len(failedCodes))
	for _, c := range failedCodes {
		rejected[c] = struct{}{}
	}
	reserved = make([]string, 0, len(requested))
	failed = make([]string, 0, len(failedCodes))
	for _, c := range requested {
		if _, ok := rejected[c]; ok {
			failed = append(failed, c)
		} else {
			reserved = append(reserved, c)
		}
	}
	return reserved, failed
}

func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, code := range b {
		set[code] = struct{}{}
	}
	for _, code := range a {
		if _, ok := set[code]; ok {
			return true
		}
	}
	return false
}

func uniqueCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func copySession(s *model.ReservationSession) *model.ReservationSession {
	cp := *s
	cp.RequestedCodes = append([]string(nil), s.RequestedCodes...)
	cp.ReservedCodes = append([]string(nil), s.ReservedCodes...)
	cp.FailedCodes = append([]string(nil), s.FailedCodes...)
	return &cp
}
