package repository

import (
	"context"
	"errors"
	"fmt"

	"cinema-checkout/internal/model"
	apperrors "cinema-checkout/pkg/app_errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type OrderHistoryRepository interface {
	// Save 寫入一筆訂單紀錄；order_id 已存在時不覆蓋，inserted 回傳 false
	Save(ctx context.Context, event *model.OrderConfirmedEvent) (entry *model.OrderHistoryEntry, inserted bool, err error)
	FindByOrderID(ctx context.Context, orderID string) (*model.OrderHistoryEntry, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.OrderHistoryEntry, error)
}

type OrderHistoryRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewOrderHistoryRepository(pool *pgxpool.Pool) OrderHistoryRepository {
	return &OrderHistoryRepositoryImpl{
		pool: pool,
	}
}

const orderHistoryColumns = `id, order_id, purchase_number, user_id, showtime_ids, seat_codes,
		       grand_total::text, confirmed_at, created_at`

func (r *OrderHistoryRepositoryImpl) Save(ctx context.Context, event *model.OrderConfirmedEvent) (*model.OrderHistoryEntry, bool, error) {
	query := `
		INSERT INTO order_history (
			order_id, purchase_number, user_id, showtime_ids, seat_codes, grand_total, confirmed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING ` + orderHistoryColumns

	showtimes := event.ShowtimeIDs
	if showtimes == nil {
		showtimes = []string{}
	}
	seats := event.SeatCodes
	if seats == nil {
		seats = []string{}
	}

	entry, err := scanEntry(r.pool.QueryRow(ctx, query,
		event.OrderID,
		event.PurchaseNumber,
		event.UserID,
		showtimes,
		seats,
		event.GrandTotal.StringFixed(2),
		event.ConfirmedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, findErr := r.FindByOrderID(ctx, event.OrderID)
		if findErr != nil {
			return nil, false, findErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to save order history: %w", err)
	}
	return entry, true, nil
}

func (r *OrderHistoryRepositoryImpl) FindByOrderID(ctx context.Context, orderID string) (*model.OrderHistoryEntry, error) {
	query := `
		SELECT ` + orderHistoryColumns + `
		FROM order_history
		WHERE order_id = $1
	`

	entry, err := scanEntry(r.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (r *OrderHistoryRepositoryImpl) ListByUser(ctx context.Context, userID string, limit int) ([]*model.OrderHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + orderHistoryColumns + `
		FROM order_history
		WHERE user_id = $1
		ORDER BY confirmed_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*model.OrderHistoryEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (*model.OrderHistoryEntry, error) {
	var entry model.OrderHistoryEntry
	var grandTotal string
	err := row.Scan(
		&entry.ID,
		&entry.OrderID,
		&entry.PurchaseNumber,
		&entry.UserID,
		&entry.ShowtimeIDs,
		&entry.SeatCodes,
		&grandTotal,
		&entry.ConfirmedAt,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if entry.GrandTotal, err = decimal.NewFromString(grandTotal); err != nil {
		return nil, fmt.Errorf("invalid grand_total %q: %w", grandTotal, err)
	}
	return &entry, nil
}
