// Package journal persists placed orders and fills to Postgres so a
// session's activity survives restarts. The journal is optional: a nil
// *Journal is safe to call and records nothing.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mfields/tradeshell/internal/orders"
	"github.com/mfields/tradeshell/pkg/logger"
)

// Entry is one journaled order row.
type Entry struct {
	ID        uuid.UUID
	OrderID   int64
	ParentID  int64
	Account   string
	Symbol    string
	ConID     int64
	Action    orders.Action
	OrderType orders.OrderType
	Qty       float64
	LmtPrice  float64
	Status    orders.Status
	PlacedAt  time.Time
	UpdatedAt time.Time
}

// Journal handles order and fill persistence. All journal SQL lives in
// this package.
type Journal struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// New creates a journal over an existing pool.
func New(pool *pgxpool.Pool, log *logger.Logger) *Journal {
	return &Journal{pool: pool, logger: log}
}

// RecordOrder inserts a placed order, or refreshes its status on
// conflict. Safe on a nil journal.
func (j *Journal) RecordOrder(ctx context.Context, account string, tr *orders.Trade) error {
	if j == nil {
		return nil
	}

	query := `
		INSERT INTO journal.orders (
			id, order_id, parent_id, account, symbol, con_id,
			action, order_type, qty, lmt_price, status, placed_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now()
	_, err := j.pool.Exec(ctx, query,
		uuid.New(), tr.Order.ID, tr.Order.ParentID, account,
		tr.Contract.Symbol, tr.Contract.ID,
		tr.Order.Action, tr.Order.Type, tr.Order.Qty, tr.Order.LmtPrice,
		tr.Status, tr.SubmittedAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record order: %w", err)
	}
	return nil
}

// UpdateStatus refreshes a journaled order after a status push.
func (j *Journal) UpdateStatus(ctx context.Context, u orders.StatusUpdate) error {
	if j == nil {
		return nil
	}

	query := `
		UPDATE journal.orders
		SET status = $1, updated_at = $2
		WHERE order_id = $3
	`
	_, err := j.pool.Exec(ctx, query, u.Status, time.Now(), u.OrderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// RecordFill inserts one execution report.
func (j *Journal) RecordFill(ctx context.Context, account string, f orders.Fill) error {
	if j == nil {
		return nil
	}

	query := `
		INSERT INTO journal.fills (
			id, exec_id, order_id, account, con_id, symbol,
			action, qty, price, cum_qty, filled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (exec_id) DO NOTHING
	`
	_, err := j.pool.Exec(ctx, query,
		uuid.New(), f.ExecID, f.OrderID, account, f.ConID, f.Symbol,
		f.Action, f.Qty, f.Price, f.CumQty, f.Time,
	)
	if err != nil {
		return fmt.Errorf("failed to record fill: %w", err)
	}
	return nil
}

// RecordCommission attaches a commission report to its fill.
func (j *Journal) RecordCommission(ctx context.Context, c orders.CommissionReport) error {
	if j == nil {
		return nil
	}

	query := `
		UPDATE journal.fills
		SET commission = $1, commission_currency = $2, realized_pnl = $3
		WHERE exec_id = $4
	`
	_, err := j.pool.Exec(ctx, query, c.Commission, c.Currency, c.RealizedPnL, c.ExecID)
	if err != nil {
		return fmt.Errorf("failed to record commission: %w", err)
	}
	return nil
}

// OrdersSince returns journaled orders placed at or after the cutoff,
// oldest first.
func (j *Journal) OrdersSince(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}

	query := `
		SELECT id, order_id, parent_id, account, symbol, con_id,
		       action, order_type, qty, lmt_price, status, placed_at, updated_at
		FROM journal.orders
		WHERE placed_at >= $1
		ORDER BY placed_at ASC
	`

	rows, err := j.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.OrderID, &e.ParentID, &e.Account, &e.Symbol, &e.ConID,
			&e.Action, &e.OrderType, &e.Qty, &e.LmtPrice, &e.Status,
			&e.PlacedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return entries, nil
}

// Order returns one journaled order by its broker order id.
func (j *Journal) Order(ctx context.Context, orderID int64) (*Entry, error) {
	if j == nil {
		return nil, nil
	}

	query := `
		SELECT id, order_id, parent_id, account, symbol, con_id,
		       action, order_type, qty, lmt_price, status, placed_at, updated_at
		FROM journal.orders
		WHERE order_id = $1
	`

	var e Entry
	err := j.pool.QueryRow(ctx, query, orderID).Scan(
		&e.ID, &e.OrderID, &e.ParentID, &e.Account, &e.Symbol, &e.ConID,
		&e.Action, &e.OrderType, &e.Qty, &e.LmtPrice, &e.Status,
		&e.PlacedAt, &e.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &e, nil
}
