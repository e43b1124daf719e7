package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/tablesplit/tablesplit/pkg/money"
)

// Repository is the Postgres-backed Store. Item mutations run in a
// transaction together with the totals recompute so the order aggregate is
// never observable in a half-updated state.
type Repository struct {
	db     *sql.DB
	taxBPS int
}

// NewRepository creates a new order repository. taxBPS is the tax rate in
// basis points applied to order subtotals.
func NewRepository(db *sql.DB, taxBPS int) *Repository {
	return &Repository{db: db, taxBPS: taxBPS}
}

const orderColumns = `id, session_id, owner_participant_id, status, subtotal, tax_amount, total_amount, notes, cancel_reason, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*Order, error) {
	ord := &Order{}
	err := row.Scan(
		&ord.ID,
		&ord.SessionID,
		&ord.OwnerParticipantID,
		&ord.Status,
		&ord.Subtotal,
		&ord.TaxAmount,
		&ord.TotalAmount,
		&ord.Notes,
		&ord.CancelReason,
		&ord.CreatedAt,
		&ord.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ord, nil
}

// CreateOrder inserts a new pending order.
func (r *Repository) CreateOrder(ctx context.Context, sessionID, ownerParticipantID int64, notes string) (*Order, error) {
	query := `
		INSERT INTO orders (session_id, owner_participant_id, notes)
		VALUES ($1, $2, $3)
		RETURNING ` + orderColumns

	ord, err := scanOrder(r.db.QueryRowContext(ctx, query, sessionID, ownerParticipantID, notes))
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	ord.Items = []*Item{}
	return ord, nil
}

// GetOrder retrieves an order with its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	ord, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := r.itemsByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	ord.Items = items
	return ord, nil
}

// OrdersBySession retrieves all orders of a session with their items.
func (r *Repository) OrdersBySession(ctx context.Context, sessionID int64) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE session_id = $1 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, ord)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ord := range orders {
		items, err := r.itemsByOrder(ctx, ord.ID)
		if err != nil {
			return nil, err
		}
		ord.Items = items
	}
	return orders, nil
}

// GetItem retrieves a single order item.
func (r *Repository) GetItem(ctx context.Context, id int64) (*Item, error) {
	query := `
		SELECT id, order_id, menu_item_id, quantity, unit_price, customizations, notes, total_price
		FROM order_items
		WHERE id = $1
	`

	item := &Item{}
	var customizations []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID,
		&item.OrderID,
		&item.MenuItemID,
		&item.Quantity,
		&item.UnitPrice,
		&customizations,
		&item.Notes,
		&item.TotalPrice,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order item: %w", err)
	}
	if err := json.Unmarshal(customizations, &item.Customizations); err != nil {
		return nil, fmt.Errorf("failed to decode customizations: %w", err)
	}
	return item, nil
}

// InsertItem adds a line item and recomputes the order totals in one
// transaction.
func (r *Repository) InsertItem(ctx context.Context, item *Item) (*Item, error) {
	customizations, err := json.Marshal(item.Customizations)
	if err != nil {
		return nil, fmt.Errorf("failed to encode customizations: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO order_items (order_id, menu_item_id, quantity, unit_price, customizations, notes, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, query,
		item.OrderID, item.MenuItemID, item.Quantity, item.UnitPrice, customizations, item.Notes, item.TotalPrice,
	).Scan(&item.ID); err != nil {
		return nil, fmt.Errorf("failed to insert order item: %w", err)
	}

	if err := r.recomputeTotals(ctx, tx, item.OrderID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order item: %w", err)
	}
	return item, nil
}

// UpdateItemQuantity changes a line item's quantity and recomputes totals.
func (r *Repository) UpdateItemQuantity(ctx context.Context, id int64, quantity int, totalPrice money.Cents) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var orderID int64
	query := `UPDATE order_items SET quantity = $2, total_price = $3 WHERE id = $1 RETURNING order_id`
	if err := tx.QueryRowContext(ctx, query, id, quantity, totalPrice).Scan(&orderID); err != nil {
		return fmt.Errorf("failed to update order item: %w", err)
	}

	if err := r.recomputeTotals(ctx, tx, orderID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit quantity update: %w", err)
	}
	return nil
}

// DeleteItem removes a line item and recomputes totals.
func (r *Repository) DeleteItem(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var orderID int64
	query := `DELETE FROM order_items WHERE id = $1 RETURNING order_id`
	if err := tx.QueryRowContext(ctx, query, id).Scan(&orderID); err != nil {
		return fmt.Errorf("failed to delete order item: %w", err)
	}

	if err := r.recomputeTotals(ctx, tx, orderID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit item deletion: %w", err)
	}
	return nil
}

// UpdateOrderStatus transitions the order with a compare-and-set on its
// current status.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id int64, from []Status, to Status, cancelReason *string) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	query := `
		UPDATE orders
		SET status = $2, cancel_reason = COALESCE($3, cancel_reason), updated_at = now()
		WHERE id = $1 AND status = ANY($4)
	`
	res, err := r.db.ExecContext(ctx, query, id, to, cancelReason, pq.Array(states))
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetOwner reassigns an order to a new owner participant.
func (r *Repository) SetOwner(ctx context.Context, orderID, ownerParticipantID int64) error {
	query := `UPDATE orders SET owner_participant_id = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, orderID, ownerParticipantID); err != nil {
		return fmt.Errorf("failed to set order owner: %w", err)
	}
	return nil
}

// OpenOrderCountByOwner counts non-terminal orders owned by a participant.
func (r *Repository) OpenOrderCountByOwner(ctx context.Context, participantID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM orders
		WHERE owner_participant_id = $1 AND status NOT IN ('delivered', 'cancelled')
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, participantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open orders: %w", err)
	}
	return count, nil
}

// OpenOrderCountBySession counts non-terminal orders in a session.
func (r *Repository) OpenOrderCountBySession(ctx context.Context, sessionID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM orders
		WHERE session_id = $1 AND status NOT IN ('delivered', 'cancelled')
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open orders: %w", err)
	}
	return count, nil
}

// ReassignOpenOrders moves every non-terminal order between owners.
func (r *Repository) ReassignOpenOrders(ctx context.Context, from, to int64) (int64, error) {
	query := `
		UPDATE orders
		SET owner_participant_id = $2, updated_at = now()
		WHERE owner_participant_id = $1 AND status NOT IN ('delivered', 'cancelled')
	`
	res, err := r.db.ExecContext(ctx, query, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign orders: %w", err)
	}
	return res.RowsAffected()
}

// recomputeTotals rereads the item sum inside the transaction and writes the
// derived subtotal, tax and total back to the order row.
func (r *Repository) recomputeTotals(ctx context.Context, tx *sql.Tx, orderID int64) error {
	var subtotal money.Cents
	sumQuery := `SELECT COALESCE(SUM(total_price), 0) FROM order_items WHERE order_id = $1`
	if err := tx.QueryRowContext(ctx, sumQuery, orderID).Scan(&subtotal); err != nil {
		return fmt.Errorf("failed to sum order items: %w", err)
	}

	tax := money.Percent(subtotal, r.taxBPS)
	updateQuery := `
		UPDATE orders
		SET subtotal = $2, tax_amount = $3, total_amount = $4, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, updateQuery, orderID, subtotal, tax, subtotal+tax); err != nil {
		return fmt.Errorf("failed to update order totals: %w", err)
	}
	return nil
}

func (r *Repository) itemsByOrder(ctx context.Context, orderID int64) ([]*Item, error) {
	query := `
		SELECT id, order_id, menu_item_id, quantity, unit_price, customizations, notes, total_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	items := []*Item{}
	for rows.Next() {
		item := &Item{}
		var customizations []byte
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.MenuItemID,
			&item.Quantity,
			&item.UnitPrice,
			&customizations,
			&item.Notes,
			&item.TotalPrice,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		if err := json.Unmarshal(customizations, &item.Customizations); err != nil {
			return nil, fmt.Errorf("failed to decode customizations: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
