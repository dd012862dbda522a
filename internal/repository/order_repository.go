package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/storefront-api/internal/model"
)

// OrderRepo manages orders and the stock they reserve.
type OrderRepo struct{ db *sql.DB }

func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// OrderLine is one product/quantity pair of a checkout.
type OrderLine struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// StatusChange describes a status transition committed by UpdateStatus or
// CancelForUser.
type StatusChange struct {
	OrderID uint64
	UserID  uint64
	From    string
	To      string
}

const orderDetailSelect = `SELECT
		o.id, o.user_id, o.product_id, o.quantity, o.unit_price, o.status, o.checkout_ref,
		o.created_at, o.updated_at,
		p.name, p.category, u.name, u.email
	FROM orders o
	JOIN products p ON p.id = o.product_id
	JOIN users u    ON u.id = o.user_id`

func scanOrderDetail(row interface{ Scan(...any) error }) (model.OrderDetail, error) {
	var d model.OrderDetail
	err := row.Scan(
		&d.ID, &d.UserID, &d.ProductID, &d.Quantity, &d.UnitPrice, &d.Status, &d.CheckoutRef,
		&d.CreatedAt, &d.UpdatedAt,
		&d.ProductName, &d.ProductCategory, &d.UserName, &d.UserEmail,
	)
	return d, err
}

// withTx runs fn inside a transaction, committing when it returns nil and
// rolling back otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	return fn(tx)
}

type lockedProduct struct {
	name  string
	price decimal.Decimal
	stock int
}

// Place creates one order row per line for userID.  All product rows are
// locked in ID order, every line is checked against the remaining stock and
// the stock is decremented.  Rows share a fresh checkout reference.  Any
// failure rolls back the whole checkout and returns *ProductMissingError or
// *InsufficientStockError for the first offending line, or ErrUserNotFound
// when userID does not exist.
func (r *OrderRepo) Place(ctx context.Context, userID uint64, lines []OrderLine) ([]model.Order, error) {
	if len(lines) == 0 {
		return nil, errors.New("no order lines")
	}
	ids := make([]uint64, 0, len(lines))
	seen := make(map[uint64]bool, len(lines))
	for _, l := range lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	ref := uuid.NewString()
	now := time.Now().UTC()
	orders := make([]model.Order, 0, len(lines))

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, name, price, stock FROM products
			 WHERE id IN (`+strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")+`)
			 ORDER BY id FOR UPDATE`, args...)
		if err != nil {
			return err
		}
		locked := make(map[uint64]*lockedProduct, len(ids))
		for rows.Next() {
			var id uint64
			lp := &lockedProduct{}
			if err := rows.Scan(&id, &lp.name, &lp.price, &lp.stock); err != nil {
				rows.Close()
				return err
			}
			locked[id] = lp
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, l := range lines {
			p, ok := locked[l.ProductID]
			if !ok {
				return &ProductMissingError{ID: l.ProductID}
			}
			if l.Quantity <= 0 || p.stock < l.Quantity {
				return &InsufficientStockError{ProductID: l.ProductID, Name: p.name, Available: p.stock, Requested: l.Quantity}
			}
			p.stock -= l.Quantity
		}

		for _, l := range lines {
			p := locked[l.ProductID]
			if _, err := tx.ExecContext(ctx,
				"UPDATE products SET stock = stock - ? WHERE id = ?", l.Quantity, l.ProductID); err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO orders (user_id, product_id, quantity, unit_price, status, checkout_ref)
				 VALUES (?,?,?,?,?,?)`,
				userID, l.ProductID, l.Quantity, p.price, model.OrderPending, ref)
			if err != nil {
				if mysqlErrno(err) == errNoReferencedRow {
					return ErrUserNotFound
				}
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			orders = append(orders, model.Order{
				ID:          uint64(id),
				UserID:      userID,
				ProductID:   l.ProductID,
				Quantity:    l.Quantity,
				UnitPrice:   p.price,
				Status:      model.OrderPending,
				CheckoutRef: ref,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepo) queryDetails(ctx context.Context, q string, args ...any) ([]model.OrderDetail, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.OrderDetail{}
	for rows.Next() {
		d, err := scanOrderDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// List returns every order, newest first.
func (r *OrderRepo) List(ctx context.Context) ([]model.OrderDetail, error) {
	return r.queryDetails(ctx, orderDetailSelect+" ORDER BY o.created_at DESC, o.id DESC")
}

// ListByUser returns the orders of one user, newest first.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64) ([]model.OrderDetail, error) {
	return r.queryDetails(ctx, orderDetailSelect+" WHERE o.user_id = ? ORDER BY o.created_at DESC, o.id DESC", userID)
}

// GetByID fetches one order with its product and customer.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (model.OrderDetail, error) {
	d, err := scanOrderDetail(r.db.QueryRowContext(ctx, orderDetailSelect+" WHERE o.id = ? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrOrderNotFound
	}
	return d, err
}

type lockedOrder struct {
	userID    uint64
	productID uint64
	quantity  int
	status    string
}

func lockOrder(ctx context.Context, tx *sql.Tx, id uint64) (lockedOrder, error) {
	var o lockedOrder
	err := tx.QueryRowContext(ctx,
		"SELECT user_id, product_id, quantity, status FROM orders WHERE id = ? FOR UPDATE", id).
		Scan(&o.userID, &o.productID, &o.quantity, &o.status)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrOrderNotFound
	}
	return o, err
}

func restoreStock(ctx context.Context, tx *sql.Tx, o lockedOrder) error {
	_, err := tx.ExecContext(ctx, "UPDATE products SET stock = stock + ? WHERE id = ?", o.quantity, o.productID)
	return err
}

func setStatus(ctx context.Context, tx *sql.Tx, id uint64, status string) error {
	_, err := tx.ExecContext(ctx, "UPDATE orders SET status = ? WHERE id = ?", status, id)
	return err
}

// UpdateStatus moves an order to status.  Cancelled is terminal: leaving it
// yields ErrConflict.  Entering cancelled returns the units to stock.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id uint64, status string) (StatusChange, error) {
	if !model.ValidOrderStatus(status) {
		return StatusChange{}, errors.New("invalid order status")
	}
	var change StatusChange
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		o, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		change = StatusChange{OrderID: id, UserID: o.userID, From: o.status, To: status}
		if o.status == status {
			return nil
		}
		if o.status == model.OrderCancelled {
			return ErrConflict
		}
		if status == model.OrderCancelled {
			if err := restoreStock(ctx, tx, o); err != nil {
				return err
			}
		}
		return setStatus(ctx, tx, id, status)
	})
	if err != nil {
		return StatusChange{}, err
	}
	return change, nil
}

// CancelForUser cancels a pending order owned by userID and returns its
// units to stock.
func (r *OrderRepo) CancelForUser(ctx context.Context, id, userID uint64) (StatusChange, error) {
	var change StatusChange
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		o, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.userID != userID {
			return ErrForbidden
		}
		if o.status != model.OrderPending {
			return ErrNotPending
		}
		if err := restoreStock(ctx, tx, o); err != nil {
			return err
		}
		change = StatusChange{OrderID: id, UserID: userID, From: o.status, To: model.OrderCancelled}
		return setStatus(ctx, tx, id, model.OrderCancelled)
	})
	if err != nil {
		return StatusChange{}, err
	}
	return change, nil
}

// Delete removes an order.  A pending order returns its units to stock
// first.
func (r *OrderRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		o, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.status == model.OrderPending {
			if err := restoreStock(ctx, tx, o); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM orders WHERE id = ?", id)
		return err
	})
}

// Stats aggregates orders per status in lifecycle order.
func (r *OrderRepo) Stats(ctx context.Context) ([]model.OrderStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(quantity), 0)
		 FROM orders
		 GROUP BY status
		 ORDER BY FIELD(status, 'pending', 'shipped', 'delivered', 'cancelled')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.OrderStat{}
	for rows.Next() {
		var s model.OrderStat
		if err := rows.Scan(&s.Status, &s.Count, &s.TotalQuantity); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
