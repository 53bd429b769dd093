package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

const orderColumns = `id, session_id, status, table_ref, customer, notes, subtotal_cents, tax_rate_bp,
	tax_cents, total_cents, reversal_reason, reversed_at, created_at, updated_at`

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	var reversedAt sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&order.ID, &order.SessionID, &order.Status, &order.TableRef, &order.Customer, &order.Notes,
		&order.SubtotalCents, &order.TaxRateBP, &order.TaxCents, &order.TotalCents, &order.ReversalReason,
		&reversedAt, &createdAt, &updatedAt); err != nil {
		return domain.Order{}, err
	}
	var err error
	if order.ReversedAt, err = parseNullTime(reversedAt); err != nil {
		return domain.Order{}, err
	}
	if order.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Order{}, err
	}
	if order.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// queryOrders loads matching orders and then their lines and payments. The
// order rows are drained before the detail queries run because the pool
// holds a single connection.
func queryOrders(ctx context.Context, q queryer, where []string, args []any, orderBy string, limit int) ([]domain.Order, error) {
	if len(where) == 0 {
		where = []string{"1 = 1"}
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ` + orderBy
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Storage(err)
	}
	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, store.Storage(err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, store.Storage(err)
	}
	_ = rows.Close()

	for i := range orders {
		if err := loadOrderDetails(ctx, q, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func loadOrderDetails(ctx context.Context, q queryer, order *domain.Order) error {
	lineRows, err := q.QueryContext(ctx, `
		SELECT product_id, product_name, category, qty, unit_price_cents, line_subtotal_cents
		FROM order_lines
		WHERE order_id = ?
		ORDER BY line_no
	`, order.ID)
	if err != nil {
		return store.Storage(err)
	}
	order.Lines = make([]domain.OrderLine, 0, 4)
	for lineRows.Next() {
		var line domain.OrderLine
		if err := lineRows.Scan(&line.ProductID, &line.ProductName, &line.Category, &line.Qty,
			&line.UnitPriceCents, &line.LineSubtotalCents); err != nil {
			_ = lineRows.Close()
			return store.Storage(err)
		}
		order.Lines = append(order.Lines, line)
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return store.Storage(err)
	}
	_ = lineRows.Close()

	payments, err := listPayments(ctx, q, order.ID)
	if err != nil {
		return err
	}
	order.Payments = payments
	return nil
}

func getOrder(ctx context.Context, q queryer, id int64) (*domain.Order, error) {
	orders, err := queryOrders(ctx, q, []string{"id = ?"}, []any{id}, "id", 1)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, store.ErrNotFound
	}
	return &orders[0], nil
}

// CreateOrder validates every line against the stored products, then
// decrements stock with a guarded update and inserts the order in the same
// transaction.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Lines) == 0 {
		return nil, store.ErrInvalidOrder
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	var sessionStatus string
	err = tx.QueryRowContext(ctx, `SELECT status FROM cash_sessions WHERE id = ?`, order.SessionID).Scan(&sessionStatus)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, store.Storage(err)
	}
	if sessionStatus != domain.SessionStatusOpen {
		return nil, store.ErrNoOpenSession
	}

	validation := &store.ValidationError{}
	reserved := make(map[int64]int, len(order.Lines))
	priced := make([]domain.OrderLine, 0, len(order.Lines))
	products := make([]domain.Product, 0, len(order.Lines))
	indexes := make([]int, 0, len(order.Lines))
	for i, line := range order.Lines {
		product, err := getProduct(ctx, tx, line.ProductID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if product != nil {
			product.Stock -= reserved[product.ID]
		}
		req := domain.OrderLineRequest{ProductID: line.ProductID, Qty: line.Qty}
		if lineErr := store.CheckLine(i, req, product); lineErr != nil {
			validation.Add(*lineErr)
			continue
		}
		reserved[product.ID] += line.Qty
		priced = append(priced, store.PriceLine(*product, line.Qty))
		products = append(products, *product)
		indexes = append(indexes, i)
	}
	if err := validation.OrNil(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	for i, line := range priced {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - ?, updated_at = ?
			WHERE id = ? AND stock >= ?
		`, line.Qty, formatTime(now), line.ProductID, line.Qty)
		if err != nil {
			return nil, store.Storage(err)
		}
		if err := expectOneRow(res, store.RaceLost(indexes[i], products[i], line.Qty)); err != nil {
			return nil, err
		}
	}

	order.Lines = priced
	order.Status = domain.OrderStatusPending
	order.SubtotalCents, order.TaxCents, order.TotalCents = domain.Totals(priced, order.TaxRateBP)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			session_id, status, table_ref, customer, notes, subtotal_cents, tax_rate_bp,
			tax_cents, total_cents, reversal_reason, reversed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', NULL, ?, ?)
	`, order.SessionID, order.Status, order.TableRef, order.Customer, order.Notes, order.SubtotalCents,
		order.TaxRateBP, order.TaxCents, order.TotalCents, formatTime(order.CreatedAt), formatTime(order.CreatedAt))
	if err != nil {
		return nil, store.Storage(err)
	}
	if order.ID, err = res.LastInsertId(); err != nil {
		return nil, store.Storage(err)
	}
	if err := insertLines(ctx, tx, order.ID, priced); err != nil {
		return nil, err
	}

	created, err := getOrder(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, store.Storage(err)
	}
	return created, nil
}

func insertLines(ctx context.Context, q queryer, orderID int64, lines []domain.OrderLine) error {
	for i, line := range lines {
		_, err := q.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, product_name, category, qty, unit_price_cents, line_subtotal_cents)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, orderID, i+1, line.ProductID, line.ProductName, line.Category, line.Qty, line.UnitPriceCents, line.LineSubtotalCents)
		if err != nil {
			return store.Storage(err)
		}
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return getOrder(ctx, s.db, id)
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	where := make([]string, 0, 5)
	args := make([]any, 0, 5)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.TableRef != "" {
		where = append(where, "table_ref = ?")
		args = append(args, filter.TableRef)
	}
	if filter.SessionID != 0 {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	var from, to time.Time
	if filter.From != nil {
		from = *filter.From
	}
	if filter.To != nil {
		to = *filter.To
	}
	where, args = rangeClause(where, args, "created_at", from, to)
	return queryOrders(ctx, s.db, where, args, "created_at DESC, id DESC", filter.Limit)
}

func (s *Store) SessionOrders(ctx context.Context, sessionID int64) ([]domain.Order, error) {
	return queryOrders(ctx, s.db, []string{"session_id = ?"}, []any{sessionID}, "id ASC", 0)
}

func (s *Store) CompletedOrders(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	where, args := rangeClause([]string{"status = ?"}, []any{domain.OrderStatusCompleted}, "created_at", from, to)
	return queryOrders(ctx, s.db, where, args, "id ASC", 0)
}

func lockOrderStatus(ctx context.Context, q queryer, id int64) (string, error) {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", store.Storage(err)
	}
	return status, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status string, at time.Time) (*domain.Order, error) {
	if domain.IsReversal(status) {
		return nil, store.ErrInvalidTransition
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockOrderStatus(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(current, status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, status)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, status, formatTime(at), id, current)
	if err != nil {
		return nil, store.Storage(err)
	}
	if err := expectOneRow(res, store.ErrInvalidTransition); err != nil {
		return nil, err
	}

	updated, err := getOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, store.Storage(err)
	}
	return updated, nil
}

// ReverseOrder flips the status with a guard on the previous value, so stock
// is restored by exactly one caller.
func (s *Store) ReverseOrder(ctx context.Context, id int64, status string, reason string, at time.Time) (*domain.Order, error) {
	if !domain.IsReversal(status) {
		return nil, store.ErrInvalidTransition
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockOrderStatus(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(current, status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, status)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, reversal_reason = ?, reversed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, reason, formatTime(at), formatTime(at), id, current)
	if err != nil {
		return nil, store.Storage(err)
	}
	if err := expectOneRow(res, store.ErrInvalidTransition); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + (SELECT COALESCE(SUM(l.qty), 0) FROM order_lines l WHERE l.order_id = ? AND l.product_id = products.id),
			updated_at = ?
		WHERE id IN (SELECT product_id FROM order_lines WHERE order_id = ?)
	`, id, formatTime(at), id)
	if err != nil {
		return nil, store.Storage(err)
	}

	reversed, err := getOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, store.Storage(err)
	}
	return reversed, nil
}
