package postgres

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
	var reversedAt sql.NullTime
	if err := row.Scan(&order.ID, &order.SessionID, &order.Status, &order.TableRef, &order.Customer, &order.Notes,
		&order.SubtotalCents, &order.TaxRateBP, &order.TaxCents, &order.TotalCents, &order.ReversalReason,
		&reversedAt, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	order.ReversedAt = ptrTime(reversedAt)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

// queryOrders drains the order rows before loading lines and payments; a
// transaction's connection cannot serve a second query while rows are open.
func queryOrders(ctx context.Context, q queryer, query string, args ...any) ([]domain.Order, error) {
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
		WHERE order_id = $1
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
	orders, err := queryOrders(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, store.ErrNotFound
	}
	return &orders[0], nil
}

func sessionOrders(ctx context.Context, q queryer, sessionID int64) ([]domain.Order, error) {
	return queryOrders(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE session_id = $1 ORDER BY id`, sessionID)
}

// CreateOrder share-locks the session, row-locks each product, validates
// every line, then applies guarded stock decrements and inserts the order in
// one serializable transaction.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Lines) == 0 {
		return nil, store.ErrInvalidOrder
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	var sessionStatus string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status FROM cash_sessions WHERE id = $1 FOR SHARE
	`, order.SessionID).Scan(&sessionStatus)
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
		product, err := getProduct(ctx, pgTx, line.ProductID, true)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if product != nil {
			product.Stock -= reserved[product.ID]
		}
		if lineErr := store.CheckLine(i, domain.OrderLineRequest{ProductID: line.ProductID, Qty: line.Qty}, product); lineErr != nil {
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
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = $2
			WHERE id = $3 AND stock >= $1
		`, line.Qty, now, line.ProductID)
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
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO orders (
			session_id, status, table_ref, customer, notes, subtotal_cents, tax_rate_bp,
			tax_cents, total_cents, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
		RETURNING id
	`, order.SessionID, order.Status, order.TableRef, order.Customer, order.Notes, order.SubtotalCents,
		order.TaxRateBP, order.TaxCents, order.TotalCents, order.CreatedAt).Scan(&order.ID)
	if err != nil {
		return nil, store.Storage(err)
	}
	if err := insertLines(ctx, pgTx, order.ID, priced); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, store.Storage(err)
	}

	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.CreatedAt
	order.Payments = nil
	return &order, nil
}

func insertLines(ctx context.Context, q queryer, orderID int64, lines []domain.OrderLine) error {
	for i, line := range lines {
		_, err := q.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, product_name, category, qty, unit_price_cents, line_subtotal_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
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
	var args argList
	where := []string{"true"}
	if filter.Status != "" {
		where = append(where, "status = "+args.add(filter.Status))
	}
	if filter.TableRef != "" {
		where = append(where, "table_ref = "+args.add(filter.TableRef))
	}
	if filter.SessionID != 0 {
		where = append(where, "session_id = "+args.add(filter.SessionID))
	}
	var from, to time.Time
	if filter.From != nil {
		from = *filter.From
	}
	if filter.To != nil {
		to = *filter.To
	}
	where = args.timeRange(where, "created_at", from, to)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += " LIMIT " + args.add(filter.Limit)
	}
	return queryOrders(ctx, s.db, query, args.values...)
}

func (s *Store) SessionOrders(ctx context.Context, sessionID int64) ([]domain.Order, error) {
	return sessionOrders(ctx, s.db, sessionID)
}

func (s *Store) CompletedOrders(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	var args argList
	where := []string{"status = " + args.add(domain.OrderStatusCompleted)}
	where = args.timeRange(where, "created_at", from, to)
	return queryOrders(ctx, s.db, `SELECT `+orderColumns+` FROM orders WHERE `+strings.Join(where, " AND ")+` ORDER BY id`, args.values...)
}

func lockOrderStatus(ctx context.Context, q queryer, id int64) (string, error) {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
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

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	current, err := lockOrderStatus(ctx, pgTx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(current, status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, status)
	}
	_, err = pgTx.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, at)
	if err != nil {
		return nil, store.Storage(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, store.Storage(err)
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) ReverseOrder(ctx context.Context, id int64, status string, reason string, at time.Time) (*domain.Order, error) {
	if !domain.IsReversal(status) {
		return nil, store.ErrInvalidTransition
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	current, err := lockOrderStatus(ctx, pgTx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(current, status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, status)
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, reversal_reason = $3, reversed_at = $4, updated_at = $4
		WHERE id = $1
	`, id, status, reason, at)
	if err != nil {
		return nil, store.Storage(err)
	}
	_, err = pgTx.ExecContext(ctx, `
		UPDATE products p
		SET stock = p.stock + l.qty, updated_at = $2
		FROM (
			SELECT product_id, SUM(qty) AS qty
			FROM order_lines
			WHERE order_id = $1
			GROUP BY product_id
		) l
		WHERE p.id = l.product_id
	`, id, at)
	if err != nil {
		return nil, store.Storage(err)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, store.Storage(err)
	}
	return s.GetOrder(ctx, id)
}
