package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

func (s *Store) AddPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.AmountCents <= 0 || !domain.IsPaymentMethod(payment.Method) {
		return nil, store.ErrInvalidInput
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	status, err := lockOrderStatus(ctx, tx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if domain.IsReversal(status) {
		return nil, fmt.Errorf("%w: order is %s", store.ErrInvalidTransition, status)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO payments (order_id, method, amount_cents, reference, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, payment.OrderID, payment.Method, payment.AmountCents, payment.Reference, formatTime(payment.CreatedAt))
	if err != nil {
		return nil, store.Storage(err)
	}
	if payment.ID, err = res.LastInsertId(); err != nil {
		return nil, store.Storage(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, store.Storage(err)
	}
	payment.CreatedAt = payment.CreatedAt.UTC()
	return &payment, nil
}

func (s *Store) ListPayments(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	if _, err := lockOrderStatus(ctx, s.db, orderID); err != nil {
		return nil, err
	}
	return listPayments(ctx, s.db, orderID)
}

func listPayments(ctx context.Context, q queryer, orderID int64) ([]domain.Payment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, method, amount_cents, reference, created_at
		FROM payments
		WHERE order_id = ?
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 2)
	for rows.Next() {
		var p domain.Payment
		var createdAt string
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Method, &p.AmountCents, &p.Reference, &createdAt); err != nil {
			return nil, store.Storage(err)
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, store.Storage(err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage(err)
	}
	return payments, nil
}
