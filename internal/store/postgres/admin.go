package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

// ---- payments ----

func (s *Store) AddPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.AmountCents <= 0 || !domain.IsPaymentMethod(payment.Method) {
		return nil, store.ErrInvalidInput
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	status, err := lockOrderStatus(ctx, pgTx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if domain.IsReversal(status) {
		return nil, fmt.Errorf("%w: order is %s", store.ErrInvalidTransition, status)
	}

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO payments (order_id, method, amount_cents, reference, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, payment.OrderID, payment.Method, payment.AmountCents, payment.Reference, payment.CreatedAt).Scan(&payment.ID)
	if err != nil {
		return nil, store.Storage(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, store.Storage(err)
	}
	payment.CreatedAt = payment.CreatedAt.UTC()
	return &payment, nil
}

func (s *Store) ListPayments(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, store.Storage(err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return listPayments(ctx, s.db, orderID)
}

func listPayments(ctx context.Context, q queryer, orderID int64) ([]domain.Payment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, method, amount_cents, reference, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 2)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Method, &p.AmountCents, &p.Reference, &p.CreatedAt); err != nil {
			return nil, store.Storage(err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage(err)
	}
	return payments, nil
}

// ---- settings ----

func (s *Store) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer rows.Close()

	values := make(map[string]string, 8)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, store.Storage(err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage(err)
	}
	return values, nil
}

func (s *Store) PutSettings(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := putSettings(ctx, tx, values); err != nil {
		return err
	}
	return store.Storage(tx.Commit())
}

func putSettings(ctx context.Context, q queryer, values map[string]string) error {
	for key, value := range values {
		_, err := q.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES ($1,$2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, key, value)
		if err != nil {
			return store.Storage(err)
		}
	}
	return nil
}

// ---- audit ----

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return store.Storage(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	var args argList
	where := args.timeRange([]string{"true"}, "created_at", from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY id DESC
		LIMIT `+args.add(limit), args.values...)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, store.Storage(err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage(err)
	}
	return logs, nil
}

// ---- users ----

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username already exists", store.ErrInvalidInput)
		}
		return store.Storage(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, store.Storage(err)
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage(err)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return store.Storage(err)
	}
	return expectOneRow(res, store.ErrNotFound)
}

// ---- backup ----

func (s *Store) Snapshot(ctx context.Context) (domain.Dataset, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return domain.Dataset{}, store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	var data domain.Dataset
	productRows, err := tx.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return domain.Dataset{}, store.Storage(err)
	}
	for productRows.Next() {
		p, err := scanProduct(productRows)
		if err != nil {
			_ = productRows.Close()
			return domain.Dataset{}, store.Storage(err)
		}
		data.Products = append(data.Products, p)
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return domain.Dataset{}, store.Storage(err)
	}
	_ = productRows.Close()

	sessionRows, err := tx.QueryContext(ctx, `SELECT `+sessionColumns+` FROM cash_sessions ORDER BY id`)
	if err != nil {
		return domain.Dataset{}, store.Storage(err)
	}
	for sessionRows.Next() {
		session, err := scanSession(sessionRows)
		if err != nil {
			_ = sessionRows.Close()
			return domain.Dataset{}, store.Storage(err)
		}
		data.Sessions = append(data.Sessions, session)
	}
	if err := sessionRows.Err(); err != nil {
		_ = sessionRows.Close()
		return domain.Dataset{}, store.Storage(err)
	}
	_ = sessionRows.Close()

	if data.Orders, err = queryOrders(ctx, tx, `SELECT `+orderColumns+` FROM orders ORDER BY id`); err != nil {
		return domain.Dataset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Dataset{}, store.Storage(err)
	}
	return data, nil
}

func (s *Store) Restore(ctx context.Context, data domain.Dataset) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `TRUNCATE payments, order_lines, orders, cash_sessions, products`); err != nil {
		return store.Storage(err)
	}

	for _, p := range data.Products {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, category, price_cents, stock, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, p.ID, p.Name, p.Category, p.PriceCents, p.Stock, p.Active, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return restoreErr("product", p.ID, err)
		}
	}

	for _, session := range data.Sessions {
		var summary any
		if session.Summary != nil {
			raw, err := json.Marshal(session.Summary)
			if err != nil {
				return store.Storage(err)
			}
			summary = string(raw)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cash_sessions (
				id, opened_at, closed_at, opening_amount_cents, counted_amount_cents,
				expected_amount_cents, difference_cents, responsible, status, notes, summary
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, session.ID, session.OpenedAt, nullTime(session.ClosedAt), session.OpeningAmountCents,
			nullInt64(session.CountedAmountCents), nullInt64(session.ExpectedAmountCents),
			nullInt64(session.DifferenceCents), session.Responsible, session.Status, session.Notes, summary)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: backup holds more than one open session", store.ErrInvalidInput)
			}
			return restoreErr("session", session.ID, err)
		}
	}

	for _, order := range data.Orders {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (
				id, session_id, status, table_ref, customer, notes, subtotal_cents, tax_rate_bp,
				tax_cents, total_cents, reversal_reason, reversed_at, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`, order.ID, order.SessionID, order.Status, order.TableRef, order.Customer, order.Notes,
			order.SubtotalCents, order.TaxRateBP, order.TaxCents, order.TotalCents, order.ReversalReason,
			nullTime(order.ReversedAt), order.CreatedAt, order.UpdatedAt)
		if err != nil {
			return restoreErr("order", order.ID, err)
		}
		if err := insertLines(ctx, tx, order.ID, order.Lines); err != nil {
			return err
		}
		for _, p := range order.Payments {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO payments (id, order_id, method, amount_cents, reference, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, p.ID, order.ID, p.Method, p.AmountCents, p.Reference, p.CreatedAt)
			if err != nil {
				return restoreErr("payment", p.ID, err)
			}
		}
	}

	for _, table := range []string{"products", "cash_sessions", "orders", "payments"} {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE((SELECT MAX(id) FROM %[1]s), 0) + 1, false)`, table))
		if err != nil {
			return store.Storage(err)
		}
	}

	if data.Settings != nil {
		if err := putSettings(ctx, tx, data.Settings.Values()); err != nil {
			return err
		}
	}
	return store.Storage(tx.Commit())
}

func restoreErr(kind string, id int64, err error) error {
	return store.Storage(fmt.Errorf("restore %s %d: %w", kind, id, err))
}
