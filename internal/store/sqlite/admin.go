package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

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
	tx, err := s.db.BeginTx(ctx, nil)
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
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail,
		formatTime(entry.CreatedAt))
	return store.Storage(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	where, args := rangeClause([]string{"1 = 1"}, nil, "created_at", from, to)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY id DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &createdAt); err != nil {
			return nil, store.Storage(err)
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, store.Storage(err)
		}
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
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.Username, user.Password, user.Role, user.Active, formatTime(user.CreatedAt), formatTime(user.CreatedAt))
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
		var createdAt string
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &createdAt); err != nil {
			return nil, store.Storage(err)
		}
		if user.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, store.Storage(err)
		}
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
		UPDATE app_users SET password = ?, updated_at = ? WHERE username = ?
	`, password, formatTime(time.Now()), username)
	if err != nil {
		return store.Storage(err)
	}
	return expectOneRow(res, store.ErrNotFound)
}

// ---- backup ----

// Snapshot reads every table inside one transaction so the image is
// consistent.
func (s *Store) Snapshot(ctx context.Context) (domain.Dataset, error) {
	tx, err := s.db.BeginTx(ctx, nil)
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

	if data.Orders, err = queryOrders(ctx, tx, nil, nil, "id ASC", 0); err != nil {
		return domain.Dataset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Dataset{}, store.Storage(err)
	}
	return data, nil
}

// Restore replaces the transactional tables with the dataset. Users,
// settings and audit history are left alone.
func (s *Store) Restore(ctx context.Context, data domain.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"payments", "order_lines", "orders", "cash_sessions", "products"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return store.Storage(err)
		}
	}

	for _, p := range data.Products {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, category, price_cents, stock, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Name, p.Category, p.PriceCents, p.Stock, p.Active, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
		if err != nil {
			return restoreErr("product", p.ID, err)
		}
	}

	for _, session := range data.Sessions {
		var summaryJSON any
		if session.Summary != nil {
			raw, err := json.Marshal(session.Summary)
			if err != nil {
				return store.Storage(err)
			}
			summaryJSON = string(raw)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cash_sessions (
				id, opened_at, closed_at, opening_amount_cents, counted_amount_cents,
				expected_amount_cents, difference_cents, responsible, status, notes, summary_json
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, session.ID, formatTime(session.OpenedAt), nullTime(session.ClosedAt), session.OpeningAmountCents,
			nullInt64(session.CountedAmountCents), nullInt64(session.ExpectedAmountCents),
			nullInt64(session.DifferenceCents), session.Responsible, session.Status, session.Notes, summaryJSON)
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
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, order.ID, order.SessionID, order.Status, order.TableRef, order.Customer, order.Notes,
			order.SubtotalCents, order.TaxRateBP, order.TaxCents, order.TotalCents, order.ReversalReason,
			nullTime(order.ReversedAt), formatTime(order.CreatedAt), formatTime(order.UpdatedAt))
		if err != nil {
			return restoreErr("order", order.ID, err)
		}
		if err := insertLines(ctx, tx, order.ID, order.Lines); err != nil {
			return err
		}
		for _, p := range order.Payments {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO payments (id, order_id, method, amount_cents, reference, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, p.ID, order.ID, p.Method, p.AmountCents, p.Reference, formatTime(p.CreatedAt))
			if err != nil {
				return restoreErr("payment", p.ID, err)
			}
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
