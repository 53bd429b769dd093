package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

const sessionColumns = `id, opened_at, closed_at, opening_amount_cents, counted_amount_cents,
	expected_amount_cents, difference_cents, responsible, status, notes, summary`

func scanSession(row rowScanner) (domain.CashSession, error) {
	var session domain.CashSession
	var closedAt sql.NullTime
	var counted, expected, difference sql.NullInt64
	var summary []byte
	if err := row.Scan(&session.ID, &session.OpenedAt, &closedAt, &session.OpeningAmountCents, &counted,
		&expected, &difference, &session.Responsible, &session.Status, &session.Notes, &summary); err != nil {
		return domain.CashSession{}, err
	}
	session.OpenedAt = session.OpenedAt.UTC()
	session.ClosedAt = ptrTime(closedAt)
	session.CountedAmountCents = ptrInt64(counted)
	session.ExpectedAmountCents = ptrInt64(expected)
	session.DifferenceCents = ptrInt64(difference)
	if len(summary) > 0 {
		var decoded domain.SessionSummary
		if err := json.Unmarshal(summary, &decoded); err != nil {
			return domain.CashSession{}, err
		}
		session.Summary = &decoded
	}
	return session, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if strings.TrimSpace(session.Responsible) == "" || session.OpeningAmountCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusOpen

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cash_sessions (opened_at, opening_amount_cents, responsible, status)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, session.OpenedAt, session.OpeningAmountCents, session.Responsible, session.Status).Scan(&session.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrSessionAlreadyOpen
		}
		return nil, store.Storage(err)
	}
	session.OpenedAt = session.OpenedAt.UTC()
	return &session, nil
}

func getOpenSession(ctx context.Context, q queryer, lock bool) (*domain.CashSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM cash_sessions WHERE status = 'open' LIMIT 1`
	if lock {
		query += ` FOR UPDATE`
	}
	session, err := scanSession(q.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoOpenSession
		}
		return nil, store.Storage(err)
	}
	return &session, nil
}

func (s *Store) GetOpenSession(ctx context.Context) (*domain.CashSession, error) {
	return getOpenSession(ctx, s.db, false)
}

func (s *Store) GetSession(ctx context.Context, id int64) (*domain.CashSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM cash_sessions WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage(err)
	}
	return &session, nil
}

func (s *Store) ListSessions(ctx context.Context, from time.Time, to time.Time) ([]domain.CashSession, error) {
	return s.sessionsBetween(ctx, from, to)
}

func (s *Store) SessionsOpenedBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.CashSession, error) {
	return s.sessionsBetween(ctx, from, to)
}

func (s *Store) sessionsBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.CashSession, error) {
	var args argList
	where := args.timeRange([]string{"true"}, "opened_at", from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY id DESC
	`, args.values...)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0, 16)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, store.Storage(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage(err)
	}
	return sessions, nil
}

// CloseSession locks the open session row; CreateOrder holds a share lock
// on the same row, so no order can commit between summary and close.
func (s *Store) CloseSession(ctx context.Context, countedCents int64, notes string, closedAt time.Time, summarize store.SummaryFunc) (*domain.CashSession, error) {
	if countedCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	session, err := getOpenSession(ctx, tx, true)
	if err != nil {
		return nil, err
	}
	orders, err := sessionOrders(ctx, tx, session.ID)
	if err != nil {
		return nil, err
	}
	expected, summary := summarize(*session, orders)
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, store.Storage(err)
	}
	difference := countedCents - expected

	res, err := tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET status = 'closed', closed_at = $2, counted_amount_cents = $3, expected_amount_cents = $4,
			difference_cents = $5, notes = $6, summary = $7
		WHERE id = $1 AND status = 'open'
	`, session.ID, closedAt, countedCents, expected, difference, notes, string(summaryJSON))
	if err != nil {
		return nil, store.Storage(err)
	}
	if err := expectOneRow(res, store.ErrNoOpenSession); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, store.Storage(err)
	}

	closedAt = closedAt.UTC()
	session.Status = domain.SessionStatusClosed
	session.ClosedAt = &closedAt
	session.CountedAmountCents = &countedCents
	session.ExpectedAmountCents = &expected
	session.DifferenceCents = &difference
	session.Notes = notes
	session.Summary = &summary
	return session, nil
}
