package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/events"
	"github.com/facucarcelero/comandero/internal/store"
)

// SessionManager owns the cash session lifecycle. Current is the only way
// other components learn which session is open.
type SessionManager struct {
	repo     store.SessionRepository
	recorder *recorder
	now      func() time.Time
}

func (m *SessionManager) Open(ctx context.Context, req domain.SessionOpenRequest) (domain.CashSession, error) {
	responsible := strings.TrimSpace(req.Responsible)
	if responsible == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			responsible = actor.Username
		}
	}
	if responsible == "" {
		return domain.CashSession{}, invalidInput("responsible is required")
	}
	if req.OpeningAmountCents < 0 {
		return domain.CashSession{}, invalidInput("opening amount must not be negative")
	}

	saved, err := m.repo.CreateSession(ctx, domain.CashSession{
		OpenedAt:           m.now(),
		OpeningAmountCents: req.OpeningAmountCents,
		Responsible:        responsible,
	})
	if err != nil {
		return domain.CashSession{}, err
	}

	m.recorder.logAudit(ctx, "session_open", "session", saved.ID, fmt.Sprintf("opening=%d,responsible=%s", saved.OpeningAmountCents, saved.Responsible))
	m.recorder.emit(ctx, events.New(events.SessionOpened, "session", saved.ID, saved))
	return *saved, nil
}

// Current returns the open session or store.ErrNoOpenSession.
func (m *SessionManager) Current(ctx context.Context) (domain.CashSession, error) {
	session, err := m.repo.GetOpenSession(ctx)
	if err != nil {
		return domain.CashSession{}, err
	}
	return *session, nil
}

func (m *SessionManager) Get(ctx context.Context, id int64) (domain.CashSession, error) {
	session, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return domain.CashSession{}, err
	}
	return *session, nil
}

// Close freezes the open session against the counted cash. The summary is
// computed inside the store transaction and never recomputed afterwards.
func (m *SessionManager) Close(ctx context.Context, req domain.SessionCloseRequest) (domain.CloseResult, error) {
	if req.CountedAmountCents < 0 {
		return domain.CloseResult{}, invalidInput("counted amount must not be negative")
	}

	closed, err := m.repo.CloseSession(ctx, req.CountedAmountCents, strings.TrimSpace(req.Notes), m.now(), summarizeSession)
	if err != nil {
		return domain.CloseResult{}, err
	}

	result := closeResult(*closed)
	m.recorder.logAudit(ctx, "session_close", "session", closed.ID, fmt.Sprintf("expected=%d,counted=%d,difference=%d", result.ExpectedCents, result.CountedCents, result.DifferenceCents))
	m.recorder.emit(ctx, events.New(events.SessionClosed, "session", closed.ID, result))
	return result, nil
}

// History lists sessions opened in [from, to), newest first.
func (m *SessionManager) History(ctx context.Context, from time.Time, to time.Time) ([]domain.CashSession, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, invalidInput("from must be before to")
	}
	return m.repo.ListSessions(ctx, from, to)
}

func closeResult(session domain.CashSession) domain.CloseResult {
	result := domain.CloseResult{Session: session}
	if session.Summary != nil {
		result.Summary = *session.Summary
		result.ExpectedByPaymentsCents = session.OpeningAmountCents + session.Summary.TotalPaymentsCents
	}
	if session.ExpectedAmountCents != nil {
		result.ExpectedCents = *session.ExpectedAmountCents
	}
	if session.CountedAmountCents != nil {
		result.CountedCents = *session.CountedAmountCents
	}
	if session.DifferenceCents != nil {
		result.DifferenceCents = *session.DifferenceCents
	}
	return result
}

// summarizeSession derives the close figures. Expected cash is the opening
// float plus every order that was not cancelled or voided; payments are
// only counted for those same orders.
func summarizeSession(session domain.CashSession, orders []domain.Order) (int64, domain.SessionSummary) {
	summary := domain.SessionSummary{
		SessionID:          session.ID,
		Date:               session.OpenedAt.UTC().Format(time.DateOnly),
		OpeningAmountCents: session.OpeningAmountCents,
		OrderCount:         len(orders),
		CountsByStatus:     make(map[string]int, len(domain.OrderStatuses())),
		PaymentsByMethod:   make(map[string]int64, len(domain.PaymentMethods())),
	}
	for _, status := range domain.OrderStatuses() {
		summary.CountsByStatus[status] = 0
	}
	for _, method := range domain.PaymentMethods() {
		summary.PaymentsByMethod[method] = 0
	}

	for _, order := range orders {
		summary.CountsByStatus[order.Status]++
		if !domain.IsSettled(order.Status) {
			continue
		}
		summary.SettledSalesCents += order.TotalCents
		if order.Status == domain.OrderStatusCompleted {
			summary.TotalSalesCents += order.TotalCents
		} else {
			summary.OpenSalesCents += order.TotalCents
		}
		for _, payment := range order.Payments {
			summary.PaymentsByMethod[payment.Method] += payment.AmountCents
			summary.TotalPaymentsCents += payment.AmountCents
		}
	}
	return session.OpeningAmountCents + summary.SettledSalesCents, summary
}
