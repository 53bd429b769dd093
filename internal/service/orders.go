package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/events"
	"github.com/facucarcelero/comandero/internal/store"
)

const (
	defaultOrderLimit = 100
	maxOrderLimit     = 500
)

type OrderEngine struct {
	repo     store.OrderRepository
	sessions *SessionManager
	settings *SettingsManager
	recorder *recorder
	now      func() time.Time
}

// Create requires an open session, validates the requested lines, captures
// prices and the current tax rate, and persists the order with its stock
// decrements in one transaction. Any invalid line rejects the whole order.
func (e *OrderEngine) Create(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	session, err := e.sessions.Current(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order has no lines", store.ErrInvalidOrder)
	}
	if err := precheckLines(req.Lines); err != nil {
		return domain.Order{}, err
	}
	settings, err := e.settings.Current(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	merged, origin := normalizeItems(req.Lines)
	lines := make([]domain.OrderLine, 0, len(merged))
	for _, item := range merged {
		lines = append(lines, domain.OrderLine{ProductID: item.ProductID, Qty: item.Qty})
	}

	created, err := e.repo.CreateOrder(ctx, domain.Order{
		SessionID: session.ID,
		Status:    domain.OrderStatusPending,
		TableRef:  strings.TrimSpace(req.TableRef),
		Customer:  strings.TrimSpace(req.Customer),
		Notes:     strings.TrimSpace(req.Notes),
		Lines:     lines,
		TaxRateBP: settings.TaxRateBP,
		CreatedAt: e.now(),
	})
	if err != nil {
		return domain.Order{}, remapLines(err, origin)
	}

	e.recorder.logAudit(ctx, "order_create", "order", created.ID, fmt.Sprintf("session=%d,lines=%d,total=%d", created.SessionID, len(created.Lines), created.TotalCents))
	e.recorder.emit(ctx, events.New(events.OrderCreated, "order", created.ID, created))
	return *created, nil
}

func (e *OrderEngine) Get(ctx context.Context, id int64) (domain.Order, error) {
	order, err := e.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (e *OrderEngine) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !domain.IsOrderStatus(filter.Status) {
		return nil, invalidInput("unknown status %q", filter.Status)
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, invalidInput("from must be before to")
	}
	if filter.Limit < 1 {
		filter.Limit = defaultOrderLimit
	}
	if filter.Limit > maxOrderLimit {
		filter.Limit = maxOrderLimit
	}
	filter.TableRef = strings.TrimSpace(filter.TableRef)
	return e.repo.ListOrders(ctx, filter)
}

// ChangeStatus moves an order along pending -> in_progress -> completed.
// Cancelling goes through the reversal path so stock always comes back.
func (e *OrderEngine) ChangeStatus(ctx context.Context, id int64, req domain.OrderStatusRequest) (domain.Order, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if !domain.IsOrderStatus(status) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidTransition, req.Status)
	}
	if domain.IsReversal(status) {
		return e.reverse(ctx, id, status, req.Reason)
	}

	before, err := e.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	updated, err := e.repo.UpdateOrderStatus(ctx, id, status, e.now())
	if err != nil {
		return domain.Order{}, err
	}

	e.recorder.logAudit(ctx, "order_status", "order", updated.ID, fmt.Sprintf("%s->%s", before.Status, updated.Status))
	e.recorder.emit(ctx, events.New(events.OrderStatusChanged, "order", updated.ID, map[string]string{
		"from": before.Status,
		"to":   updated.Status,
	}))
	return *updated, nil
}

// Void reverses an order in any non-reversed status and restores its stock.
func (e *OrderEngine) Void(ctx context.Context, id int64, reason string) (domain.Order, error) {
	return e.reverse(ctx, id, domain.OrderStatusVoided, reason)
}

func (e *OrderEngine) reverse(ctx context.Context, id int64, status string, reason string) (domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if status == domain.OrderStatusVoided && reason == "" {
		return domain.Order{}, invalidInput("void reason is required")
	}

	reversed, err := e.repo.ReverseOrder(ctx, id, status, reason, e.now())
	if err != nil {
		return domain.Order{}, err
	}

	eventType := events.OrderCancelled
	if status == domain.OrderStatusVoided {
		eventType = events.OrderVoided
	}
	e.recorder.logAudit(ctx, "order_"+status, "order", reversed.ID, fmt.Sprintf("total=%d,reason=%s", reversed.TotalCents, reason))
	e.recorder.emit(ctx, events.New(eventType, "order", reversed.ID, map[string]any{
		"reason":      reason,
		"total_cents": reversed.TotalCents,
	}))
	return *reversed, nil
}

// precheckLines rejects shapes no store could accept, reporting the 1-based
// line number as requested.
func precheckLines(lines []domain.OrderLineRequest) error {
	validation := &store.ValidationError{}
	for i, line := range lines {
		switch {
		case line.ProductID < 1:
			validation.Add(store.LineError{Line: i + 1, ProductID: line.ProductID, Reason: store.ErrInvalidOrder,
				Message: "product id is required"})
		case line.Qty < 1:
			validation.Add(store.LineError{Line: i + 1, ProductID: line.ProductID, Reason: store.ErrInvalidOrder,
				Message: fmt.Sprintf("quantity must be positive, got %d", line.Qty)})
		}
	}
	return validation.OrNil()
}

// normalizeItems merges repeated products into the first line that named
// them. origin maps each merged index back to that request index.
func normalizeItems(items []domain.OrderLineRequest) ([]domain.OrderLineRequest, []int) {
	position := make(map[int64]int, len(items))
	merged := make([]domain.OrderLineRequest, 0, len(items))
	origin := make([]int, 0, len(items))
	for i, item := range items {
		if at, seen := position[item.ProductID]; seen {
			merged[at].Qty += item.Qty
			continue
		}
		position[item.ProductID] = len(merged)
		merged = append(merged, item)
		origin = append(origin, i)
	}
	return merged, origin
}

// remapLines rewrites store line numbers, which refer to merged lines, to
// the caller's request lines.
func remapLines(err error, origin []int) error {
	var validation *store.ValidationError
	if !errors.As(err, &validation) {
		return err
	}
	remapped := &store.ValidationError{Lines: make([]store.LineError, 0, len(validation.Lines))}
	for _, line := range validation.Lines {
		if idx := line.Line - 1; idx >= 0 && idx < len(origin) {
			line.Line = origin[idx] + 1
		}
		remapped.Add(line)
	}
	return remapped
}
